package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recallkit-go/pkg/embedder/openai"
)

func TestEmbedHalvesMultibyteInputOnRuneBoundary(t *testing.T) {
	var inputs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 1)
		inputs = append(inputs, req.Input[0])

		w.Header().Set("Content-Type", "application/json")
		if len(inputs) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"This model's maximum context length is 8192 tokens","type":"invalid_request_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2]}],"model":"text-embedding-3-small"}`))
	}))
	defer server.Close()

	client, err := openai.NewClient(&openai.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	vec, err := client.Embed(context.Background(), strings.Repeat("忆", 41))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)

	require.Len(t, inputs, 2)
	assert.True(t, utf8.ValidString(inputs[1]))
	assert.Equal(t, strings.Repeat("忆", 20), inputs[1])
}
