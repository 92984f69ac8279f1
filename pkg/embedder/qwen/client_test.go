package qwen_test

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

	"github.com/recallkit/recallkit-go/pkg/embedder"
	"github.com/recallkit/recallkit-go/pkg/embedder/qwen"
)

func TestEmbedHalvesMultibyteInputOnRuneBoundary(t *testing.T) {
	var inputs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input struct {
				Texts []string `json:"texts"`
			} `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input.Texts, 1)
		inputs = append(inputs, req.Input.Texts[0])

		if len(inputs) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"input length exceeds the limit"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":{"embeddings":[{"embedding":[0.1,0.2]}]}}`))
	}))
	defer server.Close()

	client, err := qwen.NewClient(&qwen.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	vec, err := client.Embed(context.Background(), strings.Repeat("记", 41))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)

	require.Len(t, inputs, 2)
	assert.True(t, utf8.ValidString(inputs[1]))
	assert.Equal(t, strings.Repeat("记", 20), inputs[1])
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	client, err := qwen.NewClient(&qwen.Config{APIKey: "test-key"})
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, embedder.ErrEmptyInput)
}
