package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateThresholdOrdering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retrieval.MinSimilarity = 0.95
	cfg.Retrieval.DedupCutoff = 0.7
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Retrieval.DedupCutoff = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Retrieval.MinSimilarity = -0.1
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiredProviders(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedder.Provider = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Graph.Provider = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Vector.Dimensions = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "qwen")
	t.Setenv("EMBEDDING_API_KEY", "test-key")
	t.Setenv("EMBEDDING_DIMENSIONS", "768")
	t.Setenv("RERANK_ENABLED", "true")
	t.Setenv("RERANK_PROVIDER", "cohere")
	t.Setenv("GRAPH_PROVIDER", "neo4j")
	t.Setenv("NEO4J_URI", "bolt://graph:7687")
	t.Setenv("HISTORY_PROVIDER", "mysql")
	t.Setenv("MYSQL_HOST", "db")
	t.Setenv("RETRIEVAL_MIN_SIMILARITY", "0.6")
	t.Setenv("CONVERSATION_WINDOW_SIZE", "20")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "qwen", cfg.Embedder.Provider)
	assert.Equal(t, "test-key", cfg.Embedder.APIKey)
	assert.Equal(t, 768, cfg.Embedder.Dimensions)
	assert.Equal(t, 768, cfg.Vector.Dimensions, "vector dimension follows the embedder")
	assert.True(t, cfg.Reranker.Enabled)
	assert.Equal(t, "cohere", cfg.Reranker.Provider)
	assert.Equal(t, "neo4j", cfg.Graph.Provider)
	assert.Equal(t, "bolt://graph:7687", cfg.Graph.URI)
	assert.Equal(t, "mysql", cfg.History.Provider)
	assert.Equal(t, "db", cfg.History.Host)
	assert.Equal(t, 3306, cfg.History.Port)
	assert.Equal(t, 0.6, cfg.Retrieval.MinSimilarity)
	assert.Equal(t, 20, cfg.Conversation.WindowSize)
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"embedder": {"provider": "openai", "api_key": "sk-test", "dimensions": 512},
		"retrieval": {"min_similarity": 0.65, "dedup_cutoff": 0.9}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfigFromJSON(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Embedder.APIKey)
	assert.Equal(t, 512, cfg.Embedder.Dimensions)
	assert.Equal(t, 0.65, cfg.Retrieval.MinSimilarity)
	assert.Equal(t, 0.9, cfg.Retrieval.DedupCutoff)

	// Untouched sections keep their defaults.
	assert.Equal(t, "sqlite", cfg.Graph.Provider)
	assert.Equal(t, 15, cfg.Conversation.WindowSize)
}

func TestLoadConfigFromJSONMissingFile(t *testing.T) {
	_, err := LoadConfigFromJSON("/nonexistent/config.json")
	assert.Error(t, err)
}
