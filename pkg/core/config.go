package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for a RecallKit service.
//
// It includes settings for:
//   - Embedding provider (text to vector)
//   - Rerank provider (optional relevance reranking)
//   - Vector store (ANN index + record list)
//   - Graph store (memory nodes and SIMILAR_TO relationships)
//   - Conversation history store (relational turn log)
//   - Retrieval thresholds and context assembly
//
// Example:
//
//	config := core.DefaultConfig()
//	config.Embedder.APIKey = "sk-..."
//	config.Graph.Provider = "sqlite"
//	config.Graph.DBPath = "./memories.graph.db"
type Config struct {
	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder"`

	// Reranker contains rerank provider configuration.
	Reranker RerankerConfig `json:"reranker"`

	// Vector contains vector store configuration.
	Vector VectorConfig `json:"vector"`

	// Graph contains graph store configuration.
	Graph GraphConfig `json:"graph"`

	// History contains conversation history store configuration.
	History HistoryConfig `json:"history"`

	// Retrieval contains thresholds for relationship creation and retrieval.
	Retrieval RetrievalConfig `json:"retrieval"`

	// Conversation contains context window settings.
	Conversation ConversationConfig `json:"conversation"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai, qwen
type EmbedderConfig struct {
	// Provider is the embedding provider name (openai, qwen).
	Provider string `json:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key"`

	// Model is the embedding model name (e.g., "text-embedding-3-small").
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional, provider default if empty).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors.
	Dimensions int `json:"dimensions"`

	// MaxChars truncates input text before embedding. 0 disables truncation.
	MaxChars int `json:"max_chars,omitempty"`
}

// RerankerConfig contains configuration for the rerank provider.
//
// Supported providers: cohere, bge. When disabled, context assembly keeps
// the merged order and assigns the neutral relevance score 1.0.
type RerankerConfig struct {
	// Enabled toggles reranking. Rerank failures degrade to the original
	// order either way; callers never see an error from this step.
	Enabled bool `json:"enabled"`

	// Provider is the rerank provider name (cohere, bge).
	Provider string `json:"provider"`

	// APIKey is the API key for the rerank provider.
	APIKey string `json:"api_key"`

	// Model is the rerank model name (e.g., "rerank-v3.5", "BAAI/bge-reranker-v2-m3").
	Model string `json:"model"`

	// BaseURL is the base URL for HTTP providers.
	BaseURL string `json:"base_url,omitempty"`
}

// VectorConfig contains configuration for the vector store.
type VectorConfig struct {
	// IndexPath is the path of the persisted index blob.
	IndexPath string `json:"index_path"`

	// Dimensions is the expected embedding dimension. Mismatched vectors
	// are truncated or zero-padded, never rejected.
	Dimensions int `json:"dimensions"`
}

// GraphConfig contains configuration for the graph store.
//
// Supported providers: neo4j, sqlite
type GraphConfig struct {
	// Provider is the graph store provider name (neo4j, sqlite).
	Provider string `json:"provider"`

	// URI, User and Password configure the neo4j provider.
	URI      string `json:"uri,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`

	// DBPath configures the sqlite provider.
	DBPath string `json:"db_path,omitempty"`
}

// HistoryConfig contains configuration for the conversation history store.
//
// Supported providers: mysql, postgres, sqlite
type HistoryConfig struct {
	// Provider is the history store provider name (mysql, postgres, sqlite).
	Provider string `json:"provider"`

	// Host, Port, User, Password and Database configure the SQL servers.
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`

	// SSLMode configures the postgres provider (default "disable").
	SSLMode string `json:"ssl_mode,omitempty"`

	// DBPath configures the sqlite provider.
	DBPath string `json:"db_path,omitempty"`
}

// RetrievalConfig contains the thresholds that drive relationship creation
// and memory retrieval.
type RetrievalConfig struct {
	// MinSimilarity is the minimum similarity for creating a SIMILAR_TO
	// relationship and for accepting traversal edges.
	MinSimilarity float64 `json:"min_similarity"`

	// DedupCutoff is the similarity at and above which two turns are the
	// same memory: no new record is created, the existing timestamp is
	// returned.
	DedupCutoff float64 `json:"dedup_cutoff"`

	// CrossConversationMargin raises the relationship threshold for
	// candidates from a different conversation.
	CrossConversationMargin float64 `json:"cross_conversation_margin"`

	// CrossConversationFloor is the minimum effective threshold for
	// cross-conversation relationships regardless of MinSimilarity.
	CrossConversationFloor float64 `json:"cross_conversation_floor"`

	// GraphDepth is the traversal depth used when expanding a vector hit
	// through the graph.
	GraphDepth int `json:"graph_depth"`

	// MaxPathDepth bounds the redundant-path check: no edge is created
	// between nodes already connected by a path of this length or shorter.
	MaxPathDepth int `json:"max_path_depth"`

	// MaxMemories is the context assembly budget.
	MaxMemories int `json:"max_memories"`

	// CandidateK is how many vector neighbors are fetched as
	// relationship/dedup candidates on the write path.
	CandidateK int `json:"candidate_k"`

	// MaxPageSize caps Page requests.
	MaxPageSize int `json:"max_page_size"`
}

// ConversationConfig contains context window settings.
type ConversationConfig struct {
	// WindowSize is the number of recent turns fetched from the history
	// store for conversation-scoped context.
	WindowSize int `json:"window_size"`

	// UseHistoryContext enables the history short-circuit: when the window
	// already yields at least WindowSize/2 turns, no embedding, vector or
	// graph call is made.
	UseHistoryContext bool `json:"use_history_context"`
}

// DefaultConfig returns a configuration with the standard thresholds and
// sqlite-backed local stores.
func DefaultConfig() *Config {
	return &Config{
		Embedder: EmbedderConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			MaxChars:   2048,
		},
		Reranker: RerankerConfig{
			Enabled:  false,
			Provider: "bge",
			Model:    "BAAI/bge-reranker-v2-m3",
		},
		Vector: VectorConfig{
			IndexPath:  "data/vector_index.bin",
			Dimensions: 1536,
		},
		Graph: GraphConfig{
			Provider: "sqlite",
			DBPath:   "data/memories.graph.db",
		},
		History: HistoryConfig{
			Provider: "sqlite",
			DBPath:   "data/conversations.db",
		},
		Retrieval: RetrievalConfig{
			MinSimilarity:           0.7,
			DedupCutoff:             0.95,
			CrossConversationMargin: 0.1,
			CrossConversationFloor:  0.8,
			GraphDepth:              2,
			MaxPathDepth:            10,
			MaxMemories:             5,
			CandidateK:              5,
			MaxPageSize:             100,
		},
		Conversation: ConversationConfig{
			WindowSize:        15,
			UseHistoryContext: true,
		},
	}
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables on top of DefaultConfig
//
// Supported environment variables include:
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMENSIONS
//   - RERANK_ENABLED, RERANK_PROVIDER, RERANK_API_KEY, RERANK_MODEL,
//     RERANK_BASE_URL
//   - VECTOR_INDEX_PATH
//   - GRAPH_PROVIDER (neo4j, sqlite), NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD,
//     GRAPH_SQLITE_PATH
//   - HISTORY_PROVIDER (mysql, postgres, sqlite), MYSQL_HOST, MYSQL_PORT,
//     MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE, POSTGRES_*, HISTORY_SQLITE_PATH
//   - RETRIEVAL_MIN_SIMILARITY, RETRIEVAL_DEDUP_CUTOFF,
//     RETRIEVAL_GRAPH_DEPTH, RETRIEVAL_MAX_MEMORIES
//   - CONVERSATION_WINDOW_SIZE, USE_HISTORY_CONTEXT
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	cfg.Embedder.Provider = getEnvOrDefault("EMBEDDING_PROVIDER", cfg.Embedder.Provider)
	cfg.Embedder.APIKey = os.Getenv("EMBEDDING_API_KEY")
	cfg.Embedder.Model = getEnvOrDefault("EMBEDDING_MODEL", cfg.Embedder.Model)
	cfg.Embedder.BaseURL = os.Getenv("EMBEDDING_BASE_URL")
	cfg.Embedder.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", cfg.Embedder.Dimensions)
	cfg.Vector.Dimensions = cfg.Embedder.Dimensions

	cfg.Reranker.Enabled = getEnvBool("RERANK_ENABLED", cfg.Reranker.Enabled)
	cfg.Reranker.Provider = getEnvOrDefault("RERANK_PROVIDER", cfg.Reranker.Provider)
	cfg.Reranker.APIKey = os.Getenv("RERANK_API_KEY")
	cfg.Reranker.Model = getEnvOrDefault("RERANK_MODEL", cfg.Reranker.Model)
	cfg.Reranker.BaseURL = os.Getenv("RERANK_BASE_URL")

	cfg.Vector.IndexPath = getEnvOrDefault("VECTOR_INDEX_PATH", cfg.Vector.IndexPath)

	cfg.Graph.Provider = getEnvOrDefault("GRAPH_PROVIDER", cfg.Graph.Provider)
	cfg.Graph.URI = getEnvOrDefault("NEO4J_URI", "bolt://localhost:7687")
	cfg.Graph.User = getEnvOrDefault("NEO4J_USER", "neo4j")
	cfg.Graph.Password = os.Getenv("NEO4J_PASSWORD")
	cfg.Graph.DBPath = getEnvOrDefault("GRAPH_SQLITE_PATH", cfg.Graph.DBPath)

	cfg.History.Provider = getEnvOrDefault("HISTORY_PROVIDER", cfg.History.Provider)
	switch cfg.History.Provider {
	case "mysql":
		cfg.History.Host = getEnvOrDefault("MYSQL_HOST", "127.0.0.1")
		cfg.History.Port = getEnvInt("MYSQL_PORT", 3306)
		cfg.History.User = getEnvOrDefault("MYSQL_USER", "root")
		cfg.History.Password = os.Getenv("MYSQL_PASSWORD")
		cfg.History.Database = getEnvOrDefault("MYSQL_DATABASE", "recallkit")
	case "postgres":
		cfg.History.Host = getEnvOrDefault("POSTGRES_HOST", "localhost")
		cfg.History.Port = getEnvInt("POSTGRES_PORT", 5432)
		cfg.History.User = getEnvOrDefault("POSTGRES_USER", "postgres")
		cfg.History.Password = os.Getenv("POSTGRES_PASSWORD")
		cfg.History.Database = getEnvOrDefault("POSTGRES_DATABASE", "recallkit")
		cfg.History.SSLMode = getEnvOrDefault("POSTGRES_SSLMODE", "disable")
	default:
		cfg.History.DBPath = getEnvOrDefault("HISTORY_SQLITE_PATH", cfg.History.DBPath)
	}

	cfg.Retrieval.MinSimilarity = getEnvFloat("RETRIEVAL_MIN_SIMILARITY", cfg.Retrieval.MinSimilarity)
	cfg.Retrieval.DedupCutoff = getEnvFloat("RETRIEVAL_DEDUP_CUTOFF", cfg.Retrieval.DedupCutoff)
	cfg.Retrieval.GraphDepth = getEnvInt("RETRIEVAL_GRAPH_DEPTH", cfg.Retrieval.GraphDepth)
	cfg.Retrieval.MaxMemories = getEnvInt("RETRIEVAL_MAX_MEMORIES", cfg.Retrieval.MaxMemories)

	cfg.Conversation.WindowSize = getEnvInt("CONVERSATION_WINDOW_SIZE", cfg.Conversation.WindowSize)
	cfg.Conversation.UseHistoryContext = getEnvBool("USE_HISTORY_CONTEXT", cfg.Conversation.UseHistoryContext)

	return cfg, nil
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Fields absent from the file keep their DefaultConfig values.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
//
// Checks that required providers are set and that the threshold ordering
// 0 <= MinSimilarity < DedupCutoff <= 1 holds.
func (c *Config) Validate() error {
	if c.Embedder.Provider == "" {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.Graph.Provider == "" || c.History.Provider == "" {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.Vector.Dimensions <= 0 {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	r := c.Retrieval
	if r.MinSimilarity < 0 || r.DedupCutoff > 1 || r.MinSimilarity >= r.DedupCutoff {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.Conversation.WindowSize <= 0 || r.MaxMemories <= 0 {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
