package core

// GlobalConversation is the conversation ID used for memories that are not
// scoped to any conversation.
const GlobalConversation int64 = 0

// Memory represents a single remembered conversational turn.
//
// The Timestamp is the join key across the vector store, the graph store and
// the conversation history store: it uniquely identifies one turn everywhere.
//
// Example:
//
//	memory := &core.Memory{
//	    Timestamp:   "2026-08-28 10:15:42.1170003",
//	    UserMessage: "What is the capital of France?",
//	    AIResponse:  "Paris.",
//	}
type Memory struct {
	// Timestamp uniquely identifies the turn. Globally unique, monotonic
	// and lexicographically sortable.
	Timestamp string `json:"timestamp"`

	// UserMessage is the user's side of the turn.
	UserMessage string `json:"user_message"`

	// AIResponse is the assistant's side of the turn.
	AIResponse string `json:"ai_response"`

	// Topic is a short keyword summary extracted from the user message.
	Topic string `json:"topic,omitempty"`

	// ConversationID scopes the memory to a conversation.
	// GlobalConversation (0) marks a global memory.
	ConversationID int64 `json:"conversation_id,omitempty"`

	// Similarity is transient: populated only on search results, in [0,1].
	Similarity float64 `json:"similarity,omitempty"`
}

// Context source tags reported in ContextMemory.Source.
const (
	// SourceHistory marks turns taken from the conversation history store.
	SourceHistory = "history"

	// SourceVector marks memories found by vector similarity search.
	SourceVector = "vector_search"

	// SourceGraph marks memories reached through graph traversal.
	SourceGraph = "graph_related"

	// SourceRecent marks memories returned by the recency fallback.
	SourceRecent = "recent"
)

// ContextMemory is one entry of an assembled context, with provenance
// metadata for observability.
type ContextMemory struct {
	// Timestamp is the turn's join key.
	Timestamp string `json:"timestamp"`

	// UserMessage and AIResponse are the turn's two sides.
	UserMessage string `json:"user_message"`
	AIResponse  string `json:"ai_response"`

	// Similarity is the vector similarity, graph aggregate or rerank
	// relevance that selected this memory. 1.0 when selection was purely
	// positional (history window, recency fallback).
	Similarity float64 `json:"similarity,omitempty"`

	// Source reports which subsystem contributed this memory.
	Source string `json:"source"`

	// ConversationID is the memory's conversation scope.
	ConversationID int64 `json:"conversation_id,omitempty"`
}

// ContextResult is the outcome of assembling context for a query: the
// formatted text handed to the language model plus structured metadata about
// every memory it contains.
type ContextResult struct {
	// Context is the formatted alternating user/assistant text.
	Context string `json:"context"`

	// Memories lists the turns included in Context, in order.
	Memories []*ContextMemory `json:"memories"`
}

// TopicCount is one entry of the per-topic statistics.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int64  `json:"count"`
}

// Statistics reports the state of the memory subsystem across stores.
//
// IsConsistent compares the vector store record count against the graph
// store node count. Divergence is reported, never repaired.
type Statistics struct {
	// VectorCount is the number of records in the vector store.
	VectorCount int `json:"vector_count"`

	// VectorSizeMB is the on-disk size of the vector blob in megabytes.
	VectorSizeMB float64 `json:"vector_size_mb"`

	// GraphNodeCount and GraphRelCount are the graph store totals.
	GraphNodeCount int64 `json:"graph_node_count"`
	GraphRelCount  int64 `json:"graph_rel_count"`

	// EarliestMemory and LatestMemory are timestamp bounds over the graph.
	EarliestMemory string `json:"earliest_memory,omitempty"`
	LatestMemory   string `json:"latest_memory,omitempty"`

	// TopTopics lists the most frequent topics.
	TopTopics []TopicCount `json:"top_topics,omitempty"`

	// ConversationCounts maps conversation IDs to their memory counts.
	ConversationCounts map[int64]int64 `json:"conversation_counts,omitempty"`

	// IsConsistent is true when VectorCount == GraphNodeCount.
	IsConsistent bool `json:"is_consistent"`
}
