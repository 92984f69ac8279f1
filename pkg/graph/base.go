// Package graph provides interfaces for the memory relationship graph.
//
// The graph holds one node per saved memory and weighted SIMILAR_TO edges
// between semantically related memories. Edges are created at write time
// from vector search candidates and traversed at read time to expand a hit
// into its related memories.
package graph

import "context"

// PreviewLength is how many characters of each message are stored on a
// graph node. Full texts live in the history store; the graph only needs
// enough to render related memories.
const PreviewLength = 200

// Memory is a memory node, or a traversal result when Similarity is set.
type Memory struct {
	// Timestamp is the unique memory key shared with the vector and
	// history stores.
	Timestamp string

	// UserMessage is the user message preview.
	UserMessage string

	// AIResponse is the assistant response preview.
	AIResponse string

	// Topic is the extracted topic label, "uncategorized" when extraction
	// found nothing.
	Topic string

	// ConversationID is the owning conversation, 0 for global memories.
	ConversationID int64

	// CreatedAt is the node creation time in RFC 3339 form.
	CreatedAt string

	// Similarity is the aggregated edge weight along the path that reached
	// this memory. Only set on GetRelated results.
	Similarity float64
}

// Candidate is a vector search hit offered to the graph as a potential
// relation for a new memory.
type Candidate struct {
	Timestamp      string
	ConversationID int64
	Similarity     float64
}

// TopicCount is a topic with its node count, for statistics.
type TopicCount struct {
	Topic string
	Count int64
}

// Stats describes the current state of a graph store.
type Stats struct {
	NodeCount          int64
	RelationCount      int64
	EarliestTimestamp  string
	LatestTimestamp    string
	TopTopics          []TopicCount
	ConversationCounts map[int64]int64
}

// RelatedOptions controls graph traversal in GetRelated.
type RelatedOptions struct {
	// Depth is the maximum number of hops to traverse.
	Depth int

	// MinSimilarity is the minimum aggregated path weight to include.
	MinSimilarity float64

	// Limit caps the number of returned memories, 0 meaning no cap.
	Limit int

	// ConversationID, when non-zero, scopes results to that conversation.
	ConversationID int64

	// IncludeCrossConversation keeps memories from other conversations in a
	// scoped traversal. They rank after same-conversation memories.
	IncludeCrossConversation bool
}

// RelationPolicy decides which candidates become SIMILAR_TO edges.
//
// Same-conversation candidates link at MinSimilarity. Cross-conversation
// links need stronger evidence: the threshold is raised by
// CrossConversationMargin but never below CrossConversationFloor.
// Candidates at or above DedupCutoff are duplicates of the new memory, not
// relations, and are never linked.
type RelationPolicy struct {
	MinSimilarity           float64
	DedupCutoff             float64
	CrossConversationMargin float64
	CrossConversationFloor  float64

	// MaxPathDepth bounds the existing-path check: a candidate already
	// reachable within this many hops is not linked again.
	MaxPathDepth int
}

// EffectiveThreshold returns the similarity a candidate must reach to be
// linked, given whether it lives in another conversation.
func (p *RelationPolicy) EffectiveThreshold(crossConversation bool) float64 {
	if !crossConversation {
		return p.MinSimilarity
	}
	threshold := p.MinSimilarity + p.CrossConversationMargin
	if threshold < p.CrossConversationFloor {
		threshold = p.CrossConversationFloor
	}
	return threshold
}

// IsDuplicate reports whether a candidate at this similarity is a duplicate
// of the memory being saved.
func (p *RelationPolicy) IsDuplicate(sim float64) bool {
	return sim >= p.DedupCutoff
}

// ShouldLink reports whether a candidate at this similarity should become a
// SIMILAR_TO edge.
func (p *RelationPolicy) ShouldLink(sim float64, crossConversation bool) bool {
	return sim >= p.EffectiveThreshold(crossConversation) && !p.IsDuplicate(sim)
}

// Store defines the interface for graph stores.
type Store interface {
	// CreateWithRelations creates a memory node and links it to the
	// candidates the relation policy accepts. It returns the extracted
	// topic of the new node. A candidate already connected to the new node
	// within the policy's path depth is not linked again.
	CreateWithRelations(ctx context.Context, userMessage, aiResponse, timestamp string, conversationID int64, candidates []*Candidate) (string, error)

	// GetRelated traverses SIMILAR_TO edges from the memory at timestamp
	// and returns related memories ordered by descending aggregated
	// similarity.
	GetRelated(ctx context.Context, timestamp string, opts *RelatedOptions) ([]*Memory, error)

	// GetRecent returns the most recently created memories, newest first.
	// A non-zero conversationID restricts results to that conversation.
	GetRecent(ctx context.Context, conversationID int64, limit int) ([]*Memory, error)

	// GetByTimestamp returns the memory node stored under timestamp.
	GetByTimestamp(ctx context.Context, timestamp string) (*Memory, error)

	// SearchByKeyword returns memories whose messages or topic contain
	// keyword, case-insensitively, newest first.
	SearchByKeyword(ctx context.Context, keyword string, conversationID int64, limit int) ([]*Memory, error)

	// Stats returns graph statistics.
	Stats(ctx context.Context) (*Stats, error)

	// ClearAll deletes all nodes and relationships.
	ClearAll(ctx context.Context) error

	// ClearConversation deletes all memories of a conversation and returns
	// their timestamps so sibling stores can be cleaned up.
	ClearConversation(ctx context.Context, conversationID int64) ([]string, error)

	// ClearByKeyword deletes all memories matching keyword and returns
	// their timestamps.
	ClearByKeyword(ctx context.Context, keyword string) ([]string, error)

	// Close closes the store and releases resources.
	Close() error
}

// Preview truncates text to PreviewLength characters for node storage.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= PreviewLength {
		return text
	}
	return string(runes[:PreviewLength])
}
