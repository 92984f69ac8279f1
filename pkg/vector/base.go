// Package vector provides interfaces for vector similarity storage.
//
// It defines the Store interface for persisting embedding vectors together
// with the memory text and timestamp they belong to, and searching them by
// similarity.
package vector

import "context"

// Result is a single vector search hit or stored record.
type Result struct {
	// Text is the stored memory text.
	Text string

	// Timestamp is the unique memory key the vector belongs to.
	Timestamp string

	// ConversationID is the owning conversation, 0 for global memories.
	ConversationID int64

	// Similarity is the match score in (0, 1], 1.0 meaning an exact match.
	// It is only set on search results.
	Similarity float64
}

// Stats describes the current state of a vector store.
type Stats struct {
	// Count is the number of stored vectors.
	Count int

	// SizeMB is the approximate on-disk size of the index in megabytes.
	SizeMB float64

	// Dimensions is the vector dimension of the index.
	Dimensions int
}

// Store defines the interface for vector stores.
//
// A conversationID of 0 means unscoped: Search considers all vectors and
// Page lists all records.
type Store interface {
	// Add stores a vector with its text, timestamp and conversation.
	Add(ctx context.Context, vec []float32, text, timestamp string, conversationID int64) error

	// Search returns up to k records most similar to vec, ordered by
	// descending similarity. A non-zero conversationID restricts results
	// to that conversation.
	Search(ctx context.Context, vec []float32, k int, conversationID int64) ([]*Result, error)

	// GetByTimestamp returns the record stored under timestamp.
	GetByTimestamp(ctx context.Context, timestamp string) (*Result, error)

	// RemoveByTimestamps deletes the records with the given timestamps and
	// returns how many were removed.
	RemoveByTimestamps(ctx context.Context, timestamps []string) (int, error)

	// RemoveConversation deletes all records of a conversation and returns
	// how many were removed.
	RemoveConversation(ctx context.Context, conversationID int64) (int, error)

	// Clear deletes all records.
	Clear(ctx context.Context) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Page returns records in insertion order, limit records starting at
	// offset, together with the total number of matching records.
	Page(ctx context.Context, offset, limit int, conversationID int64) ([]*Result, int, error)

	// Stats returns store statistics.
	Stats(ctx context.Context) (*Stats, error)

	// Close persists pending state and releases resources.
	Close() error
}
