// Package reranker provides interfaces for relevance reranking providers.
//
// A reranker reorders candidate documents by semantic relevance to a query.
// It is an optional refinement stage: callers are expected to fall back to
// the original candidate order when reranking is disabled or fails.
package reranker

import "context"

// Result is a single reranked document.
type Result struct {
	// Index is the position of the document in the original input slice.
	Index int

	// RelevanceScore is the provider's relevance score for the document,
	// higher meaning more relevant to the query.
	RelevanceScore float64
}

// Provider defines the interface for reranking providers.
type Provider interface {
	// Rerank scores documents against the query and returns them ordered by
	// descending relevance. topN limits the number of results; topN <= 0
	// returns all documents.
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]*Result, error)

	// Close closes the provider and releases resources.
	Close() error
}
