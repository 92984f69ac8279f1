// Package cohere provides a reranker backed by the Cohere Rerank API.
package cohere

import (
	"context"
	"errors"
	"fmt"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	cohereoption "github.com/cohere-ai/cohere-go/v2/option"

	"github.com/recallkit/recallkit-go/pkg/reranker"
)

// Client implements reranker.Provider using the Cohere Rerank API.
type Client struct {
	client *cohereclient.Client
	model  string
}

// Config contains configuration for creating a Cohere reranker client.
type Config struct {
	// APIKey is the Cohere API key (required).
	APIKey string

	// Model is the rerank model name (default: "rerank-v3.5").
	Model string

	// BaseURL overrides the API base URL (optional).
	BaseURL string
}

// NewClient creates a new Cohere reranker client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "rerank-v3.5"
	}

	opts := []cohereoption.RequestOption{
		cohereclient.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, cohereclient.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client: cohereclient.NewClient(opts...),
		model:  model,
	}, nil
}

// Rerank scores documents against the query via the Cohere Rerank endpoint
// and returns them ordered by descending relevance.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]*reranker.Result, error) {
	if query == "" || len(documents) == 0 {
		return nil, errors.New("query and documents are required")
	}

	docs := make([]*cohere.RerankRequestDocumentsItem, len(documents))
	for i, doc := range documents {
		docs[i] = cohere.NewRerankRequestDocumentsItemFromString(doc)
	}

	req := &cohere.RerankRequest{
		Query:     query,
		Documents: docs,
		Model:     cohere.String(c.model),
	}
	if topN > 0 {
		req.TopN = cohere.Int(topN)
	}

	resp, err := c.client.Rerank(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}

	results := make([]*reranker.Result, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = &reranker.Result{
			Index:          r.Index,
			RelevanceScore: r.RelevanceScore,
		}
	}
	return results, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return nil
}
