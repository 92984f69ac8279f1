// Package bge provides a reranker backed by a self-hosted BGE reranker
// service exposing a TEI-style /rerank HTTP endpoint.
package bge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/recallkit/recallkit-go/pkg/reranker"
)

// Client implements reranker.Provider against a BGE rerank HTTP service.
type Client struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
}

// Config contains configuration for creating a BGE reranker client.
type Config struct {
	// BaseURL is the rerank service address (required), e.g.
	// "http://localhost:8080".
	BaseURL string

	// APIKey is an optional bearer token for the service.
	APIKey string

	// Model is the rerank model name (default: "BAAI/bge-reranker-v2-m3").
	Model string

	// HTTPClient is a custom HTTP client (uses default if nil).
	HTTPClient *http.Client
}

// NewClient creates a new BGE reranker client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}

	model := cfg.Model
	if model == "" {
		model = "BAAI/bge-reranker-v2-m3"
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &Client{
		client:  client,
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: cfg.BaseURL,
	}, nil
}

// Rerank scores documents against the query and returns them ordered by
// descending relevance.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]*reranker.Result, error) {
	if query == "" || len(documents) == 0 {
		return nil, errors.New("query and documents are required")
	}

	reqBody := map[string]interface{}{
		"model":            c.model,
		"query":            query,
		"documents":        documents,
		"return_documents": false,
	}
	if topN > 0 {
		reqBody["top_n"] = topN
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/rerank", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([]*reranker.Result, len(response.Results))
	for i, r := range response.Results {
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
