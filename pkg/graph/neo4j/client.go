// Package neo4j provides a graph store backed by a Neo4j database.
//
// Memory nodes carry the Memory label with a unique timestamp property.
// Relations are stored as a pair of directed SIMILAR_TO edges, one in each
// direction, so traversals never depend on edge direction.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/recallkit/recallkit-go/pkg/graph"
)

// Client implements graph.Store on Neo4j.
type Client struct {
	driver neo4j.DriverWithContext
	policy *graph.RelationPolicy
	logger *log.Logger
}

// Config contains configuration for creating a Neo4j graph store.
type Config struct {
	// URI is the bolt address, e.g. "bolt://localhost:7687" (required).
	URI string

	// User and Password are the database credentials.
	User     string
	Password string

	// Policy decides which candidates become relations (required).
	Policy *graph.RelationPolicy

	// Logger is the logger to use (a default is created if nil).
	Logger *log.Logger
}

// NewClient creates a Neo4j graph store, verifies connectivity and ensures
// the schema constraints exist.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("URI is required")
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("relation policy is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.WithPrefix("graph")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify connectivity: %w", err)
	}

	c := &Client{
		driver: driver,
		policy: cfg.Policy,
		logger: logger,
	}
	if err := c.ensureSchema(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return c, nil
}

// ensureSchema creates the timestamp uniqueness constraint and the
// conversation index.
func (c *Client) ensureSchema(ctx context.Context) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT memory_timestamp IF NOT EXISTS FOR (m:Memory) REQUIRE m.timestamp IS UNIQUE`,
		`CREATE INDEX memory_conversation IF NOT EXISTS FOR (m:Memory) ON (m.conversation_id)`,
	}
	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// CreateWithRelations creates a memory node and links it to accepted
// candidates. Candidates already reachable within the policy's path depth
// are skipped so the graph does not accumulate shortcut edges.
func (c *Client) CreateWithRelations(ctx context.Context, userMessage, aiResponse, timestamp string, conversationID int64, candidates []*graph.Candidate) (string, error) {
	topic := graph.ExtractTopic(userMessage + " " + aiResponse)

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx, `
		MERGE (m:Memory {timestamp: $timestamp})
		ON CREATE SET
			m.user_message = $userMessage,
			m.ai_response = $aiResponse,
			m.topic = $topic,
			m.conversation_id = $conversationID,
			m.created_at = $createdAt
	`, map[string]interface{}{
		"timestamp":      timestamp,
		"userMessage":    graph.Preview(userMessage),
		"aiResponse":     graph.Preview(aiResponse),
		"topic":          topic,
		"conversationID": conversationID,
		"createdAt":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("create memory node: %w", err)
	}

	for _, cand := range candidates {
		cross := cand.ConversationID != conversationID
		if !c.policy.ShouldLink(cand.Similarity, cross) {
			continue
		}

		connected, err := c.pathExists(ctx, session, timestamp, cand.Timestamp)
		if err != nil {
			c.logger.Warn("path check failed, skipping relation",
				"timestamp", timestamp, "candidate", cand.Timestamp, "error", err)
			continue
		}
		if connected {
			continue
		}

		if err := c.link(ctx, session, timestamp, cand.Timestamp, cand.Similarity, cross); err != nil {
			c.logger.Warn("relation creation failed",
				"timestamp", timestamp, "candidate", cand.Timestamp, "error", err)
		}
	}

	return topic, nil
}

// pathExistsQuery builds the reachability check. Neo4j 5 removed the
// exists(pattern) function form, so this has to be an EXISTS subquery.
func pathExistsQuery(maxDepth int) string {
	return fmt.Sprintf(`
		MATCH (a:Memory {timestamp: $a}), (b:Memory {timestamp: $b})
		RETURN EXISTS {
			MATCH (a)-[:SIMILAR_TO*1..%d]-(b)
		} AS connected`, maxDepth)
}

// pathExists reports whether any SIMILAR_TO path of at most MaxPathDepth
// hops already connects the two memories.
func (c *Client) pathExists(ctx context.Context, session neo4j.SessionWithContext, a, b string) (bool, error) {
	result, err := session.Run(ctx, pathExistsQuery(c.policy.MaxPathDepth), map[string]interface{}{"a": a, "b": b})
	if err != nil {
		return false, err
	}
	if result.Next(ctx) {
		connected, _ := result.Record().Get("connected")
		v, ok := connected.(bool)
		return ok && v, result.Err()
	}
	return false, result.Err()
}

// link creates the bidirectional SIMILAR_TO edge pair.
func (c *Client) link(ctx context.Context, session neo4j.SessionWithContext, a, b string, similarity float64, cross bool) error {
	_, err := session.Run(ctx, `
		MATCH (a:Memory {timestamp: $a}), (b:Memory {timestamp: $b})
		MERGE (a)-[r1:SIMILAR_TO]->(b)
		SET r1.similarity = $similarity, r1.cross_conversation = $cross
		MERGE (b)-[r2:SIMILAR_TO]->(a)
		SET r2.similarity = $similarity, r2.cross_conversation = $cross
	`, map[string]interface{}{
		"a":          a,
		"b":          b,
		"similarity": similarity,
		"cross":      cross,
	})
	return err
}

// GetRelated traverses SIMILAR_TO edges from the memory at timestamp. Path
// weight is the product of edge similarities; when several paths reach the
// same memory the strongest one wins.
func (c *Client) GetRelated(ctx context.Context, timestamp string, opts *graph.RelatedOptions) ([]*graph.Memory, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (start:Memory {timestamp: $timestamp})
		MATCH path = (start)-[:SIMILAR_TO*1..%d]-(related:Memory)
		WHERE related.timestamp <> $timestamp`, opts.Depth)
	params := map[string]interface{}{
		"timestamp":     timestamp,
		"minSimilarity": opts.MinSimilarity,
	}
	if opts.ConversationID != 0 && !opts.IncludeCrossConversation {
		query += `
		AND related.conversation_id = $conversationID`
		params["conversationID"] = opts.ConversationID
	}
	query += `
		WITH related, reduce(w = 1.0, r IN relationships(path) | w * r.similarity) AS weight
		WITH related, max(weight) AS similarity
		WHERE similarity >= $minSimilarity
		RETURN related.timestamp AS timestamp,
		       related.user_message AS user_message,
		       related.ai_response AS ai_response,
		       related.topic AS topic,
		       related.conversation_id AS conversation_id,
		       related.created_at AS created_at,
		       similarity`
	if opts.ConversationID != 0 && opts.IncludeCrossConversation {
		// Same-conversation memories rank ahead of cross-conversation ones.
		query += `
		ORDER BY CASE WHEN related.conversation_id = $conversationID THEN 0 ELSE 1 END, similarity DESC`
		params["conversationID"] = opts.ConversationID
	} else {
		query += `
		ORDER BY similarity DESC`
	}
	if opts.Limit > 0 {
		query += " LIMIT $limit"
		params["limit"] = opts.Limit
	}

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("traverse related: %w", err)
	}
	return collectMemories(ctx, result)
}

// GetRecent returns the most recently created memories, newest first.
func (c *Client) GetRecent(ctx context.Context, conversationID int64, limit int) ([]*graph.Memory, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `MATCH (m:Memory)`
	params := map[string]interface{}{"limit": limit}
	if conversationID != 0 {
		query += ` WHERE m.conversation_id = $conversationID`
		params["conversationID"] = conversationID
	}
	query += `
		RETURN m.timestamp AS timestamp,
		       m.user_message AS user_message,
		       m.ai_response AS ai_response,
		       m.topic AS topic,
		       m.conversation_id AS conversation_id,
		       m.created_at AS created_at,
		       0.0 AS similarity
		ORDER BY m.timestamp DESC
		LIMIT $limit`

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("get recent: %w", err)
	}
	return collectMemories(ctx, result)
}

// GetByTimestamp returns the memory node stored under timestamp.
func (c *Client) GetByTimestamp(ctx context.Context, timestamp string) (*graph.Memory, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (m:Memory {timestamp: $timestamp})
		RETURN m.timestamp AS timestamp,
		       m.user_message AS user_message,
		       m.ai_response AS ai_response,
		       m.topic AS topic,
		       m.conversation_id AS conversation_id,
		       m.created_at AS created_at,
		       0.0 AS similarity
	`, map[string]interface{}{"timestamp": timestamp})
	if err != nil {
		return nil, fmt.Errorf("get by timestamp: %w", err)
	}

	memories, err := collectMemories(ctx, result)
	if err != nil {
		return nil, err
	}
	if len(memories) == 0 {
		return nil, fmt.Errorf("no memory node for timestamp %s", timestamp)
	}
	return memories[0], nil
}

// SearchByKeyword returns memories whose messages or topic contain keyword,
// case-insensitively, newest first.
func (c *Client) SearchByKeyword(ctx context.Context, keyword string, conversationID int64, limit int) ([]*graph.Memory, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (m:Memory)
		WHERE (toLower(m.user_message) CONTAINS toLower($keyword)
		    OR toLower(m.ai_response) CONTAINS toLower($keyword)
		    OR toLower(m.topic) CONTAINS toLower($keyword))`
	params := map[string]interface{}{
		"keyword": keyword,
		"limit":   limit,
	}
	if conversationID != 0 {
		query += ` AND m.conversation_id = $conversationID`
		params["conversationID"] = conversationID
	}
	query += `
		RETURN m.timestamp AS timestamp,
		       m.user_message AS user_message,
		       m.ai_response AS ai_response,
		       m.topic AS topic,
		       m.conversation_id AS conversation_id,
		       m.created_at AS created_at,
		       0.0 AS similarity
		ORDER BY m.timestamp DESC
		LIMIT $limit`

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return collectMemories(ctx, result)
}

// Node and relationship counts run as separate queries: a combined
// MATCH/OPTIONAL MATCH multiplies rows, inflating count(r) by the node
// count.
const (
	statsNodeQuery = `
		MATCH (m:Memory)
		RETURN count(m) AS nodes,
		       min(m.timestamp) AS earliest, max(m.timestamp) AS latest`

	statsRelQuery = `
		MATCH (:Memory)-[r:SIMILAR_TO]->(:Memory)
		RETURN count(r) AS rels`
)

// Stats returns graph statistics.
func (c *Client) Stats(ctx context.Context) (*graph.Stats, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	stats := &graph.Stats{
		ConversationCounts: make(map[int64]int64),
	}

	result, err := session.Run(ctx, statsNodeQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	if result.Next(ctx) {
		record := result.Record()
		stats.NodeCount = getInt64(record, "nodes")
		stats.EarliestTimestamp = getString(record, "earliest")
		stats.LatestTimestamp = getString(record, "latest")
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}

	rels, err := session.Run(ctx, statsRelQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("stats relations: %w", err)
	}
	if rels.Next(ctx) {
		// Each logical relation is stored as two directed edges.
		stats.RelationCount = getInt64(rels.Record(), "rels") / 2
	}
	if err := rels.Err(); err != nil {
		return nil, fmt.Errorf("stats relations: %w", err)
	}

	topics, err := session.Run(ctx, `
		MATCH (m:Memory)
		RETURN m.topic AS topic, count(m) AS count
		ORDER BY count DESC
		LIMIT 10
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("stats topics: %w", err)
	}
	for topics.Next(ctx) {
		record := topics.Record()
		stats.TopTopics = append(stats.TopTopics, graph.TopicCount{
			Topic: getString(record, "topic"),
			Count: getInt64(record, "count"),
		})
	}
	if err := topics.Err(); err != nil {
		return nil, fmt.Errorf("stats topics: %w", err)
	}

	conversations, err := session.Run(ctx, `
		MATCH (m:Memory)
		RETURN m.conversation_id AS conversation_id, count(m) AS count
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("stats conversations: %w", err)
	}
	for conversations.Next(ctx) {
		record := conversations.Record()
		stats.ConversationCounts[getInt64(record, "conversation_id")] = getInt64(record, "count")
	}
	if err := conversations.Err(); err != nil {
		return nil, fmt.Errorf("stats conversations: %w", err)
	}

	return stats, nil
}

// ClearAll deletes all memory nodes and their relationships.
func (c *Client) ClearAll(ctx context.Context) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx, `MATCH (m:Memory) DETACH DELETE m`, nil)
	if err != nil {
		return fmt.Errorf("clear all: %w", err)
	}
	return nil
}

// ClearConversation deletes all memories of a conversation and returns
// their timestamps.
func (c *Client) ClearConversation(ctx context.Context, conversationID int64) ([]string, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (m:Memory {conversation_id: $conversationID})
		WITH m, m.timestamp AS timestamp
		DETACH DELETE m
		RETURN timestamp
	`, map[string]interface{}{"conversationID": conversationID})
	if err != nil {
		return nil, fmt.Errorf("clear conversation: %w", err)
	}
	return collectTimestamps(ctx, result)
}

// ClearByKeyword deletes all memories matching keyword and returns their
// timestamps.
func (c *Client) ClearByKeyword(ctx context.Context, keyword string) ([]string, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (m:Memory)
		WHERE toLower(m.user_message) CONTAINS toLower($keyword)
		   OR toLower(m.ai_response) CONTAINS toLower($keyword)
		   OR toLower(m.topic) CONTAINS toLower($keyword)
		WITH m, m.timestamp AS timestamp
		DETACH DELETE m
		RETURN timestamp
	`, map[string]interface{}{"keyword": keyword})
	if err != nil {
		return nil, fmt.Errorf("clear by keyword: %w", err)
	}
	return collectTimestamps(ctx, result)
}

// Close closes the underlying driver.
func (c *Client) Close() error {
	return c.driver.Close(context.Background())
}

func collectMemories(ctx context.Context, result neo4j.ResultWithContext) ([]*graph.Memory, error) {
	var memories []*graph.Memory
	for result.Next(ctx) {
		record := result.Record()
		memories = append(memories, &graph.Memory{
			Timestamp:      getString(record, "timestamp"),
			UserMessage:    getString(record, "user_message"),
			AIResponse:     getString(record, "ai_response"),
			Topic:          getString(record, "topic"),
			ConversationID: getInt64(record, "conversation_id"),
			CreatedAt:      getString(record, "created_at"),
			Similarity:     getFloat64(record, "similarity"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return memories, nil
}

func collectTimestamps(ctx context.Context, result neo4j.ResultWithContext) ([]string, error) {
	var timestamps []string
	for result.Next(ctx) {
		timestamps = append(timestamps, getString(result.Record(), "timestamp"))
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return timestamps, nil
}

func getString(record *neo4j.Record, key string) string {
	if v, ok := record.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getInt64(record *neo4j.Record, key string) int64 {
	if v, ok := record.Get(key); ok {
		if n, ok := v.(int64); ok {
			return n
		}
	}
	return 0
}

func getFloat64(record *neo4j.Record, key string) float64 {
	if v, ok := record.Get(key); ok {
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
	}
	return 0
}
