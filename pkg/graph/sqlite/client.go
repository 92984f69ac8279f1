// Package sqlite provides an embedded graph store backed by SQLite.
//
// It mirrors the Neo4j store's model with two tables: one row per memory
// node and two directed relation rows per logical SIMILAR_TO edge.
// Traversal and path checks run as bounded breadth-first searches in Go.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	"github.com/recallkit/recallkit-go/pkg/graph"
)

// Client implements graph.Store on SQLite.
type Client struct {
	db     *sql.DB
	policy *graph.RelationPolicy
	logger *log.Logger
}

// Config contains configuration for creating a SQLite graph store.
type Config struct {
	// DBPath is the database file location (required). ":memory:" gives an
	// in-memory store.
	DBPath string

	// Policy decides which candidates become relations (required).
	Policy *graph.RelationPolicy

	// Logger is the logger to use (a default is created if nil).
	Logger *log.Logger
}

// NewClient creates a SQLite graph store and ensures the schema exists.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("relation policy is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.WithPrefix("graph")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	c := &Client{
		db:     db,
		policy: cfg.Policy,
		logger: logger,
	}
	if err := c.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		timestamp TEXT PRIMARY KEY,
		user_message TEXT NOT NULL,
		ai_response TEXT NOT NULL,
		topic TEXT NOT NULL,
		conversation_id INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_conversation ON memories(conversation_id);

	CREATE TABLE IF NOT EXISTS relations (
		from_timestamp TEXT NOT NULL,
		to_timestamp TEXT NOT NULL,
		similarity REAL NOT NULL,
		cross_conversation INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (from_timestamp, to_timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(from_timestamp);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// CreateWithRelations creates a memory node and links it to accepted
// candidates. Candidates already reachable within the policy's path depth
// are skipped.
func (c *Client) CreateWithRelations(ctx context.Context, userMessage, aiResponse, timestamp string, conversationID int64, candidates []*graph.Candidate) (string, error) {
	topic := graph.ExtractTopic(userMessage + " " + aiResponse)

	_, err := c.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO memories
			(timestamp, user_message, ai_response, topic, conversation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, timestamp, graph.Preview(userMessage), graph.Preview(aiResponse), topic,
		conversationID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("create memory node: %w", err)
	}

	for _, cand := range candidates {
		cross := cand.ConversationID != conversationID
		if !c.policy.ShouldLink(cand.Similarity, cross) {
			continue
		}

		connected, err := c.pathExists(ctx, timestamp, cand.Timestamp, c.policy.MaxPathDepth)
		if err != nil {
			c.logger.Warn("path check failed, skipping relation",
				"timestamp", timestamp, "candidate", cand.Timestamp, "error", err)
			continue
		}
		if connected {
			continue
		}

		if err := c.link(ctx, timestamp, cand.Timestamp, cand.Similarity, cross); err != nil {
			c.logger.Warn("relation creation failed",
				"timestamp", timestamp, "candidate", cand.Timestamp, "error", err)
		}
	}

	return topic, nil
}

// pathExists runs a breadth-first search from a, at most maxDepth hops,
// looking for b.
func (c *Client) pathExists(ctx context.Context, a, b string, maxDepth int) (bool, error) {
	if a == b {
		return true, nil
	}

	visited := map[string]struct{}{a: {}}
	frontier := []string{a}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, node := range frontier {
			neighbors, err := c.neighbors(ctx, node)
			if err != nil {
				return false, err
			}
			for ts := range neighbors {
				if ts == b {
					return true, nil
				}
				if _, seen := visited[ts]; seen {
					continue
				}
				visited[ts] = struct{}{}
				next = append(next, ts)
			}
		}
		frontier = next
	}
	return false, nil
}

// neighbors returns the adjacent timestamps of node with their edge weights.
func (c *Client) neighbors(ctx context.Context, node string) (map[string]float64, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT to_timestamp, similarity FROM relations WHERE from_timestamp = ?`, node)
	if err != nil {
		return nil, fmt.Errorf("query neighbors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	neighbors := make(map[string]float64)
	for rows.Next() {
		var ts string
		var sim float64
		if err := rows.Scan(&ts, &sim); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		neighbors[ts] = sim
	}
	return neighbors, rows.Err()
}

// link inserts the directed relation row pair.
func (c *Client) link(ctx context.Context, a, b string, similarity float64, cross bool) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt := `
		INSERT INTO relations (from_timestamp, to_timestamp, similarity, cross_conversation)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(from_timestamp, to_timestamp)
		DO UPDATE SET similarity = excluded.similarity, cross_conversation = excluded.cross_conversation
	`
	crossFlag := 0
	if cross {
		crossFlag = 1
	}
	if _, err := tx.ExecContext(ctx, stmt, a, b, similarity, crossFlag); err != nil {
		return fmt.Errorf("insert relation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, stmt, b, a, similarity, crossFlag); err != nil {
		return fmt.Errorf("insert reverse relation: %w", err)
	}
	return tx.Commit()
}

// GetRelated runs a bounded breadth-first search from the memory at
// timestamp. Path weight is the product of edge similarities along the path
// that reached each memory; the strongest path wins.
func (c *Client) GetRelated(ctx context.Context, timestamp string, opts *graph.RelatedOptions) ([]*graph.Memory, error) {
	weights := map[string]float64{timestamp: 1.0}
	frontier := []string{timestamp}

	for depth := 0; depth < opts.Depth && len(frontier) > 0; depth++ {
		var next []string
		for _, node := range frontier {
			neighbors, err := c.neighbors(ctx, node)
			if err != nil {
				return nil, err
			}
			for ts, sim := range neighbors {
				weight := weights[node] * sim
				if weight <= weights[ts] {
					continue
				}
				// Improved paths are re-expanded so the best weight
				// propagates through later hops too.
				weights[ts] = weight
				next = append(next, ts)
			}
		}
		frontier = next
	}
	delete(weights, timestamp)

	var memories []*graph.Memory
	for ts, weight := range weights {
		if weight < opts.MinSimilarity {
			continue
		}
		mem, err := c.GetByTimestamp(ctx, ts)
		if err != nil {
			continue
		}
		if opts.ConversationID != 0 && mem.ConversationID != opts.ConversationID && !opts.IncludeCrossConversation {
			continue
		}
		mem.Similarity = weight
		memories = append(memories, mem)
	}

	// Same-conversation memories outrank cross-conversation ones in a scoped
	// traversal; within each group the strongest path wins.
	sort.Slice(memories, func(a, b int) bool {
		if opts.ConversationID != 0 {
			sameA := memories[a].ConversationID == opts.ConversationID
			sameB := memories[b].ConversationID == opts.ConversationID
			if sameA != sameB {
				return sameA
			}
		}
		return memories[a].Similarity > memories[b].Similarity
	})
	if opts.Limit > 0 && len(memories) > opts.Limit {
		memories = memories[:opts.Limit]
	}
	return memories, nil
}

// GetRecent returns the most recently created memories, newest first.
func (c *Client) GetRecent(ctx context.Context, conversationID int64, limit int) ([]*graph.Memory, error) {
	query := `SELECT timestamp, user_message, ai_response, topic, conversation_id, created_at FROM memories`
	args := []interface{}{}
	if conversationID != 0 {
		query += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get recent: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMemories(rows)
}

// GetByTimestamp returns the memory node stored under timestamp.
func (c *Client) GetByTimestamp(ctx context.Context, timestamp string) (*graph.Memory, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT timestamp, user_message, ai_response, topic, conversation_id, created_at
		FROM memories WHERE timestamp = ?
	`, timestamp)

	var mem graph.Memory
	err := row.Scan(&mem.Timestamp, &mem.UserMessage, &mem.AIResponse,
		&mem.Topic, &mem.ConversationID, &mem.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no memory node for timestamp %s", timestamp)
	}
	if err != nil {
		return nil, fmt.Errorf("get by timestamp: %w", err)
	}
	return &mem, nil
}

// SearchByKeyword returns memories whose messages or topic contain keyword,
// case-insensitively, newest first.
func (c *Client) SearchByKeyword(ctx context.Context, keyword string, conversationID int64, limit int) ([]*graph.Memory, error) {
	pattern := "%" + keyword + "%"
	query := `
		SELECT timestamp, user_message, ai_response, topic, conversation_id, created_at
		FROM memories
		WHERE (user_message LIKE ? COLLATE NOCASE
		    OR ai_response LIKE ? COLLATE NOCASE
		    OR topic LIKE ? COLLATE NOCASE)`
	args := []interface{}{pattern, pattern, pattern}
	if conversationID != 0 {
		query += ` AND conversation_id = ?`
		args = append(args, conversationID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMemories(rows)
}

// Stats returns graph statistics.
func (c *Client) Stats(ctx context.Context) (*graph.Stats, error) {
	stats := &graph.Stats{
		ConversationCounts: make(map[int64]int64),
	}

	row := c.db.QueryRowContext(ctx, `
		SELECT count(*), coalesce(min(timestamp), ''), coalesce(max(timestamp), '')
		FROM memories
	`)
	if err := row.Scan(&stats.NodeCount, &stats.EarliestTimestamp, &stats.LatestTimestamp); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}

	// Each logical relation is stored as two directed rows.
	row = c.db.QueryRowContext(ctx, `SELECT count(*) / 2 FROM relations`)
	if err := row.Scan(&stats.RelationCount); err != nil {
		return nil, fmt.Errorf("stats relations: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT topic, count(*) AS count FROM memories
		GROUP BY topic ORDER BY count DESC LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("stats topics: %w", err)
	}
	for rows.Next() {
		var tc graph.TopicCount
		if err := rows.Scan(&tc.Topic, &tc.Count); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		stats.TopTopics = append(stats.TopTopics, tc)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	rows, err = c.db.QueryContext(ctx, `
		SELECT conversation_id, count(*) FROM memories GROUP BY conversation_id
	`)
	if err != nil {
		return nil, fmt.Errorf("stats conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id, count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan conversation count: %w", err)
		}
		stats.ConversationCounts[id] = count
	}
	return stats, rows.Err()
}

// ClearAll deletes all memory nodes and relations.
func (c *Client) ClearAll(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM relations`); err != nil {
		return fmt.Errorf("clear relations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return fmt.Errorf("clear memories: %w", err)
	}
	return tx.Commit()
}

// ClearConversation deletes all memories of a conversation and returns
// their timestamps.
func (c *Client) ClearConversation(ctx context.Context, conversationID int64) ([]string, error) {
	timestamps, err := c.collectTimestamps(ctx,
		`SELECT timestamp FROM memories WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return nil, err
	}
	return timestamps, c.deleteTimestamps(ctx, timestamps)
}

// ClearByKeyword deletes all memories matching keyword and returns their
// timestamps.
func (c *Client) ClearByKeyword(ctx context.Context, keyword string) ([]string, error) {
	pattern := "%" + keyword + "%"
	timestamps, err := c.collectTimestamps(ctx, `
		SELECT timestamp FROM memories
		WHERE user_message LIKE ? COLLATE NOCASE
		   OR ai_response LIKE ? COLLATE NOCASE
		   OR topic LIKE ? COLLATE NOCASE
	`, pattern, pattern, pattern)
	if err != nil {
		return nil, err
	}
	return timestamps, c.deleteTimestamps(ctx, timestamps)
}

// Close closes the underlying database.
func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) collectTimestamps(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("collect timestamps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var timestamps []string
	for rows.Next() {
		var ts string
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan timestamp: %w", err)
		}
		timestamps = append(timestamps, ts)
	}
	return timestamps, rows.Err()
}

func (c *Client) deleteTimestamps(ctx context.Context, timestamps []string) error {
	if len(timestamps) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, ts := range timestamps {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM relations WHERE from_timestamp = ? OR to_timestamp = ?`, ts, ts); err != nil {
			return fmt.Errorf("delete relations: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE timestamp = ?`, ts); err != nil {
			return fmt.Errorf("delete memory: %w", err)
		}
	}
	return tx.Commit()
}

func scanMemories(rows *sql.Rows) ([]*graph.Memory, error) {
	var memories []*graph.Memory
	for rows.Next() {
		var mem graph.Memory
		if err := rows.Scan(&mem.Timestamp, &mem.UserMessage, &mem.AIResponse,
			&mem.Topic, &mem.ConversationID, &mem.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, &mem)
	}
	return memories, rows.Err()
}
