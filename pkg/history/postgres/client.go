// Package postgres provides a PostgreSQL implementation of conversation
// history storage.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/recallkit/recallkit-go/pkg/history"
)

// Client implements history.Store using PostgreSQL as the backend.
type Client struct {
	db *sql.DB
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewClient creates a new PostgreSQL history store client.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{db: db}
	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT now(),
			updated_at TIMESTAMPTZ DEFAULT now(),
			settings_json JSONB NOT NULL DEFAULT '{}',
			files_json JSONB NOT NULL DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_messages (
			id BIGSERIAL PRIMARY KEY,
			conversation_id BIGINT NOT NULL DEFAULT 0,
			timestamp TEXT NOT NULL UNIQUE,
			user_message TEXT NOT NULL,
			ai_response TEXT NOT NULL,
			tokens_input INT NOT NULL DEFAULT 0,
			tokens_output INT NOT NULL DEFAULT 0,
			cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT now(),
			metadata_json JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON conversation_messages(conversation_id, timestamp)`,
	}
	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}
	return nil
}

// CreateConversation creates a conversation and returns it with its ID.
func (c *Client) CreateConversation(ctx context.Context, title, description string, settings map[string]interface{}) (*history.Conversation, error) {
	settingsJSON, err := marshalMap(settings)
	if err != nil {
		return nil, fmt.Errorf("CreateConversation: %w", err)
	}

	now := time.Now().UTC()
	var id int64
	err = c.db.QueryRowContext(ctx, `
		INSERT INTO conversations (title, description, created_at, updated_at, settings_json)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, title, description, now, now, settingsJSON).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("CreateConversation: %w", err)
	}

	return &history.Conversation{
		ID:          id,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Settings:    settings,
	}, nil
}

// GetConversation returns the conversation with the given ID.
func (c *Client) GetConversation(ctx context.Context, id int64) (*history.Conversation, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, title, description, created_at, updated_at, settings_json, files_json
		FROM conversations WHERE id = $1
	`, id)
	return scanConversation(row)
}

// ListConversations returns conversations newest first plus the total count.
func (c *Client) ListConversations(ctx context.Context, offset, limit int) ([]*history.Conversation, int, error) {
	var total int
	if err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM conversations`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListConversations: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, description, created_at, updated_at, settings_json, files_json
		FROM conversations ORDER BY updated_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ListConversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conversations []*history.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, 0, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, total, rows.Err()
}

// UpdateConversation updates title, description and settings.
func (c *Client) UpdateConversation(ctx context.Context, id int64, title, description string, settings map[string]interface{}) error {
	settingsJSON, err := marshalMap(settings)
	if err != nil {
		return fmt.Errorf("UpdateConversation: %w", err)
	}

	result, err := c.db.ExecContext(ctx, `
		UPDATE conversations
		SET title = $1, description = $2, settings_json = $3, updated_at = $4
		WHERE id = $5
	`, title, description, settingsJSON, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("UpdateConversation: %w", err)
	}
	return requireRow(result, history.ErrConversationNotFound)
}

// UpdateConversationFiles replaces the file references of a conversation.
func (c *Client) UpdateConversationFiles(ctx context.Context, id int64, files []string) error {
	filesJSON, err := marshalFiles(files)
	if err != nil {
		return fmt.Errorf("UpdateConversationFiles: %w", err)
	}

	result, err := c.db.ExecContext(ctx, `
		UPDATE conversations SET files_json = $1, updated_at = $2 WHERE id = $3
	`, filesJSON, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("UpdateConversationFiles: %w", err)
	}
	return requireRow(result, history.ErrConversationNotFound)
}

// DeleteConversation deletes a conversation and all its messages.
func (c *Client) DeleteConversation(ctx context.Context, id int64) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("DeleteConversation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversation_messages WHERE conversation_id = $1`, id); err != nil {
		return fmt.Errorf("DeleteConversation: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteConversation: %w", err)
	}
	if err := requireRow(result, history.ErrConversationNotFound); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveMessage stores one conversation turn.
func (c *Client) SaveMessage(ctx context.Context, msg *history.Message) error {
	metadataJSON, err := marshalMap(msg.Metadata)
	if err != nil {
		return fmt.Errorf("SaveMessage: %w", err)
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO conversation_messages
			(conversation_id, timestamp, user_message, ai_response,
			 tokens_input, tokens_output, cost, created_at, metadata_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, msg.ConversationID, msg.Timestamp, msg.UserMessage, msg.AIResponse,
		msg.TokensInput, msg.TokensOutput, msg.Cost, createdAt, metadataJSON)
	if err != nil {
		return fmt.Errorf("SaveMessage: %w", err)
	}
	return nil
}

// GetRecentMessages returns the latest limit messages of a conversation.
func (c *Client) GetRecentMessages(ctx context.Context, conversationID int64, limit int, ascending bool) ([]*history.Message, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, conversation_id, timestamp, user_message, ai_response,
		       tokens_input, tokens_output, cost, created_at, metadata_json
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY timestamp DESC LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("GetRecentMessages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if ascending {
		reverseMessages(messages)
	}
	return messages, nil
}

// GetMessageByTimestamp returns the message stored under timestamp.
func (c *Client) GetMessageByTimestamp(ctx context.Context, timestamp string) (*history.Message, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, conversation_id, timestamp, user_message, ai_response,
		       tokens_input, tokens_output, cost, created_at, metadata_json
		FROM conversation_messages WHERE timestamp = $1
	`, timestamp)
	if err != nil {
		return nil, fmt.Errorf("GetMessageByTimestamp: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, history.ErrMessageNotFound
	}
	return messages[0], nil
}

// CountMessages returns the number of messages in a conversation.
func (c *Client) CountMessages(ctx context.Context, conversationID int64) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT count(*) FROM conversation_messages WHERE conversation_id = $1`,
		conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("CountMessages: %w", err)
	}
	return count, nil
}

// DeleteMessages deletes the messages with the given timestamps.
func (c *Client) DeleteMessages(ctx context.Context, timestamps []string) (int, error) {
	if len(timestamps) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(timestamps))
	args := make([]interface{}, len(timestamps))
	for i, ts := range timestamps {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = ts
	}

	result, err := c.db.ExecContext(ctx,
		`DELETE FROM conversation_messages WHERE timestamp IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("DeleteMessages: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteMessages: %w", err)
	}
	return int(affected), nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}
