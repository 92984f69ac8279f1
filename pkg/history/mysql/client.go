// Package mysql provides a MySQL implementation of conversation history
// storage.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/recallkit/recallkit-go/pkg/history"
)

// Client implements history.Store using MySQL as the backend.
type Client struct {
	db *sql.DB
}

// Config contains MySQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// NewClient creates a new MySQL history store client.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
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
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			title VARCHAR(512) NOT NULL,
			description TEXT,
			created_at DATETIME(3) DEFAULT CURRENT_TIMESTAMP(3),
			updated_at DATETIME(3) DEFAULT CURRENT_TIMESTAMP(3),
			settings_json JSON,
			files_json JSON
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_messages (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			conversation_id BIGINT NOT NULL DEFAULT 0,
			timestamp VARCHAR(32) NOT NULL UNIQUE,
			user_message LONGTEXT NOT NULL,
			ai_response LONGTEXT NOT NULL,
			tokens_input INT NOT NULL DEFAULT 0,
			tokens_output INT NOT NULL DEFAULT 0,
			cost DOUBLE NOT NULL DEFAULT 0,
			created_at DATETIME(3) DEFAULT CURRENT_TIMESTAMP(3),
			metadata_json JSON,
			INDEX idx_messages_conversation (conversation_id, timestamp)
		)`,
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
	result, err := c.db.ExecContext(ctx, `
		INSERT INTO conversations (title, description, created_at, updated_at, settings_json, files_json)
		VALUES (?, ?, ?, ?, ?, '[]')
	`, title, description, now, now, settingsJSON)
	if err != nil {
		return nil, fmt.Errorf("CreateConversation: %w", err)
	}

	id, err := result.LastInsertId()
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
		SELECT id, title, coalesce(description, ''), created_at, updated_at,
		       coalesce(settings_json, '{}'), coalesce(files_json, '[]')
		FROM conversations WHERE id = ?
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
		SELECT id, title, coalesce(description, ''), created_at, updated_at,
		       coalesce(settings_json, '{}'), coalesce(files_json, '[]')
		FROM conversations ORDER BY updated_at DESC LIMIT ? OFFSET ?
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
		SET title = ?, description = ?, settings_json = ?, updated_at = ?
		WHERE id = ?
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
		UPDATE conversations SET files_json = ?, updated_at = ? WHERE id = ?
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
		`DELETE FROM conversation_messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("DeleteConversation: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		       tokens_input, tokens_output, cost, created_at, coalesce(metadata_json, '{}')
		FROM conversation_messages
		WHERE conversation_id = ?
		ORDER BY timestamp DESC LIMIT ?
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
		       tokens_input, tokens_output, cost, created_at, coalesce(metadata_json, '{}')
		FROM conversation_messages WHERE timestamp = ?
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
		`SELECT count(*) FROM conversation_messages WHERE conversation_id = ?`,
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

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(timestamps)), ",")
	args := make([]interface{}, len(timestamps))
	for i, ts := range timestamps {
		args[i] = ts
	}

	result, err := c.db.ExecContext(ctx,
		`DELETE FROM conversation_messages WHERE timestamp IN (`+placeholders+`)`, args...)
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
