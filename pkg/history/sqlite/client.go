// Package sqlite provides a SQLite implementation of conversation history
// storage.
//
// SQLite is a lightweight, file-based database suitable for local
// development and single-node deployments. JSON columns are stored as TEXT.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/recallkit/recallkit-go/pkg/history"
)

// Client implements history.Store using SQLite as the backend.
type Client struct {
	db *sql.DB
}

// Config contains configuration for creating a SQLite history store.
type Config struct {
	// DBPath is the path to the SQLite database file. ":memory:" gives an
	// in-memory store.
	DBPath string
}

// NewClient creates a new SQLite history store client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.DBPath != ":memory:" {
		if dir := filepath.Dir(cfg.DBPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	client := &Client{db: db}
	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		settings_json TEXT NOT NULL DEFAULT '{}',
		files_json TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS conversation_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL DEFAULT 0,
		timestamp TEXT NOT NULL UNIQUE,
		user_message TEXT NOT NULL,
		ai_response TEXT NOT NULL,
		tokens_input INTEGER NOT NULL DEFAULT 0,
		tokens_output INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		metadata_json TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON conversation_messages(conversation_id, timestamp);
	`
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initTables: %w", err)
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
		INSERT INTO conversations (title, description, created_at, updated_at, settings_json)
		VALUES (?, ?, ?, ?, ?)
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
		SELECT id, title, description, created_at, updated_at, settings_json, files_json
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
		SELECT id, title, description, created_at, updated_at, settings_json, files_json
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
		       tokens_input, tokens_output, cost, created_at, metadata_json
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
		       tokens_input, tokens_output, cost, created_at, metadata_json
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

	placeholders := strings.Repeat("?,", len(timestamps))
	placeholders = placeholders[:len(placeholders)-1]
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (*history.Conversation, error) {
	var conv history.Conversation
	var settingsJSON, filesJSON string
	err := row.Scan(&conv.ID, &conv.Title, &conv.Description,
		&conv.CreatedAt, &conv.UpdatedAt, &settingsJSON, &filesJSON)
	if err == sql.ErrNoRows {
		return nil, history.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if err := unmarshalMap(settingsJSON, &conv.Settings); err != nil {
		return nil, fmt.Errorf("scan conversation settings: %w", err)
	}
	if err := unmarshalFiles(filesJSON, &conv.Files); err != nil {
		return nil, fmt.Errorf("scan conversation files: %w", err)
	}
	return &conv, nil
}

func scanMessages(rows *sql.Rows) ([]*history.Message, error) {
	var messages []*history.Message
	for rows.Next() {
		var msg history.Message
		var metadataJSON string
		err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Timestamp,
			&msg.UserMessage, &msg.AIResponse, &msg.TokensInput,
			&msg.TokensOutput, &msg.Cost, &msg.CreatedAt, &metadataJSON)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := unmarshalMap(metadataJSON, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("scan message metadata: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

func reverseMessages(messages []*history.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

func requireRow(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func marshalMap(m map[string]interface{}) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalMap(data string, m *map[string]interface{}) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), m)
}

func marshalFiles(files []string) (string, error) {
	if files == nil {
		return "[]", nil
	}
	data, err := json.Marshal(files)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalFiles(data string, files *[]string) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), files)
}
