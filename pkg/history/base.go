// Package history provides interfaces for conversation history storage.
//
// The history store is the relational system of record: it owns
// conversations and the full text of every turn. The vector and graph
// stores only hold derived data keyed by the same timestamps.
package history

import (
	"context"
	"errors"
	"time"
)

// ErrConversationNotFound is returned when a conversation ID does not
// exist.
var ErrConversationNotFound = errors.New("history: conversation not found")

// ErrMessageNotFound is returned when no message exists for a timestamp.
var ErrMessageNotFound = errors.New("history: message not found")

// Conversation is a stored conversation.
type Conversation struct {
	ID          int64
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Settings holds arbitrary per-conversation settings, persisted as
	// JSON.
	Settings map[string]interface{}

	// Files lists file references attached to the conversation, persisted
	// as JSON.
	Files []string
}

// Message is one stored conversation turn.
type Message struct {
	ID             int64
	ConversationID int64

	// Timestamp is the unique memory key shared with the vector and graph
	// stores.
	Timestamp string

	UserMessage string
	AIResponse  string

	// Token and cost accounting for the turn.
	TokensInput  int
	TokensOutput int
	Cost         float64

	CreatedAt time.Time

	// Metadata holds arbitrary per-turn metadata, persisted as JSON.
	Metadata map[string]interface{}
}

// Store defines the interface for history stores.
type Store interface {
	// CreateConversation creates a conversation and returns it with its
	// assigned ID.
	CreateConversation(ctx context.Context, title, description string, settings map[string]interface{}) (*Conversation, error)

	// GetConversation returns the conversation with the given ID, or
	// ErrConversationNotFound.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)

	// ListConversations returns conversations newest first, limit rows
	// starting at offset, plus the total conversation count.
	ListConversations(ctx context.Context, offset, limit int) ([]*Conversation, int, error)

	// UpdateConversation updates title, description and settings of a
	// conversation.
	UpdateConversation(ctx context.Context, id int64, title, description string, settings map[string]interface{}) error

	// UpdateConversationFiles replaces the file references of a
	// conversation.
	UpdateConversationFiles(ctx context.Context, id int64, files []string) error

	// DeleteConversation deletes a conversation and all its messages.
	DeleteConversation(ctx context.Context, id int64) error

	// SaveMessage stores one conversation turn.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetRecentMessages returns the latest limit messages of a
	// conversation. With ascending true they are returned oldest first,
	// otherwise newest first.
	GetRecentMessages(ctx context.Context, conversationID int64, limit int, ascending bool) ([]*Message, error)

	// GetMessageByTimestamp returns the message stored under timestamp, or
	// ErrMessageNotFound.
	GetMessageByTimestamp(ctx context.Context, timestamp string) (*Message, error)

	// CountMessages returns the number of messages in a conversation.
	CountMessages(ctx context.Context, conversationID int64) (int, error)

	// DeleteMessages deletes the messages with the given timestamps and
	// returns how many were removed.
	DeleteMessages(ctx context.Context, timestamps []string) (int, error)

	// Close closes the store and releases resources.
	Close() error
}
