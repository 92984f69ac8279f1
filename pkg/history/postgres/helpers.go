package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/recallkit/recallkit-go/pkg/history"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (*history.Conversation, error) {
	var conv history.Conversation
	var settingsJSON, filesJSON []byte
	err := row.Scan(&conv.ID, &conv.Title, &conv.Description,
		&conv.CreatedAt, &conv.UpdatedAt, &settingsJSON, &filesJSON)
	if err == sql.ErrNoRows {
		return nil, history.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if err := json.Unmarshal(settingsJSON, &conv.Settings); err != nil {
		return nil, fmt.Errorf("scan conversation settings: %w", err)
	}
	if err := json.Unmarshal(filesJSON, &conv.Files); err != nil {
		return nil, fmt.Errorf("scan conversation files: %w", err)
	}
	return &conv, nil
}

func scanMessages(rows *sql.Rows) ([]*history.Message, error) {
	var messages []*history.Message
	for rows.Next() {
		var msg history.Message
		var metadataJSON []byte
		err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Timestamp,
			&msg.UserMessage, &msg.AIResponse, &msg.TokensInput,
			&msg.TokensOutput, &msg.Cost, &msg.CreatedAt, &metadataJSON)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
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
