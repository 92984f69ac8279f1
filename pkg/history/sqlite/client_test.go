package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recallkit-go/pkg/history"
	"github.com/recallkit/recallkit-go/pkg/history/sqlite"
)

func newTestClient(t *testing.T) *sqlite.Client {
	t.Helper()
	client, err := sqlite.NewClient(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "history.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	conv, err := client.CreateConversation(ctx, "Trip planning", "two weeks in Japan",
		map[string]interface{}{"language": "en"})
	require.NoError(t, err)
	assert.NotZero(t, conv.ID)

	loaded, err := client.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Trip planning", loaded.Title)
	assert.Equal(t, "two weeks in Japan", loaded.Description)
	assert.Equal(t, "en", loaded.Settings["language"])

	err = client.UpdateConversation(ctx, conv.ID, "Japan trip", "updated", nil)
	require.NoError(t, err)

	err = client.UpdateConversationFiles(ctx, conv.ID, []string{"itinerary.pdf"})
	require.NoError(t, err)

	loaded, err = client.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Japan trip", loaded.Title)
	assert.Equal(t, []string{"itinerary.pdf"}, loaded.Files)

	err = client.DeleteConversation(ctx, conv.ID)
	require.NoError(t, err)

	_, err = client.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, history.ErrConversationNotFound)
}

func TestConversationNotFound(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.GetConversation(ctx, 12345)
	assert.ErrorIs(t, err, history.ErrConversationNotFound)

	err = client.UpdateConversation(ctx, 12345, "t", "d", nil)
	assert.ErrorIs(t, err, history.ErrConversationNotFound)

	err = client.DeleteConversation(ctx, 12345)
	assert.ErrorIs(t, err, history.ErrConversationNotFound)
}

func TestListConversations(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	for i := 0; i < 3; i++ {
		_, err := client.CreateConversation(ctx, "conv", "", nil)
		require.NoError(t, err)
	}

	conversations, total, err := client.ListConversations(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, conversations, 2)

	conversations, total, err = client.ListConversations(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, conversations, 1)
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	conv, err := client.CreateConversation(ctx, "chat", "", nil)
	require.NoError(t, err)

	timestamps := []string{
		"2026-08-28 10:00:00.0000001",
		"2026-08-28 10:01:00.0000002",
		"2026-08-28 10:02:00.0000003",
	}
	for i, ts := range timestamps {
		err := client.SaveMessage(ctx, &history.Message{
			ConversationID: conv.ID,
			Timestamp:      ts,
			UserMessage:    "question",
			AIResponse:     "answer",
			TokensInput:    100 + i,
			TokensOutput:   50,
			Cost:           0.001,
			Metadata:       map[string]interface{}{"model": "gpt"},
		})
		require.NoError(t, err)
	}

	count, err := client.CountMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Latest two, oldest first.
	messages, err := client.GetRecentMessages(ctx, conv.ID, 2, true)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, timestamps[1], messages[0].Timestamp)
	assert.Equal(t, timestamps[2], messages[1].Timestamp)

	// Newest first without ascending.
	messages, err = client.GetRecentMessages(ctx, conv.ID, 2, false)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, timestamps[2], messages[0].Timestamp)

	msg, err := client.GetMessageByTimestamp(ctx, timestamps[0])
	require.NoError(t, err)
	assert.Equal(t, 100, msg.TokensInput)
	assert.Equal(t, "gpt", msg.Metadata["model"])

	_, err = client.GetMessageByTimestamp(ctx, "missing")
	assert.ErrorIs(t, err, history.ErrMessageNotFound)
}

func TestDeleteMessages(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	conv, err := client.CreateConversation(ctx, "chat", "", nil)
	require.NoError(t, err)

	for _, ts := range []string{"ts-1", "ts-2", "ts-3"} {
		err := client.SaveMessage(ctx, &history.Message{
			ConversationID: conv.ID,
			Timestamp:      ts,
			UserMessage:    "q",
			AIResponse:     "a",
		})
		require.NoError(t, err)
	}

	removed, err := client.DeleteMessages(ctx, []string{"ts-1", "ts-3", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	count, err := client.CountMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	conv, err := client.CreateConversation(ctx, "chat", "", nil)
	require.NoError(t, err)
	err = client.SaveMessage(ctx, &history.Message{
		ConversationID: conv.ID,
		Timestamp:      "ts-1",
		UserMessage:    "q",
		AIResponse:     "a",
	})
	require.NoError(t, err)

	require.NoError(t, client.DeleteConversation(ctx, conv.ID))

	count, err := client.CountMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
