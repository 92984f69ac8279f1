package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/recallkit/recallkit-go/pkg/history"
)

func TestMemoryErrorFormat(t *testing.T) {
	err := NewMemoryError("SaveTurn", ErrProviderUnavailable)
	assert.Equal(t, "recallkit: SaveTurn: provider unavailable", err.Error())
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestNewMemoryErrorNil(t *testing.T) {
	assert.NoError(t, NewMemoryError("SaveTurn", nil))
}

func TestHistoryErrorTranslatesNotFound(t *testing.T) {
	err := historyError("GetContext", history.ErrConversationNotFound)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	reset := errors.New("connection reset")
	assert.ErrorIs(t, historyError("GetContext", reset), reset)
}

func TestStorageErrorTagsSentinel(t *testing.T) {
	cause := errors.New("disk full")
	err := storageError("ClearAll", cause)
	assert.ErrorIs(t, err, ErrStorageOperation)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "recallkit: ClearAll:")
}

func TestMemoryErrorUnwrapChain(t *testing.T) {
	inner := errors.New("disk full")
	err := NewMemoryError("Statistics", NewMemoryError("Stats", inner))
	assert.ErrorIs(t, err, inner)

	var memErr *MemoryError
	assert.ErrorAs(t, err, &memErr)
	assert.Equal(t, "Statistics", memErr.Op)
}
