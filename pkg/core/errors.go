// Package core provides the RecallKit memory orchestrator and its configuration.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested memory was not found.
	ErrNotFound = errors.New("memory not found")

	// ErrConversationNotFound indicates that a referenced conversation does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderUnavailable indicates that the embedding or rerank provider
	// is down or timed out.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrStorageOperation indicates that a storage operation failed.
	ErrStorageOperation = errors.New("storage operation failed")

	// ErrInconsistentStores indicates that the vector store and graph store
	// record counts diverge. Reported only; never repaired automatically.
	ErrInconsistentStores = errors.New("vector and graph stores are inconsistent")
)

// MemoryError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &MemoryError{
//	    Op:  "SaveTurn",
//	    Err: ErrProviderUnavailable,
//	}
//	// Error() returns: "recallkit: SaveTurn: provider unavailable"
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "recallkit: <Op>: <Err>"
func (e *MemoryError) Error() string {
	return fmt.Sprintf("recallkit: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with MemoryError.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError creates a new MemoryError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewMemoryError("SaveTurn", err)
//	}
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{
		Op:  op,
		Err: err,
	}
}
