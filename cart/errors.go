package cart

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is().
// These are generic errors that can be wrapped with additional context.
//
// Note that the command surface of Store never reports missing-id or
// failed-precondition conditions to callers; those degrade to silent
// no-ops. The not-found sentinels below classify internal conditions
// (snapshot slots, configuration) and are surfaced by the persistence
// layer only.
var (
	// Cart state conditions
	ErrCartNotFound  = errors.New("cart not found")
	ErrItemNotFound  = errors.New("cart item not found")
	ErrNoPendingSwap = errors.New("item has no pending swap")

	// Persistence conditions
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Network errors
	ErrConnectionFailed = errors.New("connection failed")
)

// StoreError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type StoreError struct {
	Op      string // Operation that failed (e.g., "store.AcceptSwap")
	Kind    string // Error kind (e.g., "cart", "snapshot", "config")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error.
func (e *StoreError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, kind string, err error) *StoreError {
	return &StoreError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsNotFound checks if an error represents a "not found" condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCartNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrSnapshotNotFound)
}

// IsConfigurationError checks if an error is configuration-related.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}
