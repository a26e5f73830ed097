package storage

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a backend after Close.
var ErrClosed = errors.New("storage backend closed")

// ErrNilEntry is returned when a nil ledger entry is inserted.
var ErrNilEntry = errors.New("ledger entry cannot be nil")

// StorageError represents a failure in a storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "postgres", "redis", "memory")
	Operation string // Operation that failed ("get_cap", "insert_entry", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}
