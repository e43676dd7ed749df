package cache

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	// ErrClosed indicates the cache has been closed.
	ErrClosed = errors.New("cache closed")

	// ErrInvalidKey indicates a malformed cache key.
	ErrInvalidKey = errors.New("invalid cache key")
)

// PersistenceError wraps a failure in the durable backing store. A
// PersistenceError from Put means the in-memory insert was rolled back.
type PersistenceError struct {
	Op    string
	Key   string
	Cause error
}

// Error returns the error message.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("cache persistence %s failed for key %q: %v", e.Op, e.Key, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *PersistenceError) Unwrap() error {
	return e.Cause
}
