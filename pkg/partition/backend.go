package partition

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMiss indicates the requested key was not found in the partition.
	ErrMiss = errors.New("cache miss")

	// ErrNotCacheable indicates an attempt to store a snapshot that is not a
	// full-content (status 200) response.
	ErrNotCacheable = errors.New("entry is not a full-content response")
)

// Backend is a named key→response store. Implementations must be safe for
// concurrent use; conflicting writes to the same key resolve last-write-wins.
//
// Get and Put against a partition name that was never opened behave as if the
// partition were created lazily: Put creates it, Get reports ErrMiss.
type Backend interface {
	// Open creates the named partition if absent. Idempotent: opening an
	// existing name reopens it and preserves its entries.
	Open(ctx context.Context, name string) error

	// Get returns the entry stored under key, or ErrMiss.
	Get(ctx context.Context, name, key string) (*Entry, error)

	// Put stores the entry under key, overwriting any previous entry.
	Put(ctx context.Context, name, key string, entry *Entry) error

	// Names lists all existing partition names.
	Names(ctx context.Context) ([]string, error)

	// Drop deletes the named partition and all its entries.
	// Dropping an absent name is a no-op.
	Drop(ctx context.Context, name string) error
}

// StorageError wraps a backend failure with the operation and partition it
// occurred on. Storage errors are never fatal to request handling; callers
// log them and proceed as if the operation were a miss or no-op.
type StorageError struct {
	Op        string
	Partition string
	Err       error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Partition != "" {
		return fmt.Sprintf("partition storage %s error on %q: %v", e.Op, e.Partition, e.Err)
	}
	return fmt.Sprintf("partition storage %s error: %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StorageError) Unwrap() error {
	return e.Err
}
