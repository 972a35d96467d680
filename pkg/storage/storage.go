// Package storage defines the named-store key-value API the cache layer
// persists into. Each generation owns one named store; stores are created by
// Open and removed whole by Delete.
package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the key has no value in the store.
	ErrNotFound = errors.New("key not found")

	// ErrStoreDeleted indicates the store was deleted after it was opened.
	// Writes through a stale handle never recreate a deleted store.
	ErrStoreDeleted = errors.New("store deleted")
)

// Storage is a container of named stores.
type Storage interface {
	// Open returns the store with the given name, creating it if needed.
	Open(ctx context.Context, name string) (Store, error)

	// Names lists every store currently present, sorted.
	Names(ctx context.Context) ([]string, error)

	// Delete removes a store and all of its entries.
	// It reports whether a store with that name existed.
	Delete(ctx context.Context, name string) (bool, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Store is a single named key-value store.
type Store interface {
	// Name returns the store name.
	Name() string

	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the value for key as a whole.
	Put(ctx context.Context, key string, value []byte) error
}

// Error describes a failed backend operation.
type Error struct {
	Op    string
	Store string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Store == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Store, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// ValidateName rejects store names no backend can address.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("store name is required")
	}
	return nil
}
