// Package store defines the key-value store contract shared by the
// render cache and the deduplication gate, plus its providers.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced by every provider.
var (
	// ErrNotFound means the key is absent or its TTL has elapsed.
	ErrNotFound = errors.New("store: key not found")
	// ErrAlreadyExists means a conditional create lost to a live entry.
	ErrAlreadyExists = errors.New("store: key already exists")
)

// KV is a durable, low-latency key-value store with TTL semantics.
// Every call may fail; callers degrade as if the store were empty.
type KV interface {
	// Get returns the live value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes the value, resetting the TTL from now.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// ConditionalCreate writes the value only when no unexpired entry
	// exists for key, returning ErrAlreadyExists otherwise.
	ConditionalCreate(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the entry for key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error
}
