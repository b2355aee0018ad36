// Package store provides the key-value persistence abstraction used by all
// kaiwabot state: conversation contexts and the event dedup window. Backends
// are interchangeable; the core never depends on a concrete engine.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Get when no value exists for the key.
var ErrKeyNotFound = errors.New("key not found")

// ErrStoreUnavailable wraps backend failures. Callers distinguish "absent"
// from "the store is broken" by checking for this error.
var ErrStoreUnavailable = errors.New("store unavailable")

// KeyValueStore is the persistence contract consumed by the session manager
// and the event deduplicator. All operations are bounded by the supplied
// context; a ttl of zero means the entry never expires.
type KeyValueStore interface {
	// Get returns the value for key, or ErrKeyNotFound when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any existing entry and resetting
	// its expiry to ttl from now.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value under key only if the key is currently absent.
	// Returns true if the value was stored. The check-and-set is atomic with
	// respect to concurrent SetNX calls for the same key.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes the entry for key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
