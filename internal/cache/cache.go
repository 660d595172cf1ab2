// Package cache provides named, TTL-bounded key/value stores shared by the
// pipeline stages. Two backends exist: an in-process FIFO-bounded map and a
// Redis-backed store. Caching is best effort: no store operation ever
// returns an error to its caller, failures are counted and logged instead.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrBackend marks a failure of the underlying cache backend. It is only
// used for logging and stats; it never escapes a Store.
var ErrBackend = errors.New("cache backend error")

// Backend selects the storage implementation used by a Manager
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Store is the contract every cache backend implements
type Store interface {
	// Name returns the registry name of the store
	Name() string
	// Get returns the stored value and true, or nil and false when absent or expired
	Get(ctx context.Context, key string) (any, bool)
	// Set stores value under key. ttl <= 0 selects the store default.
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool
	// Delete removes key and reports whether it was present
	Delete(ctx context.Context, key string) bool
	// Clear removes every entry of this store
	Clear(ctx context.Context) bool
	// Stats returns a snapshot of the store counters
	Stats() Stats
}
