// Package cache provides generic, thread-safe caches used for hot-path
// lookups such as compiled scripts and matched rule sets.
//
// Two implementations are available:
//   - SimpleCache: no eviction, entries live until deleted or cleared
//   - TTLCache: time-to-live eviction with background cleanup
//
// All caches collect statistics and can optionally export them as
// Prometheus metrics via functional options.
package cache

import (
	"github.com/flowkit/topicflow/errors"
)

// Cache is the interface all cache implementations satisfy, parameterized
// by value type V.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the zero value and false when absent.
	Get(key string) (V, bool)

	// Set stores a value. Returns true if a new entry was created.
	Set(key string, value V) (bool, error)

	// Delete removes an entry. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries.
	Clear() error

	// Size returns the current number of entries.
	Size() int

	// Keys returns all keys currently in the cache.
	Keys() []string

	// Stats returns cache statistics, nil for the noop cache.
	Stats() *Statistics

	// Close releases resources such as background cleanup goroutines.
	Close() error
}

// EvictCallback is invoked with the key and value of an evicted entry.
type EvictCallback[V any] func(key string, value V)

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
