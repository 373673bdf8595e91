// Package cache provides pluggable byte caching for index metadata.
//
// The [Cache] interface abstracts over storage backends:
//   - [FileCache]: per-user cache directory, the CLI default
//   - [RedisCache]: shared cache for CI fleets building many plugins
//   - [NullCache]: disables caching entirely
//
// Entries carry a time-to-live; expired entries are treated as misses.
// Keys are arbitrary strings and are hashed before hitting the backend,
// so callers may use long namespaced keys like "index:pypi:requests".
package cache

import (
	"context"
	"time"
)

// DefaultTTL is how long index metadata stays fresh unless overridden.
const DefaultTTL = 24 * time.Hour

// Cache stores opaque byte values with per-entry expiration.
//
// Implementations must be safe for concurrent use; the packager's worker
// pool reads and writes the cache from multiple goroutines.
type Cache interface {
	// Get retrieves a value. The second return is false on a miss
	// (including expired entries). An error indicates backend failure,
	// not a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL. A TTL of 0 means the entry
	// never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
