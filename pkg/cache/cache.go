// Package cache provides run-scoped memoization for expensive probes.
//
// arduci only caches facts that cannot change while a run is in progress,
// such as whether a compiler binary links against AddressSanitizer. The
// default [MemoryCache] lives exactly as long as the process; [NullCache]
// disables memoization (every lookup misses), which tests use to count
// probe invocations.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values by key.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A ttl of zero means "until Close".
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases resources held by the cache.
	Close() error
}
