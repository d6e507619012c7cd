// Package cache provides the shared counter store backing the rate-limit
// engine.
//
// Two implementations are provided:
//   - MemoryStore: in-process store for tests and single-instance development
//   - RedisStore: Redis-backed store shared by all worker processes
//
// All quota state lives in this store; the engine itself holds no mutable
// state across requests. Values are either an ordered list of event
// timestamps (usage windows) or a boolean flag (IP blocks), both with a TTL.
package cache

import (
	"context"
	"time"
)

// Store is the cache interface required by the rate-limit engine.
//
// The timestamp operations are plain read-modify-write: two concurrent
// writers for the same key can lose an append. That imprecision is accepted
// by the engine (the window may briefly exceed the nominal limit by the
// degree of concurrency for a single key).
type Store interface {
	// GetTimes loads the timestamp list for key. A missing or expired key
	// yields (nil, nil).
	GetTimes(ctx context.Context, key string) ([]time.Time, error)

	// SetTimes stores the timestamp list for key with the given TTL,
	// replacing any previous value and re-arming the expiry.
	SetTimes(ctx context.Context, key string, times []time.Time, ttl time.Duration) error

	// SetFlag sets a boolean marker for key with the given TTL.
	SetFlag(ctx context.Context, key string, ttl time.Duration) error

	// HasFlag reports whether a non-expired marker exists for key.
	HasFlag(ctx context.Context, key string) (bool, error)

	// Delete removes key. Returns true if a value was present.
	Delete(ctx context.Context, key string) (bool, error)
}
