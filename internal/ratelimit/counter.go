package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/calloway-labs/cvforge/internal/cache"
)

// Counter is the cache-backed sliding-window usage counter.
//
// Each (identity, scope) pair owns an ordered list of accepted-request
// timestamps stored under its own key. Entries outside the window are
// pruned on every read; the list's TTL is re-armed to the window duration
// on every write, so idle counters expire on their own.
//
// The key format keeps both halves of the partition distinct: two scopes
// for one identity and two identities for one scope always produce
// different keys. A collision would silently merge two callers' quotas.
type Counter struct {
	store cache.Store
}

// NewCounter creates a Counter on top of the shared cache store.
func NewCounter(store cache.Store) *Counter {
	return &Counter{store: store}
}

// counterKey builds the cache key for one (identity, scope) window.
func counterKey(id Identity, scope Scope) string {
	return fmt.Sprintf("throttle:%s:%s", scope, id.partitionKey())
}

// Record appends an accepted request at time at and re-arms the TTL to the
// window duration. Stale entries are pruned while we hold the list so the
// stored value never grows unboundedly.
func (c *Counter) Record(ctx context.Context, id Identity, scope Scope, window time.Duration, at time.Time) error {
	key := counterKey(id, scope)

	times, err := c.store.GetTimes(ctx, key)
	if err != nil {
		return fmt.Errorf("load window %q: %w", key, err)
	}

	times = prune(times, at, window)
	times = append(times, at)

	if err := c.store.SetTimes(ctx, key, times, window); err != nil {
		return fmt.Errorf("store window %q: %w", key, err)
	}
	return nil
}

// Count returns the number of events inside [now-window, now] along with
// the timestamp of the most recent event (zero when the window is empty).
// Pruning happens on every read so stale entries never inflate the count.
func (c *Counter) Count(ctx context.Context, id Identity, scope Scope, window time.Duration, now time.Time) (int, time.Time, error) {
	key := counterKey(id, scope)

	times, err := c.store.GetTimes(ctx, key)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("load window %q: %w", key, err)
	}

	times = prune(times, now, window)
	if len(times) == 0 {
		return 0, time.Time{}, nil
	}

	newest := times[0]
	for _, t := range times[1:] {
		if t.After(newest) {
			newest = t
		}
	}
	return len(times), newest, nil
}

// Reset clears the stored window for one (identity, scope) pair.
// Returns true if a counter existed.
func (c *Counter) Reset(ctx context.Context, id Identity, scope Scope) (bool, error) {
	ok, err := c.store.Delete(ctx, counterKey(id, scope))
	if err != nil {
		return false, fmt.Errorf("reset window: %w", err)
	}
	return ok, nil
}

// prune discards every entry at or before now-window.
func prune(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
