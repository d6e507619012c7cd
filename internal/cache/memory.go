package cache

import (
	"context"
	"sync"
	"time"
)

// memoryEntry holds one cached value with its expiry.
type memoryEntry struct {
	times     []time.Time
	flag      bool
	expiresAt time.Time
}

// MemoryStore is an in-memory implementation of Store.
//
// Suitable for tests and single-instance development. Expired entries are
// dropped lazily on read and, when a cleanup interval is configured, by a
// background goroutine.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemory creates a new MemoryStore.
//
// ctx bounds the lifetime of the background cleanup goroutine.
// cleanupInterval controls how often expired entries are removed; pass 0
// to disable background cleanup (reads still ignore expired entries).
func NewMemory(ctx context.Context, cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
	}

	if cleanupInterval > 0 {
		go s.runCleanup(ctx, cleanupInterval)
	}

	return s
}

func (s *MemoryStore) GetTimes(_ context.Context, key string) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, nil
	}

	out := make([]time.Time, len(e.times))
	copy(out, e.times)
	return out, nil
}

func (s *MemoryStore) SetTimes(_ context.Context, key string, times []time.Time, ttl time.Duration) error {
	stored := make([]time.Time, len(times))
	copy(stored, times)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{
		times:     stored,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) SetFlag(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{
		flag:      true,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) HasFlag(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return false, nil
	}
	return e.flag, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	delete(s.entries, key)
	if !ok || time.Now().After(e.expiresAt) {
		return false, nil
	}
	return true, nil
}

// runCleanup periodically removes expired entries to prevent unbounded growth.
func (s *MemoryStore) runCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for key, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}
