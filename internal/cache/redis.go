package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis, so every worker process shares
// one set of counters.
//
// Timestamp lists are stored as a JSON-encoded array of unix-nano values
// under a plain string key. The engine's contract is read-modify-write
// (GET, prune, append, SET), matching the precision level the design
// accepts; no Lua or transactions are used.
type RedisStore struct {
	client *redis.Client
}

// NewRedis creates a RedisStore on top of an existing client.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) GetTimes(ctx context.Context, key string) ([]time.Time, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}

	var nanos []int64
	if err := json.Unmarshal(raw, &nanos); err != nil {
		// A corrupt value is unrecoverable; treat as absent so the
		// counter restarts rather than wedging every request.
		return nil, nil
	}

	times := make([]time.Time, len(nanos))
	for i, n := range nanos {
		times[i] = time.Unix(0, n)
	}
	return times, nil
}

func (s *RedisStore) SetTimes(ctx context.Context, key string, times []time.Time, ttl time.Duration) error {
	nanos := make([]int64, len(times))
	for i, t := range times {
		nanos[i] = t.UnixNano()
	}

	raw, err := json.Marshal(nanos)
	if err != nil {
		return fmt.Errorf("encode times for %q: %w", key, err)
	}

	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetFlag(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set flag %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) HasFlag(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del %q: %w", key, err)
	}
	return n > 0, nil
}
