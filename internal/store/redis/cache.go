package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Get returns the raw entry stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil // Cache miss
		}
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return val, true, nil
}

// Set stores val under key with the given TTL.
func (s *Store) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, Key(key), val, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// TTL returns the remaining lifetime of key, or a negative duration if the
// key does not exist.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, Key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read ttl: %w", err)
	}
	return d, nil
}
