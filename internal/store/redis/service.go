package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store is the Redis implementation of cache.Backend.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// Ping checks the connection, used by /readyz.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
