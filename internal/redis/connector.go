package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/hop/internal/connect"
	"github.com/MrSnakeDoc/hop/internal/logger"
)

// ConnectOptions defines the Redis client settings.
type ConnectOptions struct {
	Addr         string        // Redis address (ex: "localhost:6379")
	User         string        // Optional username
	Password     string        // Optional password
	RedisDB      int           // Redis DB number
	DialTimeout  time.Duration // Redis dial timeout
	ReadTimeout  time.Duration // Redis read timeout
	WriteTimeout time.Duration // Redis write timeout
	PoolSize     int           // Redis connection pool size
	Retry        connect.Options
}

// New creates a new Redis client and waits until it answers PING.
// Returns error if connection cannot be established within the retry timeout.
func New(ctx context.Context, opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.User,
		Password:     opts.Password,
		DB:           opts.RedisDB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := connect.WithRetry(ctx, "redis", opts.Addr, opts.Retry, ping, log); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
