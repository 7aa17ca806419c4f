// Package cache implements the read-through cache-aside store that sits in
// front of the link registry.
//
// Every entry is wrapped in a small JSON envelope that tags it as either a
// value or a negative marker, so no payload can be mistaken for "known absent".
// Cache failures never reach callers: reads degrade to a miss and writes are
// dropped, both logged and counted.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/MrSnakeDoc/hop/internal/logger"
	"github.com/MrSnakeDoc/hop/internal/metrics"
)

// State is the result of a cache read.
type State int

const (
	Miss State = iota
	Hit
	NegativeHit
)

func (s State) String() string {
	switch s {
	case Hit:
		return "hit"
	case NegativeHit:
		return "negative_hit"
	default:
		return "miss"
	}
}

// Backend is a byte-oriented key/value store with per-entry TTL.
// Get returns ok=false on a plain miss.
type Backend interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Policy holds the TTLs for one entity kind.
type Policy struct {
	// Positive is the ceiling applied to value entries.
	Positive time.Duration
	// Negative is applied to "known absent" markers.
	Negative time.Duration
}

type envelope struct {
	Negative bool            `json:"neg,omitempty"`
	Value    json.RawMessage `json:"val,omitempty"`
}

// Store is a typed view over a Backend for one entity kind.
type Store[V any] struct {
	backend Backend
	entity  string
	policy  Policy
	log     logger.Logger
}

// NewStore builds a Store. entity names the kind in logs and metrics
// (ex: "link", "metadata").
func NewStore[V any](backend Backend, entity string, policy Policy, log logger.Logger) *Store[V] {
	return &Store[V]{
		backend: backend,
		entity:  entity,
		policy:  policy,
		log:     log.With(logger.String("cache", entity)),
	}
}

// Policy returns the TTL policy of the store.
func (s *Store[V]) Policy() Policy { return s.policy }

// Get reads key. Backend and decoding errors are reported as a Miss.
func (s *Store[V]) Get(ctx context.Context, key string) (V, State) {
	var zero V

	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.log.Warn("cache read failed, falling back to store",
			logger.String("key", key), logger.Error(err))
		metrics.CacheLookups.WithLabelValues(s.entity, "error").Inc()
		return zero, Miss
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues(s.entity, Miss.String()).Inc()
		return zero, Miss
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Warn("cache entry undecodable, ignoring",
			logger.String("key", key), logger.Error(err))
		metrics.CacheLookups.WithLabelValues(s.entity, "error").Inc()
		return zero, Miss
	}

	if env.Negative {
		metrics.CacheLookups.WithLabelValues(s.entity, NegativeHit.String()).Inc()
		return zero, NegativeHit
	}

	var v V
	if err := json.Unmarshal(env.Value, &v); err != nil {
		s.log.Warn("cache value undecodable, ignoring",
			logger.String("key", key), logger.Error(err))
		metrics.CacheLookups.WithLabelValues(s.entity, "error").Inc()
		return zero, Miss
	}

	metrics.CacheLookups.WithLabelValues(s.entity, Hit.String()).Inc()
	return v, Hit
}

// Put stores v under key for ttl. A non-positive ttl skips the write.
func (s *Store[V]) Put(ctx context.Context, key string, v V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.writeFailed(key, fmt.Errorf("failed to marshal value: %w", err))
		return
	}
	s.write(ctx, key, envelope{Value: payload}, ttl)
}

// PutNegative marks key as known absent for the negative TTL of the policy.
func (s *Store[V]) PutNegative(ctx context.Context, key string) {
	s.PutNegativeFor(ctx, key, s.policy.Negative)
}

// PutNegativeFor marks key as known absent for ttl.
func (s *Store[V]) PutNegativeFor(ctx context.Context, key string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.write(ctx, key, envelope{Negative: true}, ttl)
}

func (s *Store[V]) write(ctx context.Context, key string, env envelope, ttl time.Duration) {
	raw, err := json.Marshal(env)
	if err != nil {
		s.writeFailed(key, fmt.Errorf("failed to marshal envelope: %w", err))
		return
	}
	if err := s.backend.Set(ctx, key, raw, ttl); err != nil {
		s.writeFailed(key, err)
	}
}

func (s *Store[V]) writeFailed(key string, err error) {
	s.log.Warn("cache write failed, ignoring",
		logger.String("key", key), logger.Error(err))
	metrics.CacheWriteErrors.WithLabelValues(s.entity).Inc()
}

// BoundedTTL returns min(ceiling, expiresAt-now). The result is <= 0 when the
// entry is already expired, which callers treat as "do not cache".
func BoundedTTL(ceiling time.Duration, expiresAt, now time.Time) time.Duration {
	remaining := expiresAt.Sub(now)
	if remaining < ceiling {
		return remaining
	}
	return ceiling
}

// LinkKey is the cache key of a link by short code.
func LinkKey(code string) string {
	return "link:" + code
}

// MetadataKey is the cache key of a link's preview metadata.
func MetadataKey(linkID int64) string {
	return "metadata:" + strconv.FormatInt(linkID, 10)
}
