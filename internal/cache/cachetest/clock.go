// Package cachetest provides a cache backend whose expiry follows a fake
// clock, for tests that step time across TTL boundaries.
package cachetest

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/hop/internal/cache"
)

// ClockBackend stores entries in a cache.MemoryBackend and expires them
// against now instead of the wall clock. TTLs passed to Set are recorded.
type ClockBackend struct {
	*cache.MemoryBackend

	mu        sync.Mutex
	now       func() time.Time
	deadlines map[string]time.Time
	ttls      map[string]time.Duration
}

func NewClockBackend(now func() time.Time) *ClockBackend {
	return &ClockBackend{
		// Real expiry is kept far away; the fake clock decides.
		MemoryBackend: cache.NewMemoryBackendWithCleanup(time.Hour),
		now:           now,
		deadlines:     make(map[string]time.Time),
		ttls:          make(map[string]time.Duration),
	}
}

func (b *ClockBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	deadline, ok := b.deadlines[key]
	if ok && !b.now().Before(deadline) {
		delete(b.deadlines, key)
		b.mu.Unlock()
		b.Delete(key)
		return nil, false, nil
	}
	b.mu.Unlock()
	return b.MemoryBackend.Get(ctx, key)
}

func (b *ClockBackend) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	b.mu.Lock()
	b.ttls[key] = ttl
	b.mu.Unlock()
	if ttl <= 0 {
		return nil
	}

	b.mu.Lock()
	b.deadlines[key] = b.now().Add(ttl)
	b.mu.Unlock()
	// The real deadline stays far out so wall time never beats the fake clock.
	return b.MemoryBackend.Set(ctx, key, val, 24*time.Hour)
}

// LastTTL returns the ttl of the most recent Set on key.
func (b *ClockBackend) LastTTL(key string) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.ttls[key]
	return d, ok
}
