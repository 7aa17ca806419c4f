package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCleanupInterval is how often expired entries are purged from memory.
// Reads never see an expired entry regardless.
const DefaultCleanupInterval = time.Minute

// MemoryBackend is an in-process Backend for single node setups and tests.
type MemoryBackend struct {
	c *gocache.Cache
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return NewMemoryBackendWithCleanup(DefaultCleanupInterval)
}

// NewMemoryBackendWithCleanup returns an empty MemoryBackend purging expired
// entries every interval.
func NewMemoryBackendWithCleanup(interval time.Duration) *MemoryBackend {
	return &MemoryBackend{c: gocache.New(gocache.NoExpiration, interval)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

// Set stores a copy of val. A non-positive ttl is ignored: go-cache would
// otherwise keep the entry forever.
func (m *MemoryBackend) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	m.c.Set(key, cp, ttl)
	return nil
}

// Delete drops key if present.
func (m *MemoryBackend) Delete(key string) {
	m.c.Delete(key)
}

// Ping always succeeds.
func (m *MemoryBackend) Ping(context.Context) error { return nil }

// Len returns the number of stored entries, expired ones not yet purged
// included.
func (m *MemoryBackend) Len() int {
	return m.c.ItemCount()
}
