// Package memory is an in-process Registry used by tests and single node
// development setups.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/hop/internal/domain"
)

// Registry keeps links and metadata in maps guarded by one RWMutex.
// Values are copied on the way in and out so callers never share state.
type Registry struct {
	mu       sync.RWMutex
	links    map[string]*domain.Link         // code -> link
	metadata map[int64]*domain.LinkMetadata // link id -> metadata
	now      func() time.Time
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		links:    make(map[string]*domain.Link),
		metadata: make(map[int64]*domain.LinkMetadata),
		now:      time.Now,
	}
}

func (r *Registry) Exists(_ context.Context, code string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.links[code]
	return ok, nil
}

func (r *Registry) Create(_ context.Context, link *domain.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.links[link.Code]; ok {
		return domain.ErrConflict
	}
	cp := *link
	r.links[link.Code] = &cp
	return nil
}

func (r *Registry) FindActive(_ context.Context, code string, now time.Time) (*domain.Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	link, ok := r.links[code]
	if !ok || !link.Resolvable(now) {
		return nil, nil
	}
	cp := *link
	return &cp, nil
}

// Get returns a copy of the link whatever its state. Test helper.
func (r *Registry) Get(code string) (*domain.Link, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	link, ok := r.links[code]
	if !ok {
		return nil, false
	}
	cp := *link
	return &cp, true
}

func (r *Registry) IncrementClicks(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[code]
	if !ok {
		return domain.ErrLinkNotFound
	}
	link.ClickCount++
	link.UpdatedAt = r.now()
	return nil
}

func (r *Registry) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, link := range r.links {
		if !link.Deleted && !link.ExpiresAt.After(now) {
			link.Deleted = true
			link.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *Registry) UpsertMetadata(_ context.Context, meta *domain.LinkMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *meta
	r.metadata[meta.LinkID] = &cp
	return nil
}

func (r *Registry) FindMetadata(_ context.Context, linkID int64) (*domain.LinkMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.metadata[linkID]
	if !ok {
		return nil, nil
	}
	cp := *meta
	return &cp, nil
}

// Count returns the number of links, soft-deleted ones included.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.links)
}

func (r *Registry) Ping(context.Context) error { return nil }
func (r *Registry) Close() error               { return nil }
