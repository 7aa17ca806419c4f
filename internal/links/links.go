// Package links creates short links and serves cache-aside lookups for them.
package links

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/hop/internal/cache"
	"github.com/MrSnakeDoc/hop/internal/domain"
	"github.com/MrSnakeDoc/hop/internal/jobs"
	"github.com/MrSnakeDoc/hop/internal/logger"
	"github.com/MrSnakeDoc/hop/internal/metrics"
)

// Store is the slice of the registry this package needs.
type Store interface {
	Create(ctx context.Context, link *domain.Link) error
	FindActive(ctx context.Context, code string, now time.Time) (*domain.Link, error)
	IncrementClicks(ctx context.Context, code string) error
}

// CodeGenerator hands out unused short codes.
type CodeGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// IDGenerator hands out unique internal link ids.
type IDGenerator interface {
	NextID() int64
}

// CachedLink is the projection of a Link kept in the cache.
type CachedLink struct {
	ID          int64     `json:"id"`
	Destination string    `json:"destination"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ShortLink is what Create returns to the caller.
type ShortLink struct {
	Code        string
	ShortURL    string
	Destination string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
}

type Options struct {
	Store  Store
	Cache  *cache.Store[CachedLink]
	Codes  CodeGenerator
	IDs    IDGenerator
	Jobs   jobs.Dispatcher
	Logger logger.Logger

	BaseURL       string        // ex: https://hop.domain.ext (no trailing slash)
	DefaultExpiry time.Duration // used when the caller gives no expiry
	MaxExpiry     time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	store  Store
	cache  *cache.Store[CachedLink]
	codes  CodeGenerator
	ids    IDGenerator
	jobs   jobs.Dispatcher
	logger logger.Logger

	baseURL       string
	defaultExpiry time.Duration
	maxExpiry     time.Duration
	now           func() time.Time
}

func NewService(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:         opts.Store,
		cache:         opts.Cache,
		codes:         opts.Codes,
		ids:           opts.IDs,
		jobs:          opts.Jobs,
		logger:        opts.Logger,
		baseURL:       opts.BaseURL,
		defaultExpiry: opts.DefaultExpiry,
		maxExpiry:     opts.MaxExpiry,
		now:           now,
	}
}

// Create validates the request, reserves a code, persists the link, warms
// the cache and schedules the metadata fetch.
//
// Errors: domain.ErrInvalidDestination, domain.ErrInvalidExpiry,
// domain.ErrGenerationExhausted, domain.ErrConflict, or a wrapped store error.
func (s *Service) Create(ctx context.Context, destination string, expiryHours *int) (*ShortLink, error) {
	dest, err := domain.NormalizeDestination(destination)
	if err != nil {
		return nil, err
	}

	lifetime, err := s.lifetime(expiryHours)
	if err != nil {
		return nil, err
	}

	code, err := s.codes.Generate(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	link := &domain.Link{
		ID:          s.ids.NextID(),
		Code:        code,
		Destination: dest,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(lifetime),
	}

	if err := s.store.Create(ctx, link); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	s.cache.Put(ctx, cache.LinkKey(code), project(link),
		cache.BoundedTTL(s.cache.Policy().Positive, link.ExpiresAt, now))

	jobs.Fire(ctx, s.jobs, jobs.MetadataFetch{LinkID: link.ID, URL: link.Destination}, s.logger)

	metrics.LinksCreated.Inc()
	s.logger.Info("link created",
		logger.String("code", code),
		logger.Int64("id", link.ID),
		logger.Time("expires_at", link.ExpiresAt))

	return &ShortLink{
		Code:        code,
		ShortURL:    s.baseURL + "/" + code,
		Destination: link.Destination,
		CreatedAt:   link.CreatedAt,
		UpdatedAt:   link.UpdatedAt,
		ExpiresAt:   link.ExpiresAt,
	}, nil
}

func (s *Service) lifetime(expiryHours *int) (time.Duration, error) {
	if expiryHours == nil {
		return s.defaultExpiry, nil
	}
	maxHours := int(s.maxExpiry / time.Hour)
	if *expiryHours < 1 || *expiryHours > maxHours {
		return 0, fmt.Errorf("%w: expiryInHours must be between 1 and %d", domain.ErrInvalidExpiry, maxHours)
	}
	return time.Duration(*expiryHours) * time.Hour, nil
}

// FindActive returns the live link for code, or nil when it is unknown,
// expired or deleted. Absence is cached for the negative TTL; presence is
// cached until the earlier of the positive ceiling and the link's expiry.
// Cache problems are absorbed; store errors are returned.
func (s *Service) FindActive(ctx context.Context, code string) (*CachedLink, error) {
	now := s.now()
	key := cache.LinkKey(code)

	cached, state := s.cache.Get(ctx, key)
	switch state {
	case cache.Hit:
		if cached.ExpiresAt.After(now) {
			return &cached, nil
		}
		return nil, nil
	case cache.NegativeHit:
		return nil, nil
	}

	link, err := s.store.FindActive(ctx, code, now)
	if err != nil {
		return nil, fmt.Errorf("failed to look up link %s: %w", code, err)
	}
	if link == nil {
		s.cache.PutNegative(ctx, key)
		return nil, nil
	}

	entry := project(link)
	s.cache.Put(ctx, key, entry, cache.BoundedTTL(s.cache.Policy().Positive, link.ExpiresAt, now))
	return &entry, nil
}

// RecordClick is the click accounting job body. A link that no longer
// exists is logged and dropped rather than retried.
func (s *Service) RecordClick(ctx context.Context, code string) error {
	err := s.store.IncrementClicks(ctx, code)
	if errors.Is(err, domain.ErrLinkNotFound) {
		s.logger.Warn("click for unknown link dropped", logger.String("code", code))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record click for %s: %w", code, err)
	}
	return nil
}

func project(l *domain.Link) CachedLink {
	return CachedLink{ID: l.ID, Destination: l.Destination, ExpiresAt: l.ExpiresAt}
}
