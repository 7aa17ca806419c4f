// Package metadata fetches, stores and serves the link preview fields shown
// to crawlers.
package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/hop/internal/cache"
	"github.com/MrSnakeDoc/hop/internal/domain"
	"github.com/MrSnakeDoc/hop/internal/logger"
	"github.com/MrSnakeDoc/hop/internal/metrics"
)

// PendingTTL is how long a link with no metadata row yet is remembered as
// having none.
const PendingTTL = 15 * time.Second

// FetchResult is what a Fetcher learned about a destination.
// Fields is only meaningful when Outcome is domain.FetchSuccess, Reason only
// when it is domain.FetchFailed.
type FetchResult struct {
	Outcome domain.FetchOutcome
	Fields  domain.PreviewFields
	Reason  string
}

// Fetcher retrieves preview fields for a destination URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Store is the slice of the registry this package needs.
type Store interface {
	UpsertMetadata(ctx context.Context, meta *domain.LinkMetadata) error
	FindMetadata(ctx context.Context, linkID int64) (*domain.LinkMetadata, error)
}

type Service struct {
	store   Store
	fetcher Fetcher
	cache   *cache.Store[domain.PreviewFields]
	logger  logger.Logger
	now     func() time.Time
}

func NewService(store Store, fetcher Fetcher, c *cache.Store[domain.PreviewFields], log logger.Logger) *Service {
	return &Service{
		store:   store,
		fetcher: fetcher,
		cache:   c,
		logger:  log,
		now:     time.Now,
	}
}

// FetchAndStore is the metadata fetch job body. Whatever the fetcher does,
// an outcome is recorded; the only error returned is a failed upsert, which
// the queue redelivers.
func (s *Service) FetchAndStore(ctx context.Context, linkID int64, url string) error {
	res := s.fetch(ctx, url)

	meta := &domain.LinkMetadata{
		LinkID:    linkID,
		Outcome:   res.Outcome,
		FetchedAt: s.now().UTC(),
	}
	switch res.Outcome {
	case domain.FetchSuccess:
		meta.PreviewFields = res.Fields
	case domain.FetchFailed:
		meta.FailureReason = res.Reason
	}

	if err := s.store.UpsertMetadata(ctx, meta); err != nil {
		return fmt.Errorf("failed to store metadata for link %d: %w", linkID, err)
	}
	metrics.MetadataFetches.WithLabelValues(string(res.Outcome)).Inc()

	key := cache.MetadataKey(linkID)
	switch res.Outcome {
	case domain.FetchSuccess:
		s.cache.Put(ctx, key, res.Fields, s.cache.Policy().Positive)
		s.logger.Info("metadata fetched", logger.Int64("link_id", linkID))
	case domain.FetchNoMetadata:
		s.cache.PutNegative(ctx, key)
		s.logger.Debug("no metadata found", logger.Int64("link_id", linkID))
	default:
		s.cache.PutNegative(ctx, key)
		s.logger.Warn("metadata fetch failed",
			logger.Int64("link_id", linkID),
			logger.String("url", url),
			logger.String("reason", res.Reason))
	}
	return nil
}

// fetch turns fetcher errors and panics into a FAILED result.
func (s *Service) fetch(ctx context.Context, url string) (res FetchResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("metadata fetcher panicked",
				logger.String("url", url),
				logger.String("panic", fmt.Sprint(r)))
			res = FetchResult{Outcome: domain.FetchFailed, Reason: fmt.Sprintf("fetcher panic: %v", r)}
		}
	}()

	res, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return FetchResult{Outcome: domain.FetchFailed, Reason: err.Error()}
	}
	switch res.Outcome {
	case domain.FetchSuccess, domain.FetchNoMetadata:
	case domain.FetchFailed:
		if res.Reason == "" {
			res.Reason = "unknown error"
		}
	default:
		return FetchResult{Outcome: domain.FetchFailed, Reason: fmt.Sprintf("unexpected fetch outcome %q", res.Outcome)}
	}
	return res
}

// Get returns the preview fields of a link, or nil when none are usable.
// Absent rows and unsuccessful fetches are cached negatively.
func (s *Service) Get(ctx context.Context, linkID int64) (*domain.PreviewFields, error) {
	key := cache.MetadataKey(linkID)

	cached, state := s.cache.Get(ctx, key)
	switch state {
	case cache.Hit:
		return &cached, nil
	case cache.NegativeHit:
		return nil, nil
	}

	meta, err := s.store.FindMetadata(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata for link %d: %w", linkID, err)
	}
	if meta == nil {
		// The fetch job may still be running. A short marker keeps a burst of
		// crawlers off the registry without hiding the row once it lands.
		s.cache.PutNegativeFor(ctx, key, PendingTTL)
		return nil, nil
	}
	if !meta.Usable() {
		s.cache.PutNegative(ctx, key)
		return nil, nil
	}

	fields := meta.PreviewFields
	s.cache.Put(ctx, key, fields, s.cache.Policy().Positive)
	return &fields, nil
}
