// Package registry defines the durable link store contract shared by the
// postgres, sqlite and in-memory implementations.
package registry

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/hop/internal/domain"
)

// Registry is the durable source of truth for links and their metadata.
//
// Lookups that find nothing return (nil, nil). Create maps a short code
// uniqueness violation to domain.ErrConflict. IncrementClicks returns
// domain.ErrLinkNotFound when no row matches.
type Registry interface {
	// Exists reports whether code was ever issued, soft-deleted links included.
	Exists(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, link *domain.Link) error
	// FindActive returns the link if it is not deleted and expires after now.
	FindActive(ctx context.Context, code string, now time.Time) (*domain.Link, error)
	IncrementClicks(ctx context.Context, code string) error
	// SweepExpired soft-deletes every live link with expires_at <= now and
	// returns the number of rows changed.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)

	UpsertMetadata(ctx context.Context, meta *domain.LinkMetadata) error
	FindMetadata(ctx context.Context, linkID int64) (*domain.LinkMetadata, error)

	Ping(ctx context.Context) error
	Close() error
}
