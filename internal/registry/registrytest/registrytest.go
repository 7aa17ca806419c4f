// Package registrytest holds the behaviour every registry.Registry must
// share. Implementations call Run from their own tests.
package registrytest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/hop/internal/domain"
	"github.com/MrSnakeDoc/hop/internal/registry"
)

// Factory returns an empty registry. It is called once per subtest.
type Factory func(t *testing.T) registry.Registry

func newLink(id int64, code string, now time.Time, ttl time.Duration) *domain.Link {
	now = now.UTC().Truncate(time.Millisecond)
	return &domain.Link{
		ID:          id,
		Code:        code,
		Destination: "https://example.com/" + code,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// Run exercises the registry contract against registries built by open.
func Run(t *testing.T, open Factory) {
	t.Run("CreateAndFind", func(t *testing.T) {
		r := open(t)
		ctx := context.Background()
		now := time.Now()

		l := newLink(1, "abc123", now, time.Hour)
		require.NoError(t, r.Create(ctx, l))

		got, err := r.FindActive(ctx, "abc123", now)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, l.ID, got.ID)
		assert.Equal(t, l.Destination, got.Destination)
		assert.True(t, l.ExpiresAt.Equal(got.ExpiresAt))

		missing, err := r.FindActive(ctx, "zzzzzz", now)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("Conflict", func(t *testing.T) {
		r := open(t)
		ctx := context.Background()
		now := time.Now()

		require.NoError(t, r.Create(ctx, newLink(1, "dup000", now, time.Hour)))
		err := r.Create(ctx, newLink(2, "dup000", now, time.Hour))
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("ExpiredIsNotActive", func(t *testing.T) {
		r := open(t)
		ctx := context.Background()
		now := time.Now()

		require.NoError(t, r.Create(ctx, newLink(1, "old000", now, time.Minute)))

		got, err := r.FindActive(ctx, "old000", now.Add(time.Minute))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("IncrementClicks", func(t *testing.T) {
		r := open(t)
		ctx := context.Background()
		now := time.Now()

		require.NoError(t, r.Create(ctx, newLink(1, "clk000", now, time.Hour)))
		require.NoError(t, r.IncrementClicks(ctx, "clk000"))
		require.NoError(t, r.IncrementClicks(ctx, "clk000"))

		got, err := r.FindActive(ctx, "clk000", now)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.EqualValues(t, 2, got.ClickCount)

		assert.ErrorIs(t, r.IncrementClicks(ctx, "nope00"), domain.ErrLinkNotFound)
	})

	t.Run("SweepExpired", func(t *testing.T) {
		r := open(t)
		ctx := context.Background()
		now := time.Now()

		require.NoError(t, r.Create(ctx, newLink(1, "exp001", now, time.Minute)))
		require.NoError(t, r.Create(ctx, newLink(2, "exp002", now, 2*time.Minute)))
		require.NoError(t, r.Create(ctx, newLink(3, "live01", now, time.Hour)))

		at := now.Add(5 * time.Minute)
		n, err := r.SweepExpired(ctx, at)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		n, err = r.SweepExpired(ctx, at)
		require.NoError(t, err)
		assert.Zero(t, n, "second sweep must not touch already deleted rows")

		exists, err := r.Exists(ctx, "exp001")
		require.NoError(t, err)
		assert.True(t, exists, "swept codes stay reserved")

		live, err := r.FindActive(ctx, "live01", at)
		require.NoError(t, err)
		assert.NotNil(t, live)
	})

	t.Run("Metadata", func(t *testing.T) {
		r := open(t)
		ctx := context.Background()
		now := time.Now()

		require.NoError(t, r.Create(ctx, newLink(7, "meta00", now, time.Hour)))

		none, err := r.FindMetadata(ctx, 7)
		require.NoError(t, err)
		assert.Nil(t, none)

		failed := &domain.LinkMetadata{
			LinkID:        7,
			Outcome:       domain.FetchFailed,
			FailureReason: "unexpected status 500",
			FetchedAt:     now.UTC().Truncate(time.Millisecond),
		}
		require.NoError(t, r.UpsertMetadata(ctx, failed))

		ok := &domain.LinkMetadata{
			LinkID: 7,
			PreviewFields: domain.PreviewFields{
				Title:       "Example",
				Description: "An example page",
				Image:       "https://example.com/og.png",
				Type:        "article",
			},
			Outcome:   domain.FetchSuccess,
			FetchedAt: now.UTC().Truncate(time.Millisecond),
		}
		require.NoError(t, r.UpsertMetadata(ctx, ok))

		got, err := r.FindMetadata(ctx, 7)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, domain.FetchSuccess, got.Outcome)
		assert.Equal(t, ok.PreviewFields, got.PreviewFields)
		assert.Empty(t, got.FailureReason, "upsert replaces the whole row")
	})

	t.Run("Ping", func(t *testing.T) {
		r := open(t)
		assert.NoError(t, r.Ping(context.Background()))
	})
}
