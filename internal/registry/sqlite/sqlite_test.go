package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/hop/internal/domain"
	"github.com/MrSnakeDoc/hop/internal/registry"
	"github.com/MrSnakeDoc/hop/internal/registry/registrytest"
)

var _ registry.Registry = (*Registry)(nil)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dbURL := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	r, err := Open(context.Background(), dbURL, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func newLink(id int64, code string, expiresAt time.Time) *domain.Link {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Link{
		ID:          id,
		Code:        code,
		Destination: "https://example.com/" + code,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   expiresAt.UTC().Truncate(time.Millisecond),
	}
}

func TestDriverFor(t *testing.T) {
	assert.Equal(t, "sqlite", DriverFor("file:hop.db"))
	assert.Equal(t, "libsql", DriverFor("libsql://hop-user.turso.io?authToken=x"))
	assert.Equal(t, "libsql", DriverFor("wss://hop-user.turso.io"))
}

func TestCreateFindAndConflict(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()
	now := time.Now()

	l := newLink(1, "abc123", now.Add(time.Hour))
	require.NoError(t, r.Create(ctx, l))

	got, err := r.FindActive(ctx, "abc123", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, l.Destination, got.Destination)
	assert.True(t, l.ExpiresAt.Equal(got.ExpiresAt))

	err = r.Create(ctx, newLink(2, "abc123", now.Add(time.Hour)))
	assert.ErrorIs(t, err, domain.ErrConflict)

	exists, err := r.Exists(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIsUniqueViolation(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, r.Create(ctx, newLink(1, "abc123", now.Add(time.Hour))))

	_, dupErr := r.db.ExecContext(ctx, `
		INSERT INTO links (id, short_code, destination, created_at, updated_at, expires_at)
		VALUES (2, 'abc123', 'https://example.com', 0, 0, 0)`)
	require.Error(t, dupErr)

	_, notNullErr := r.db.ExecContext(ctx, `
		INSERT INTO links (id, short_code, destination, created_at, updated_at, expires_at)
		VALUES (3, NULL, 'https://example.com', 0, 0, 0)`)
	require.Error(t, notNullErr)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"local unique", dupErr, true},
		{"local not null", notNullErr, false},
		{"wrapped local unique", fmt.Errorf("insert: %w", dupErr), true},
		{"remote message", errors.New("SQLite error: UNIQUE constraint failed: links.short_code"), true},
		{"other", errors.New("database is locked"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestSweepAndClicks(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, r.Create(ctx, newLink(1, "old001", now.Add(-time.Hour))))
	require.NoError(t, r.Create(ctx, newLink(2, "old002", now.Add(-time.Minute))))
	require.NoError(t, r.Create(ctx, newLink(3, "new001", now.Add(time.Hour))))

	n, err := r.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = r.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	exists, _ := r.Exists(ctx, "old001")
	assert.True(t, exists, "swept codes stay reserved")

	require.NoError(t, r.IncrementClicks(ctx, "new001"))
	require.NoError(t, r.IncrementClicks(ctx, "new001"))
	got, err := r.FindActive(ctx, "new001", now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ClickCount)

	assert.ErrorIs(t, r.IncrementClicks(ctx, "zzzzzz"), domain.ErrLinkNotFound)
}

func TestMetadataUpsert(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, r.Create(ctx, newLink(10, "meta01", now.Add(time.Hour))))

	got, err := r.FindMetadata(ctx, 10)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, r.UpsertMetadata(ctx, &domain.LinkMetadata{
		LinkID: 10, Outcome: domain.FetchFailed, FailureReason: "timeout", FetchedAt: now,
	}))
	require.NoError(t, r.UpsertMetadata(ctx, &domain.LinkMetadata{
		LinkID:        10,
		PreviewFields: domain.PreviewFields{Title: "Example", Type: "article"},
		Outcome:       domain.FetchSuccess,
		FetchedAt:     now,
	}))

	got, err = r.FindMetadata(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.FetchSuccess, got.Outcome)
	assert.Equal(t, "Example", got.Title)
	assert.Equal(t, "article", got.Type)
	assert.Empty(t, got.FailureReason)
}

func TestRegistryContract(t *testing.T) {
	registrytest.Run(t, func(t *testing.T) registry.Registry { return openTestRegistry(t) })
}
