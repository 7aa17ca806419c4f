// Package postgres is the PostgreSQL Registry, built on pgx.
//
// Schema is owned by the embedded golang-migrate migrations (see Migrator).
// The short_code UNIQUE constraint is the final guard against duplicate codes.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrSnakeDoc/hop/internal/connect"
	"github.com/MrSnakeDoc/hop/internal/domain"
	"github.com/MrSnakeDoc/hop/internal/logger"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type Registry struct {
	pool *pgxpool.Pool
}

// Connect opens a pool on dsn and waits until the server answers.
func Connect(ctx context.Context, dsn string, maxConns int, retry connect.Options, log logger.Logger) (*Registry, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	addr := fmt.Sprintf("%s:%d/%s", cfg.ConnConfig.Host, cfg.ConnConfig.Port, cfg.ConnConfig.Database)
	if err := connect.WithRetry(ctx, "postgres", addr, retry, pool.Ping, log); err != nil {
		pool.Close()
		return nil, err
	}

	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

func (r *Registry) Exists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM links WHERE short_code = $1)`, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check short code: %w", err)
	}
	return exists, nil
}

func (r *Registry) Create(ctx context.Context, link *domain.Link) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO links (id, short_code, destination, click_count, deleted, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, 0, FALSE, $4, $5, $6)`,
		link.ID,
		link.Code,
		link.Destination,
		link.CreatedAt.UTC(),
		link.UpdatedAt.UTC(),
		link.ExpiresAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("failed to insert link: %w", err)
	}
	return nil
}

func (r *Registry) FindActive(ctx context.Context, code string, now time.Time) (*domain.Link, error) {
	var l domain.Link
	err := r.pool.QueryRow(ctx, `
		SELECT id, short_code, destination, click_count, deleted, created_at, updated_at, expires_at
		FROM links
		WHERE short_code = $1 AND deleted = FALSE AND expires_at > $2`,
		code, now.UTC(),
	).Scan(&l.ID, &l.Code, &l.Destination, &l.ClickCount, &l.Deleted, &l.CreatedAt, &l.UpdatedAt, &l.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load link: %w", err)
	}
	return &l, nil
}

func (r *Registry) IncrementClicks(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE links
		SET click_count = click_count + 1, updated_at = NOW()
		WHERE short_code = $1`, code)
	if err != nil {
		return fmt.Errorf("failed to increment clicks: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLinkNotFound
	}
	return nil
}

func (r *Registry) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE links
		SET deleted = TRUE, updated_at = $1
		WHERE deleted = FALSE AND expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired links: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Registry) UpsertMetadata(ctx context.Context, m *domain.LinkMetadata) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO link_metadata
			(link_id, title, description, image, site_name, content_type, locale, fetch_status, failure_reason, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (link_id) DO UPDATE SET
			title          = EXCLUDED.title,
			description    = EXCLUDED.description,
			image          = EXCLUDED.image,
			site_name      = EXCLUDED.site_name,
			content_type   = EXCLUDED.content_type,
			locale         = EXCLUDED.locale,
			fetch_status   = EXCLUDED.fetch_status,
			failure_reason = EXCLUDED.failure_reason,
			fetched_at     = EXCLUDED.fetched_at`,
		m.LinkID,
		nullable(m.Title),
		nullable(m.Description),
		nullable(m.Image),
		nullable(m.SiteName),
		nullable(m.Type),
		nullable(m.Locale),
		string(m.Outcome),
		nullable(m.FailureReason),
		m.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert metadata: %w", err)
	}
	return nil
}

func (r *Registry) FindMetadata(ctx context.Context, linkID int64) (*domain.LinkMetadata, error) {
	m := domain.LinkMetadata{LinkID: linkID}
	var outcome string
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(title, ''), COALESCE(description, ''), COALESCE(image, ''),
		       COALESCE(site_name, ''), COALESCE(content_type, ''), COALESCE(locale, ''),
		       fetch_status, COALESCE(failure_reason, ''), fetched_at
		FROM link_metadata
		WHERE link_id = $1`, linkID,
	).Scan(&m.Title, &m.Description, &m.Image, &m.SiteName, &m.Type, &m.Locale,
		&outcome, &m.FailureReason, &m.FetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	m.Outcome = domain.FetchOutcome(outcome)
	return &m, nil
}

func (r *Registry) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	return nil
}

func (r *Registry) Close() error {
	r.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
