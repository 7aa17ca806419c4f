// Package sqlite is the Registry for single node deployments: a local
// SQLite file through modernc.org/sqlite, or a remote Turso/libSQL database
// when the URL uses the libsql:// or wss:// scheme.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/MrSnakeDoc/hop/internal/domain"
)

// Times are stored as unix milliseconds so both drivers agree on the encoding.
const schema = `
CREATE TABLE IF NOT EXISTS links (
	id          INTEGER PRIMARY KEY,
	short_code  TEXT NOT NULL UNIQUE,
	destination TEXT NOT NULL,
	click_count INTEGER NOT NULL DEFAULT 0,
	deleted     INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_links_live_expires_at ON links(deleted, expires_at);

CREATE TABLE IF NOT EXISTS link_metadata (
	link_id        INTEGER PRIMARY KEY REFERENCES links(id),
	title          TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	image          TEXT NOT NULL DEFAULT '',
	site_name      TEXT NOT NULL DEFAULT '',
	content_type   TEXT NOT NULL DEFAULT '',
	locale         TEXT NOT NULL DEFAULT '',
	fetch_status   TEXT NOT NULL,
	failure_reason TEXT NOT NULL DEFAULT '',
	fetched_at     INTEGER NOT NULL
);
`

type Registry struct {
	db *sql.DB
}

// DriverFor picks the database/sql driver name for dbURL.
func DriverFor(dbURL string) string {
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		return "libsql"
	}
	return "sqlite"
}

// Open connects to dbURL and, when migrate is set, creates the schema.
func Open(ctx context.Context, dbURL string, migrate bool) (*Registry, error) {
	driver := DriverFor(dbURL)
	db, err := sql.Open(driver, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// One writer at a time; avoids SQLITE_BUSY under concurrent jobs.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	if migrate {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Registry{db: db}, nil
}

func (r *Registry) Exists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM links WHERE short_code = ?)`, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check short code: %w", err)
	}
	return exists, nil
}

func (r *Registry) Create(ctx context.Context, link *domain.Link) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO links (id, short_code, destination, click_count, deleted, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, 0, 0, ?, ?, ?)`,
		link.ID,
		link.Code,
		link.Destination,
		link.CreatedAt.UnixMilli(),
		link.UpdatedAt.UnixMilli(),
		link.ExpiresAt.UnixMilli(),
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
	var (
		l                               domain.Link
		deleted                         int
		createdAt, updatedAt, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, short_code, destination, click_count, deleted, created_at, updated_at, expires_at
		FROM links
		WHERE short_code = ? AND deleted = 0 AND expires_at > ?`,
		code, now.UnixMilli(),
	).Scan(&l.ID, &l.Code, &l.Destination, &l.ClickCount, &deleted, &createdAt, &updatedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load link: %w", err)
	}

	l.Deleted = deleted != 0
	l.CreatedAt = time.UnixMilli(createdAt).UTC()
	l.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	l.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return &l, nil
}

func (r *Registry) IncrementClicks(ctx context.Context, code string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE links SET click_count = click_count + 1, updated_at = ?
		WHERE short_code = ?`, time.Now().UnixMilli(), code)
	if err != nil {
		return fmt.Errorf("failed to increment clicks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrLinkNotFound
	}
	return nil
}

func (r *Registry) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	ms := now.UnixMilli()
	res, err := r.db.ExecContext(ctx, `
		UPDATE links SET deleted = 1, updated_at = ?
		WHERE deleted = 0 AND expires_at <= ?`, ms, ms)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired links: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func (r *Registry) UpsertMetadata(ctx context.Context, m *domain.LinkMetadata) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO link_metadata
			(link_id, title, description, image, site_name, content_type, locale, fetch_status, failure_reason, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (link_id) DO UPDATE SET
			title          = excluded.title,
			description    = excluded.description,
			image          = excluded.image,
			site_name      = excluded.site_name,
			content_type   = excluded.content_type,
			locale         = excluded.locale,
			fetch_status   = excluded.fetch_status,
			failure_reason = excluded.failure_reason,
			fetched_at     = excluded.fetched_at`,
		m.LinkID, m.Title, m.Description, m.Image, m.SiteName, m.Type, m.Locale,
		string(m.Outcome), m.FailureReason, m.FetchedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert metadata: %w", err)
	}
	return nil
}

func (r *Registry) FindMetadata(ctx context.Context, linkID int64) (*domain.LinkMetadata, error) {
	m := domain.LinkMetadata{LinkID: linkID}
	var (
		outcome   string
		fetchedAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT title, description, image, site_name, content_type, locale, fetch_status, failure_reason, fetched_at
		FROM link_metadata WHERE link_id = ?`, linkID,
	).Scan(&m.Title, &m.Description, &m.Image, &m.SiteName, &m.Type, &m.Locale, &outcome, &m.FailureReason, &fetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	m.Outcome = domain.FetchOutcome(outcome)
	m.FetchedAt = time.UnixMilli(fetchedAt).UTC()
	return &m, nil
}

func (r *Registry) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// isUniqueViolation checks the extended result code on local databases. The
// libSQL client only relays the server's message, so remote errors fall back
// to matching its text.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
