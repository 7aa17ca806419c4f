package domain

import "time"

// Link is the durable record behind a short code.
//
// A Link is never hard-deleted. Expired links are soft-deleted by the
// expiry sweeper and stay in the registry so their codes are never reused.
type Link struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is the internal identifier (snowflake).
	ID int64

	// Code is the public short code.
	// Example: aZ3_k9
	Code string

	// Destination is the absolute http(s) URL the code redirects to.
	Destination string

	// ─────────────────────────────
	// Lifetime
	// ─────────────────────────────

	CreatedAt time.Time
	UpdatedAt time.Time

	// ExpiresAt is the instant after which the link no longer resolves.
	ExpiresAt time.Time

	// Deleted marks a link as soft-deleted by the sweeper.
	Deleted bool

	// ─────────────────────────────
	// Accounting
	// ─────────────────────────────

	// ClickCount is incremented by the click accounting job.
	// Redelivered jobs may count a click twice.
	ClickCount int64
}

// Resolvable reports whether the link may be served at instant now.
func (l *Link) Resolvable(now time.Time) bool {
	return l != nil && !l.Deleted && l.ExpiresAt.After(now)
}
