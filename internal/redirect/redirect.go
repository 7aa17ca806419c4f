// Package redirect turns a short code and a User-Agent into either a
// redirect, a crawler preview or a not-found answer.
package redirect

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/hop/internal/domain"
	"github.com/MrSnakeDoc/hop/internal/jobs"
	"github.com/MrSnakeDoc/hop/internal/links"
	"github.com/MrSnakeDoc/hop/internal/logger"
	"github.com/MrSnakeDoc/hop/internal/metrics"
	"github.com/MrSnakeDoc/hop/internal/shortcode"
)

type Kind int

const (
	NotFound Kind = iota
	Redirect
	Preview
)

func (k Kind) String() string {
	switch k {
	case Redirect:
		return "redirect"
	case Preview:
		return "preview"
	default:
		return "not_found"
	}
}

// Outcome is the resolution result. Destination is set for Redirect and
// Preview; Preview fields only for Preview, with defaults applied.
type Outcome struct {
	Kind        Kind
	Destination string
	Preview     domain.PreviewFields
}

// LinkFinder is satisfied by *links.Service.
type LinkFinder interface {
	FindActive(ctx context.Context, code string) (*links.CachedLink, error)
}

// PreviewSource is satisfied by *metadata.Service.
type PreviewSource interface {
	Get(ctx context.Context, linkID int64) (*domain.PreviewFields, error)
}

// ReservedChecker is satisfied by *shortcode.Generator.
type ReservedChecker interface {
	IsReservedCode(code string) bool
}

type Options struct {
	Links    LinkFinder
	Metadata PreviewSource
	Reserved ReservedChecker
	Crawlers *CrawlerDetector
	Jobs     jobs.Dispatcher
	Logger   logger.Logger
}

type Resolver struct {
	links    LinkFinder
	metadata PreviewSource
	reserved ReservedChecker
	crawlers *CrawlerDetector
	jobs     jobs.Dispatcher
	logger   logger.Logger
}

func NewResolver(opts Options) *Resolver {
	crawlers := opts.Crawlers
	if crawlers == nil {
		crawlers = NewCrawlerDetector()
	}
	return &Resolver{
		links:    opts.Links,
		metadata: opts.Metadata,
		reserved: opts.Reserved,
		crawlers: crawlers,
		jobs:     opts.Jobs,
		logger:   opts.Logger,
	}
}

// Resolve never touches the store for malformed or reserved codes. A store
// failure is returned as an error; everything else is an Outcome.
func (r *Resolver) Resolve(ctx context.Context, code, userAgent string) (Outcome, error) {
	out, err := r.resolve(ctx, code, userAgent)
	if err != nil {
		metrics.Resolutions.WithLabelValues("error").Inc()
		return Outcome{}, err
	}
	metrics.Resolutions.WithLabelValues(out.Kind.String()).Inc()
	return out, nil
}

func (r *Resolver) resolve(ctx context.Context, code, userAgent string) (Outcome, error) {
	if !shortcode.IsValidFormat(code) || r.reserved.IsReservedCode(code) {
		return Outcome{Kind: NotFound}, nil
	}

	link, err := r.links.FindActive(ctx, code)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to resolve %s: %w", code, err)
	}
	if link == nil {
		return Outcome{Kind: NotFound}, nil
	}

	jobs.Fire(ctx, r.jobs, jobs.LinkClicked{Code: code}, r.logger)

	if !r.crawlers.IsCrawler(userAgent) {
		return Outcome{Kind: Redirect, Destination: link.Destination}, nil
	}

	return Outcome{
		Kind:        Preview,
		Destination: link.Destination,
		Preview:     r.preview(ctx, link),
	}, nil
}

// preview falls back to defaults when metadata is missing or unreadable.
func (r *Resolver) preview(ctx context.Context, link *links.CachedLink) domain.PreviewFields {
	var fields domain.PreviewFields

	meta, err := r.metadata.Get(ctx, link.ID)
	switch {
	case err != nil:
		r.logger.Warn("metadata lookup failed, rendering default preview",
			logger.Int64("link_id", link.ID),
			logger.Error(err))
	case meta != nil:
		fields = *meta
	}

	if fields.Title == "" {
		fields.Title = link.Destination
	}
	if fields.Type == "" {
		fields.Type = domain.DefaultPreviewType
	}
	return fields
}
