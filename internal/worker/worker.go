// Package worker binds job kinds to the services that execute them.
package worker

import (
	"context"

	"github.com/MrSnakeDoc/hop/internal/jobs"
	"github.com/MrSnakeDoc/hop/internal/logger"
)

// ClickRecorder is satisfied by *links.Service.
type ClickRecorder interface {
	RecordClick(ctx context.Context, code string) error
}

// MetadataFetcher is satisfied by *metadata.Service.
type MetadataFetcher interface {
	FetchAndStore(ctx context.Context, linkID int64, url string) error
}

// Handlers implements jobs.Handlers. Returned errors make the queue retry.
type Handlers struct {
	clicks   ClickRecorder
	metadata MetadataFetcher
	logger   logger.Logger
}

var _ jobs.Handlers = (*Handlers)(nil)

func New(clicks ClickRecorder, meta MetadataFetcher, log logger.Logger) *Handlers {
	return &Handlers{
		clicks:   clicks,
		metadata: meta,
		logger:   log.With(logger.String("component", "worker")),
	}
}

func (h *Handlers) HandleLinkClicked(ctx context.Context, job jobs.LinkClicked) error {
	if err := h.clicks.RecordClick(ctx, job.Code); err != nil {
		h.logger.Warn("click accounting failed",
			logger.String("code", job.Code),
			logger.Error(err))
		return err
	}
	return nil
}

func (h *Handlers) HandleMetadataFetch(ctx context.Context, job jobs.MetadataFetch) error {
	h.logger.Debug("fetching metadata",
		logger.Int64("link_id", job.LinkID),
		logger.String("url", job.URL))

	if err := h.metadata.FetchAndStore(ctx, job.LinkID, job.URL); err != nil {
		h.logger.Error("metadata job failed",
			logger.Int64("link_id", job.LinkID),
			logger.Error(err))
		return err
	}
	return nil
}
