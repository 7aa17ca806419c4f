// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "hop"
)

var (
	// RequestCount counts HTTP requests by route pattern, method and status code.
	RequestCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_count",
		Help:      "Number of requests received.",
	}, []string{"route", "method", "status"})

	// RequestLatency observes HTTP handler latency in seconds.
	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_latency_seconds",
		Help:      "Duration of requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	// Resolutions counts redirect resolutions by outcome (redirect, preview, not_found, error).
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redirect",
		Name:      "resolutions_total",
		Help:      "Short code resolutions by outcome.",
	}, []string{"outcome"})

	// CacheLookups counts cache reads by entity and result (hit, negative_hit, miss, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by entity and result.",
	}, []string{"entity", "result"})

	// CacheWriteErrors counts swallowed cache write failures.
	CacheWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "write_errors_total",
		Help:      "Cache writes that failed and were ignored.",
	}, []string{"entity"})

	// JobsEnqueued counts enqueue attempts by job kind and status (ok, error).
	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "enqueued_total",
		Help:      "Job enqueue attempts by kind and status.",
	}, []string{"kind", "status"})

	// JobsHandled counts consumed jobs by kind and status (ok, error, dropped).
	JobsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "handled_total",
		Help:      "Consumed jobs by kind and status.",
	}, []string{"kind", "status"})

	// LinksCreated counts successfully created links.
	LinksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "links",
		Name:      "created_total",
		Help:      "Links created.",
	})

	// MetadataFetches counts metadata fetches by recorded outcome.
	MetadataFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "metadata",
		Name:      "fetches_total",
		Help:      "Metadata fetches by outcome.",
	}, []string{"outcome"})

	// SweptLinks counts links soft-deleted by the expiry sweeper.
	SweptLinks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "swept_links_total",
		Help:      "Expired links soft-deleted.",
	})

	// SweepRuns counts sweeper runs by status (ok, error).
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "runs_total",
		Help:      "Sweeper runs by status.",
	}, []string{"status"})
)

// Status returns "ok" or "error" for a label value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
