package handlers

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/hop/internal/httpserver/deps"
)

const pingTimeout = 2 * time.Second

type pingResult struct {
	component deps.Component
	latency   time.Duration
	err       error
}

// pingAll pings every component concurrently, each bounded by pingTimeout.
// Results keep the order of components. A failed ping is a result, not a
// group error, so one broken dependency never cancels the others.
func pingAll(ctx context.Context, components []deps.Component) []pingResult {
	results := make([]pingResult, len(components))

	var g errgroup.Group
	for i, c := range components {
		i, c := i, c
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()

			start := time.Now()
			err := c.Pinger.Ping(pctx)
			results[i] = pingResult{component: c, latency: time.Since(start), err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
