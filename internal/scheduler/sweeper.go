package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/hop/internal/logger"
	"github.com/MrSnakeDoc/hop/internal/metrics"
)

const (
	// DefaultSweepWarnCount is the affected row count above which a run warns.
	DefaultSweepWarnCount = 1000
	// DefaultSweepWarnDuration is the run duration above which a run warns.
	DefaultSweepWarnDuration = 10 * time.Second
)

// ExpiredSweeper is the registry capability the sweeper needs.
type ExpiredSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type SweeperOptions struct {
	// Interval between scheduled runs. Zero disables the ticker; manual
	// triggers are still served.
	Interval     time.Duration
	RunOnStart   bool
	WarnCount    int64
	WarnDuration time.Duration
	// Trigger receives manual sweep requests (POST /admin/sweep).
	Trigger <-chan struct{}
	// Now defaults to time.Now.
	Now func() time.Time
}

// Sweeper soft-deletes expired links on a schedule. Cached entries are left
// alone: their TTL never outlives the link's expiry.
type Sweeper struct {
	registry ExpiredSweeper
	logger   logger.Logger
	opts     SweeperOptions

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSweeper(registry ExpiredSweeper, log logger.Logger, opts SweeperOptions) *Sweeper {
	if opts.WarnCount <= 0 {
		opts.WarnCount = DefaultSweepWarnCount
	}
	if opts.WarnDuration <= 0 {
		opts.WarnDuration = DefaultSweepWarnDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{
		registry: registry,
		logger:   log.With(logger.String("component", "sweeper")),
		opts:     opts,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop and returns immediately.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	var tick <-chan time.Time
	if s.opts.Interval > 0 {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	if s.opts.RunOnStart {
		s.run(ctx, "start")
	}
	for {
		select {
		case <-tick:
			s.run(ctx, "schedule")
		case <-s.opts.Trigger:
			s.logger.Info("manual sweep triggered")
			s.run(ctx, "manual")
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the loop and waits for an in-flight run. Safe to call twice.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// run is one loop iteration; failures wait for the next tick.
func (s *Sweeper) run(ctx context.Context, reason string) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("expiry sweep failed",
			logger.String("trigger", reason),
			logger.Error(err))
	}
}

// Sweep soft-deletes every live link whose expiry has passed and returns
// how many were affected. Running it twice in a row is harmless.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	start := time.Now()

	n, err := s.registry.SweepExpired(ctx, s.opts.Now().UTC())
	elapsed := time.Since(start)
	metrics.SweepRuns.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired links: %w", err)
	}
	metrics.SweptLinks.Add(float64(n))

	fields := []logger.Field{
		logger.Int64("swept", n),
		logger.Duration("took", elapsed),
	}
	switch {
	case n > s.opts.WarnCount:
		s.logger.Warn("expiry sweep affected an unusually large batch", fields...)
	case elapsed > s.opts.WarnDuration:
		s.logger.Warn("expiry sweep was slow", fields...)
	case n > 0:
		s.logger.Info("expiry sweep completed", fields...)
	default:
		s.logger.Debug("no expired links to sweep", fields...)
	}
	return n, nil
}
