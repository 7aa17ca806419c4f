// Package local runs jobs on in-process worker goroutines fed by a bounded
// channel. Jobs are lost on crash; use the JetStream queue where that matters.
package local

import (
	"context"
	"errors"
	"sync"

	"github.com/MrSnakeDoc/hop/internal/jobs"
	"github.com/MrSnakeDoc/hop/internal/logger"
	"github.com/MrSnakeDoc/hop/internal/metrics"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer is at capacity.
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueClosed is returned by Enqueue after Stop.
	ErrQueueClosed = errors.New("job queue is closed")
)

type Queue struct {
	mu      sync.RWMutex
	closed  bool
	ch      chan jobs.Job
	workers int
	logger  logger.Logger
	wg      sync.WaitGroup
}

// New creates a queue holding up to size pending jobs, consumed by workers
// goroutines once Start is called.
func New(size, workers int, log logger.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		ch:      make(chan jobs.Job, size),
		workers: workers,
		logger:  log,
	}
}

// Enqueue never blocks: a full buffer fails immediately.
func (q *Queue) Enqueue(_ context.Context, job jobs.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the workers. Jobs run with ctx's values but not its
// cancellation: Stop, not ctx, ends the workers, so jobs drained after a
// shutdown signal still reach the registry.
func (q *Queue) Start(ctx context.Context, h jobs.Handlers) {
	ctx = context.WithoutCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(id int) {
			defer q.wg.Done()
			for job := range q.ch {
				q.run(ctx, h, job, id)
			}
		}(i)
	}
	q.logger.Info("local job workers started", logger.Int("workers", q.workers))
}

func (q *Queue) run(ctx context.Context, h jobs.Handlers, job jobs.Job, worker int) {
	kind := string(job.Kind())
	defer func() {
		if r := recover(); r != nil {
			metrics.JobsHandled.WithLabelValues(kind, "error").Inc()
			q.logger.Error("job handler panicked",
				logger.String("kind", kind),
				logger.Int("worker", worker),
				logger.String("panic", panicString(r)))
		}
	}()

	err := jobs.Handle(ctx, h, job)
	metrics.JobsHandled.WithLabelValues(kind, metrics.Status(err)).Inc()
	if err != nil {
		// No redelivery in-process.
		q.logger.Warn("job failed",
			logger.String("kind", kind),
			logger.Int("worker", worker),
			logger.Error(err))
	}
}

// Stop rejects new jobs, lets the workers drain the buffer and waits for them.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	q.wg.Wait()
	q.logger.Info("local job workers stopped")
}

// Pending returns the number of buffered jobs.
func (q *Queue) Pending() int {
	return len(q.ch)
}

// Ping reports whether the queue still accepts jobs.
func (q *Queue) Ping(context.Context) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	return nil
}

func panicString(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "non-string panic value"
}
