package local

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/hop/internal/jobs"
	"github.com/MrSnakeDoc/hop/internal/logger"
)

type countingHandlers struct {
	mu      sync.Mutex
	clicked map[string]int
	fetched int
	block   chan struct{}
}

func newCountingHandlers() *countingHandlers {
	return &countingHandlers{clicked: make(map[string]int)}
}

func (c *countingHandlers) HandleLinkClicked(_ context.Context, j jobs.LinkClicked) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clicked[j.Code]++
	return nil
}

func (c *countingHandlers) HandleMetadataFetch(context.Context, jobs.MetadataFetch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetched++
	panic("fetcher exploded")
}

func TestQueueRunsEveryJobBeforeStopReturns(t *testing.T) {
	h := newCountingHandlers()
	q := New(100, 4, logger.NewNop())
	q.Start(context.Background(), h)

	for i := 0; i < 50; i++ {
		require.NoError(t, q.Enqueue(context.Background(), jobs.LinkClicked{Code: "abc123"}))
	}
	require.NoError(t, q.Enqueue(context.Background(), jobs.MetadataFetch{LinkID: 1, URL: "https://example.com"}))

	q.Stop()

	assert.Equal(t, 50, h.clicked["abc123"])
	assert.Equal(t, 1, h.fetched, "a panicking handler must not kill the worker")
}

func TestEnqueueFullBufferFailsFast(t *testing.T) {
	h := newCountingHandlers()
	h.block = make(chan struct{})
	q := New(1, 1, logger.NewNop())
	q.Start(context.Background(), h)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, jobs.LinkClicked{Code: "first1"}))

	// Wait for the single worker to pick the first job and block on it.
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, time.Millisecond)

	require.NoError(t, q.Enqueue(ctx, jobs.LinkClicked{Code: "second"}))

	start := time.Now()
	err := q.Enqueue(ctx, jobs.LinkClicked{Code: "third1"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(h.block)
	q.Stop()
	assert.Equal(t, 1, h.clicked["first1"])
	assert.Equal(t, 1, h.clicked["second"])
	assert.Equal(t, 0, h.clicked["third1"])
}

func TestEnqueueAfterStop(t *testing.T) {
	q := New(10, 1, logger.NewNop())
	q.Start(context.Background(), newCountingHandlers())
	q.Stop()
	q.Stop()

	err := q.Enqueue(context.Background(), jobs.LinkClicked{Code: "abc123"})
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, q.Ping(context.Background()), ErrQueueClosed)
}

// ctxCheckingHandlers fails like a database driver would on a done context.
type ctxCheckingHandlers struct {
	mu       sync.Mutex
	recorded int
	block    chan struct{}
}

func (c *ctxCheckingHandlers) HandleLinkClicked(ctx context.Context, _ jobs.LinkClicked) error {
	<-c.block
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorded++
	return nil
}

func (c *ctxCheckingHandlers) HandleMetadataFetch(context.Context, jobs.MetadataFetch) error {
	return nil
}

func TestStopDrainsAfterStartContextIsCancelled(t *testing.T) {
	h := &ctxCheckingHandlers{block: make(chan struct{})}
	q := New(20, 2, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx, h)

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(context.Background(), jobs.LinkClicked{Code: "abc123"}))
	}

	// Shutdown signal arrives while jobs are still buffered.
	cancel()
	close(h.block)
	q.Stop()

	assert.Equal(t, 10, h.recorded)
}
