package jobs

import (
	"context"

	"github.com/MrSnakeDoc/hop/internal/logger"
	"github.com/MrSnakeDoc/hop/internal/metrics"
)

// Fire enqueues job and forgets about it. A failure is logged and counted,
// never returned: the caller's response must not depend on it.
func Fire(ctx context.Context, d Dispatcher, job Job, log logger.Logger) {
	err := d.Enqueue(context.WithoutCancel(ctx), job)
	metrics.JobsEnqueued.WithLabelValues(string(job.Kind()), metrics.Status(err)).Inc()
	if err != nil {
		log.Warn("failed to enqueue job",
			logger.String("kind", string(job.Kind())),
			logger.Error(err))
	}
}
