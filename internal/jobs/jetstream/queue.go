// Package jetstream carries jobs over a NATS JetStream stream.
//
// Publishing is asynchronous (PublishMsgAsync) so Enqueue returns before the
// broker acknowledges. Each message carries a Nats-Msg-Id so the stream drops
// duplicates inside its dedup window. Consumers share a durable queue group,
// ack manually and Nak on handler failure for redelivery.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/MrSnakeDoc/hop/internal/connect"
	"github.com/MrSnakeDoc/hop/internal/jobs"
	"github.com/MrSnakeDoc/hop/internal/logger"
	"github.com/MrSnakeDoc/hop/internal/metrics"
)

const (
	// SubjectPrefix is prepended to the job kind to build its subject.
	// Example: hop.jobs.link.clicked
	SubjectPrefix = "hop.jobs."

	defaultDurable    = "hop-workers"
	defaultMaxDeliver = 5
	defaultAckWait    = 30 * time.Second
	defaultMaxAge     = 7 * 24 * time.Hour
	defaultDedup      = 2 * time.Minute
	maxPendingAsync   = 1024
)

type Config struct {
	URL        string
	Stream     string
	Durable    string        // consumer and queue group name
	MaxDeliver int           // delivery attempts before the broker gives up
	AckWait    time.Duration // redelivery delay when a handler neither acks nor naks
	MaxAge     time.Duration // stream retention
}

func (c *Config) defaults() {
	if c.Durable == "" {
		c.Durable = defaultDurable
	}
	if c.MaxDeliver == 0 {
		c.MaxDeliver = defaultMaxDeliver
	}
	if c.AckWait <= 0 {
		c.AckWait = defaultAckWait
	}
	if c.MaxAge <= 0 {
		c.MaxAge = defaultMaxAge
	}
}

type Queue struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	cfg    Config
	logger logger.Logger
	sub    *nats.Subscription
	cancel context.CancelFunc

	closed    chan struct{} // closed by the connection's ClosedHandler
	closeOnce sync.Once
}

// Connect dials the server with retry, opens JetStream and makes sure the
// stream exists with the current configuration.
func Connect(ctx context.Context, cfg Config, retry connect.Options, log logger.Logger) (*Queue, error) {
	cfg.defaults()

	q := &Queue{cfg: cfg, logger: log, closed: make(chan struct{})}
	var conn *nats.Conn
	dial := func(context.Context) error {
		c, err := nats.Connect(
			cfg.URL,
			nats.Name("hop"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second),
			nats.PingInterval(20*time.Second),
			nats.Timeout(retry.PingTimeout),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					log.Warn("nats disconnected", logger.Error(err))
				}
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				log.Info("nats reconnected", logger.String("url", c.ConnectedUrl()))
			}),
			nats.ClosedHandler(func(*nats.Conn) {
				q.closeOnce.Do(func() { close(q.closed) })
			}),
		)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	if err := connect.WithRetry(ctx, "nats", cfg.URL, retry, dial, log); err != nil {
		return nil, err
	}

	js, err := conn.JetStream(
		nats.PublishAsyncMaxPending(maxPendingAsync),
		nats.PublishAsyncErrHandler(func(_ nats.JetStream, msg *nats.Msg, err error) {
			metrics.JobsEnqueued.WithLabelValues(kindOf(msg.Subject), "error").Inc()
			log.Warn("async job publish failed",
				logger.String("subject", msg.Subject),
				logger.Error(err))
		}),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open jetstream context: %w", err)
	}

	q.conn, q.js = conn, js
	if err := q.initStream(); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

// initStream creates the stream or updates it in place.
func (q *Queue) initStream() error {
	streamCfg := &nats.StreamConfig{
		Name:       q.cfg.Stream,
		Subjects:   []string{SubjectPrefix + ">"},
		Storage:    nats.FileStorage,
		Retention:  nats.WorkQueuePolicy,
		MaxAge:     q.cfg.MaxAge,
		Duplicates: defaultDedup,
		Replicas:   1,
	}

	_, err := q.js.StreamInfo(streamCfg.Name)
	if errors.Is(err, nats.ErrStreamNotFound) {
		if _, err := q.js.AddStream(streamCfg); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", streamCfg.Name, err)
		}
		q.logger.Info("jetstream stream created", logger.String("stream", streamCfg.Name))
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to read stream %s: %w", streamCfg.Name, err)
	}

	if _, err := q.js.UpdateStream(streamCfg); err != nil {
		return fmt.Errorf("failed to update stream %s: %w", streamCfg.Name, err)
	}
	return nil
}

// Enqueue publishes job without waiting for the broker ack. Failures after
// this point are reported through the async error handler.
func (q *Queue) Enqueue(_ context.Context, job jobs.Job) error {
	data, err := jobs.Encode(job)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(Subject(job.Kind()))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())

	if _, err := q.js.PublishMsgAsync(msg); err != nil {
		return fmt.Errorf("failed to publish %s job: %w", job.Kind(), err)
	}
	return nil
}

// Start subscribes the durable queue group and runs h for every delivery.
// Handlers keep ctx's values but are only cancelled by Close, so deliveries
// in flight when a shutdown signal arrives can still finish and ack.
func (q *Queue) Start(ctx context.Context, h jobs.Handlers) error {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel

	sub, err := q.js.QueueSubscribe(
		SubjectPrefix+">",
		q.cfg.Durable,
		func(msg *nats.Msg) { q.handle(ctx, h, msg) },
		nats.BindStream(q.cfg.Stream),
		nats.Durable(q.cfg.Durable),
		nats.ManualAck(),
		nats.AckWait(q.cfg.AckWait),
		nats.MaxDeliver(q.cfg.MaxDeliver),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe job consumer: %w", err)
	}
	q.sub = sub
	q.logger.Info("jetstream consumer started",
		logger.String("stream", q.cfg.Stream),
		logger.String("durable", q.cfg.Durable))
	return nil
}

func (q *Queue) handle(ctx context.Context, h jobs.Handlers, msg *nats.Msg) {
	job, err := jobs.Decode(msg.Data)
	if err != nil {
		// Redelivery cannot fix a payload we do not understand.
		metrics.JobsHandled.WithLabelValues(kindOf(msg.Subject), "dropped").Inc()
		q.logger.Error("dropping undecodable job",
			logger.String("subject", msg.Subject),
			logger.Error(err))
		_ = msg.Term()
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, q.cfg.AckWait)
	defer cancel()

	kind := string(job.Kind())
	if err := jobs.Handle(jobCtx, h, job); err != nil {
		metrics.JobsHandled.WithLabelValues(kind, "error").Inc()
		q.logger.Warn("job failed, requesting redelivery",
			logger.String("kind", kind),
			logger.Error(err))
		_ = msg.Nak()
		return
	}

	metrics.JobsHandled.WithLabelValues(kind, "ok").Inc()
	if err := msg.Ack(); err != nil {
		q.logger.Warn("failed to ack job", logger.String("kind", kind), logger.Error(err))
	}
}

// Ping reports whether the connection is up.
func (q *Queue) Ping(context.Context) error {
	if !q.conn.IsConnected() {
		return fmt.Errorf("nats not connected (status: %v)", q.conn.Status())
	}
	return nil
}

// Close drains the connection within timeout: pending publishes are flushed,
// the consumer stops taking deliveries and in-flight handlers finish before
// the connection closes. Past the deadline the connection is closed anyway
// and unacked jobs are left to redelivery.
func (q *Queue) Close(timeout time.Duration) {
	if q.conn.IsClosed() {
		return
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case <-q.js.PublishAsyncComplete():
	case <-deadline.C:
		q.logger.Warn("timed out waiting for pending job publishes",
			logger.Int("pending", q.js.PublishAsyncPending()))
		q.forceClose()
		return
	}

	if err := q.conn.Drain(); err != nil {
		q.logger.Warn("failed to drain nats connection", logger.Error(err))
		q.forceClose()
		return
	}

	select {
	case <-q.closed:
	case <-deadline.C:
		q.logger.Warn("timed out draining nats connection")
		q.forceClose()
		return
	}
	if q.cancel != nil {
		q.cancel()
	}
}

func (q *Queue) forceClose() {
	if q.cancel != nil {
		q.cancel()
	}
	q.conn.Close()
}

// Subject returns the subject a job kind is published on.
func Subject(kind jobs.Kind) string {
	return SubjectPrefix + string(kind)
}

func kindOf(subject string) string {
	if len(subject) > len(SubjectPrefix) {
		return subject[len(SubjectPrefix):]
	}
	return subject
}
