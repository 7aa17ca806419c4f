package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/hop/internal/cache"
	"github.com/MrSnakeDoc/hop/internal/config"
	"github.com/MrSnakeDoc/hop/internal/connect"
	"github.com/MrSnakeDoc/hop/internal/domain"
	"github.com/MrSnakeDoc/hop/internal/httpserver"
	"github.com/MrSnakeDoc/hop/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hop/internal/httpserver/mw"
	"github.com/MrSnakeDoc/hop/internal/jobs"
	"github.com/MrSnakeDoc/hop/internal/jobs/jetstream"
	"github.com/MrSnakeDoc/hop/internal/jobs/local"
	"github.com/MrSnakeDoc/hop/internal/links"
	"github.com/MrSnakeDoc/hop/internal/logger"
	"github.com/MrSnakeDoc/hop/internal/metadata"
	"github.com/MrSnakeDoc/hop/internal/policy"
	"github.com/MrSnakeDoc/hop/internal/redirect"
	"github.com/MrSnakeDoc/hop/internal/redis"
	"github.com/MrSnakeDoc/hop/internal/registry"
	"github.com/MrSnakeDoc/hop/internal/registry/memory"
	"github.com/MrSnakeDoc/hop/internal/registry/postgres"
	"github.com/MrSnakeDoc/hop/internal/registry/sqlite"
	"github.com/MrSnakeDoc/hop/internal/scheduler"
	"github.com/MrSnakeDoc/hop/internal/shortcode"
	redisstore "github.com/MrSnakeDoc/hop/internal/store/redis"
	"github.com/MrSnakeDoc/hop/internal/utils"
	"github.com/MrSnakeDoc/hop/internal/version"
	"github.com/MrSnakeDoc/hop/internal/worker"
)

// queue is what the app needs from either job backend.
type queue interface {
	jobs.Dispatcher
	deps.Pinger
}

type App struct {
	cfg     *config.Config
	logger  logger.Logger
	server  *httpserver.Server
	sweeper *scheduler.Sweeper

	queue    queue
	handlers jobs.Handlers
	startJob func(ctx context.Context) error
	stopJob  func()

	// closed in reverse order on shutdown
	closers []namedCloser
}

type namedCloser struct {
	name string
	utils.CloserFunc
}

// New wires every component. Backing systems are dialed with retry; an
// unreachable one fails startup.
func New() (*App, error) {
	cfg := config.Load()
	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	a := &App{cfg: cfg, logger: loggerClient}

	ctx := context.Background()
	retry := connect.Options{
		ConnectTimeout: cfg.ConnectTimeout,
		RetryInterval:  cfg.RetryInterval,
		MaxWait:        cfg.RetryMaxWait,
		PingTimeout:    cfg.PingTimeout,
		WarnThreshold:  cfg.WarnThreshold,
	}

	pol, err := policy.NewLoader(cfg.PolicyFile).Load()
	if err != nil {
		return nil, err
	}
	if cfg.PolicyFile != "" {
		loggerClient.Info("policy file loaded",
			logger.String("file", cfg.PolicyFile),
			logger.Int("reserved_codes", len(pol.ReservedCodes)),
			logger.Int("crawler_signatures", len(pol.CrawlerSignatures)))
	}

	reg, err := a.openRegistry(ctx, retry)
	if err != nil {
		return nil, a.abort(err)
	}

	backend, cachePinger, err := a.openCache(ctx, retry)
	if err != nil {
		return nil, a.abort(err)
	}

	if err := a.openQueue(ctx, retry); err != nil {
		return nil, a.abort(err)
	}

	ids, err := links.NewSnowflakeIDs(cfg.NodeID)
	if err != nil {
		return nil, a.abort(err)
	}
	codes := shortcode.New(reg, pol.ReservedCodes...)

	linkSvc := links.NewService(links.Options{
		Store: reg,
		Cache: cache.NewStore[links.CachedLink](backend, "link", cache.Policy{
			Positive: cfg.LinkCacheTTL,
			Negative: cfg.LinkNegativeTTL,
		}, loggerClient),
		Codes:         codes,
		IDs:           ids,
		Jobs:          a.queue,
		Logger:        loggerClient,
		BaseURL:       cfg.BaseURL,
		DefaultExpiry: cfg.DefaultExpiry,
		MaxExpiry:     cfg.MaxExpiry,
	})

	metaSvc := metadata.NewService(reg,
		metadata.NewOpenGraphFetcher(cfg.FetchTimeout),
		cache.NewStore[domain.PreviewFields](backend, "metadata", cache.Policy{
			Positive: cfg.MetadataCacheTTL,
			Negative: cfg.MetadataNegativeTTL,
		}, loggerClient),
		loggerClient)

	resolver := redirect.NewResolver(redirect.Options{
		Links:    linkSvc,
		Metadata: metaSvc,
		Reserved: codes,
		Crawlers: redirect.NewCrawlerDetector(pol.CrawlerSignatures...),
		Jobs:     a.queue,
		Logger:   loggerClient,
	})

	a.handlers = worker.New(linkSvc, metaSvc, loggerClient)

	sweepTrigger := make(chan struct{}, 1)
	interval := cfg.SweepInterval
	if !cfg.SweepEnabled {
		interval = 0
	}
	a.sweeper = scheduler.NewSweeper(reg, loggerClient, scheduler.SweeperOptions{
		Interval:     interval,
		RunOnStart:   cfg.SweepEnabled && cfg.SweepOnStart,
		WarnCount:    cfg.SweepWarnCount,
		WarnDuration: cfg.SweepWarnDuration,
		Trigger:      sweepTrigger,
	})

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:       loggerClient,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		TimeNow:      time.Now,
		AllowedHosts: cfg.AllowedHosts,
		AllowedCIDRS: cfg.AllowedCIDRS,
		TrustProxy:   cfg.TrustProxy,
		Links:        linkSvc,
		Resolver:     resolver,
		Components: []deps.Component{
			{Name: "registry", Driver: cfg.RegistryDriver, Critical: true, Pinger: reg},
			{Name: "cache", Driver: cfg.CacheDriver, Pinger: cachePinger},
			{Name: "queue", Driver: cfg.QueueDriver, Pinger: a.queue},
		},
		PreviewMaxAge: cfg.PreviewMaxAge,
		SweepTrigger:  sweepTrigger,
		CreateLimit: mw.RateLimitConfig{
			Burst:             cfg.CreateRateBurst,
			RefillPerIPPerMin: cfg.CreateRatePerMin,
			MaxEntries:        100_000,
			TrustProxy:        cfg.TrustProxy,
		},
	}

	a.server = httpserver.New(cfg, loggerClient, d)
	return a, nil
}

func (a *App) openRegistry(ctx context.Context, retry connect.Options) (registry.Registry, error) {
	cfg := a.cfg
	a.logger.Info("opening link registry", logger.String("driver", cfg.RegistryDriver))

	switch cfg.RegistryDriver {
	case config.RegistryPostgres:
		if cfg.DBMigrate {
			if err := migratePostgres(cfg.DatabaseURL, a.logger); err != nil {
				return nil, err
			}
		}
		reg, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, retry, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.closers = append(a.closers, namedCloser{"postgres", reg.Close})
		return reg, nil

	case config.RegistrySQLite:
		reg, err := sqlite.Open(ctx, cfg.DatabaseURL, cfg.DBMigrate)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, namedCloser{"sqlite", reg.Close})
		return reg, nil

	default:
		a.logger.Warn("in-memory registry: links are lost on restart")
		return memory.New(), nil
	}
}

func migratePostgres(databaseURL string, log logger.Logger) error {
	m, err := postgres.NewMigrator(databaseURL, log)
	if err != nil {
		return err
	}
	defer utils.MustClose(m, "migrator", log)
	return m.Up()
}

func (a *App) openCache(ctx context.Context, retry connect.Options) (cache.Backend, deps.Pinger, error) {
	cfg := a.cfg
	if cfg.CacheDriver == config.CacheMemory {
		a.logger.Info("using in-process cache")
		b := cache.NewMemoryBackend()
		return b, b, nil
	}

	a.logger.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	client, err := redis.New(ctx, redis.ConnectOptions{
		Addr:         cfg.RedisAddr,
		User:         cfg.RedisUser,
		Password:     cfg.RedisPassword,
		RedisDB:      cfg.RedisDB,
		DialTimeout:  cfg.RedisDT,
		ReadTimeout:  cfg.RedisRT,
		WriteTimeout: cfg.RedisWT,
		PoolSize:     cfg.RedisPoolSize,
		Retry:        retry,
	}, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.closers = append(a.closers, namedCloser{"redis", client.Close})
	a.logger.Info("Redis initialized successfully")

	store := redisstore.NewStore(client)
	return store, store, nil
}

func (a *App) openQueue(ctx context.Context, retry connect.Options) error {
	cfg := a.cfg

	if cfg.QueueDriver == config.QueueLocal {
		q := local.New(cfg.LocalQueueSize, cfg.WorkerConcurrency, a.logger)
		if !cfg.WorkerEnabled {
			a.logger.Warn("local queue has no other consumer, starting workers despite HOP_WORKER_ENABLED=false")
		}
		a.queue = q
		a.startJob = func(ctx context.Context) error {
			q.Start(ctx, a.handlers)
			return nil
		}
		a.stopJob = q.Stop
		return nil
	}

	q, err := jetstream.Connect(ctx, jetstream.Config{
		URL:    cfg.NATSURL,
		Stream: cfg.NATSStream,
	}, retry, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}
	a.queue = q
	a.startJob = func(ctx context.Context) error {
		if !cfg.WorkerEnabled {
			a.logger.Info("job worker disabled, this instance only publishes")
			return nil
		}
		return q.Start(ctx, a.handlers)
	}
	a.stopJob = func() { q.Close(cfg.ShutdownTimeout) }
	return nil
}

// abort releases whatever New opened before failing, the job queue included.
func (a *App) abort(err error) error {
	a.shutdownJobs()
	a.closeAll()
	return err
}

// shutdownJobs stops the queue at most once.
func (a *App) shutdownJobs() {
	if a.stopJob == nil {
		return
	}
	stop := a.stopJob
	a.stopJob = nil
	stop()
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		utils.MustClose(c.CloserFunc, c.name, a.logger)
	}
	a.closers = nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting hop %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.startJob(ctx); err != nil {
		a.shutdownJobs()
		a.closeAll()
		return fmt.Errorf("failed to start job worker: %w", err)
	}
	a.logger.Info("job queue started",
		logger.String("driver", a.cfg.QueueDriver),
		logger.Bool("worker", a.cfg.WorkerEnabled))

	a.sweeper.Start(ctx)
	a.logger.Info("expiry sweeper started",
		logger.Bool("scheduled", a.cfg.SweepEnabled),
		logger.Duration("interval", a.cfg.SweepInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	// Requests are done; nothing enqueues past this point.
	a.sweeper.Stop()
	a.shutdownJobs()
	a.closeAll()

	if runErr != nil {
		return runErr
	}
	a.logger.Info("✅ hop stopped cleanly")
	_ = a.logger.Sync()
	return nil
}
