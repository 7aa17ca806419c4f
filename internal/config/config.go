package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	RegistryPostgres = "postgres"
	RegistrySQLite   = "sqlite"
	RegistryMemory   = "memory"

	CacheRedis  = "redis"
	CacheMemory = "memory"

	QueueNATS  = "nats"
	QueueLocal = "local"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	BaseURL    string // public origin used to build short URLs (ex: https://hop.domain.ext)
	PolicyFile string // optional YAML with extra reserved codes and crawler signatures
	NodeID     int64  // snowflake node id, unique per replica (0..1023)

	// Link lifetime
	DefaultExpiry time.Duration // applied when the caller gives no expiry (default: 24h)
	MaxExpiry     time.Duration // upper bound for caller supplied expiry (default: 8760h)

	// Cache policies
	LinkCacheTTL        time.Duration // ceiling for positive link entries (default: 1h)
	LinkNegativeTTL     time.Duration // negative link entries (default: 15s)
	MetadataCacheTTL    time.Duration // positive metadata entries (default: 1h)
	MetadataNegativeTTL time.Duration // negative metadata entries (default: 15m)
	PreviewMaxAge       time.Duration // Cache-Control max-age on preview pages (default: 1h)

	// Expiry sweeper
	SweepEnabled      bool          // false => no scheduled sweep, manual trigger still accepted
	SweepInterval     time.Duration // default: 24h
	SweepOnStart      bool          // run one sweep right after boot
	SweepWarnCount    int64         // warn when a run affects more rows (default: 1000)
	SweepWarnDuration time.Duration // warn when a run takes longer (default: 10s)

	// Registry
	RegistryDriver string // "postgres" | "sqlite" | "memory"
	DatabaseURL    string // postgres DSN, sqlite file path or libsql:// URL
	DBMigrate      bool   // run embedded migrations on boot
	DBMaxConns     int    // pool size for postgres

	// Cache
	CacheDriver string // "redis" | "memory"

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisPoolSize         int           // Redis connection pool size

	// Shared connect retry policy (redis, postgres, nats)
	ConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RetryMaxWait   time.Duration // max wait between retries (ex: 10s)
	PingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	WarnThreshold  int           // warn after this many attempts

	// Jobs
	QueueDriver       string        // "nats" | "local"
	NATSURL           string        // ex: nats://localhost:4222
	NATSStream        string        // JetStream stream name
	WorkerEnabled     bool          // consume jobs in this process
	WorkerConcurrency int           // local queue workers
	LocalQueueSize    int           // local queue buffer
	FetchTimeout      time.Duration // metadata fetch timeout (default: 10s)

	// HTTP edge
	RequestTimeout   time.Duration // per-request timeout (default: 5s)
	CreateRateBurst  int           // link creation burst per client IP (default: 20)
	CreateRatePerMin int           // link creation refill per client IP per minute (default: 60)

	AllowedCIDRS []string // optional, restrict ops endpoints to specific IP ranges
	AllowedHosts []string // optional, Host headers accepted on admin endpoints (supports *.domain.ext)
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

func Load() *Config {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load()

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("HOP_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("HOP_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("HOP_LOG_LEVEL", "info"),
		PrettyLog: mustBool("HOP_PRETTY_LOG", true),

		BaseURL:    strings.TrimRight(requireEnv("HOP_BASE_URL"), "/"),
		PolicyFile: getenv("HOP_POLICY_FILE", ""),
		NodeID:     int64(getenvInt("HOP_NODE_ID", 1)),

		DefaultExpiry: mustDuration("HOP_DEFAULT_EXPIRY", 24*time.Hour),
		MaxExpiry:     mustDuration("HOP_MAX_EXPIRY", 8760*time.Hour),

		LinkCacheTTL:        mustDuration("HOP_LINK_CACHE_TTL", time.Hour),
		LinkNegativeTTL:     mustDuration("HOP_LINK_NEGATIVE_TTL", 15*time.Second),
		MetadataCacheTTL:    mustDuration("HOP_METADATA_CACHE_TTL", time.Hour),
		MetadataNegativeTTL: mustDuration("HOP_METADATA_NEGATIVE_TTL", 15*time.Minute),
		PreviewMaxAge:       mustDuration("HOP_PREVIEW_MAX_AGE", time.Hour),

		SweepEnabled:      mustBool("HOP_SWEEP_ENABLED", true),
		SweepInterval:     mustDuration("HOP_SWEEP_INTERVAL", 24*time.Hour),
		SweepOnStart:      mustBool("HOP_SWEEP_ON_START", false),
		SweepWarnCount:    int64(getenvInt("HOP_SWEEP_WARN_COUNT", 1000)),
		SweepWarnDuration: mustDuration("HOP_SWEEP_WARN_DURATION", 10*time.Second),

		RegistryDriver: oneOf("HOP_REGISTRY_DRIVER", RegistryPostgres, RegistryPostgres, RegistrySQLite, RegistryMemory),
		DatabaseURL:    getenv("HOP_DATABASE_URL", ""),
		DBMigrate:      mustBool("HOP_DB_MIGRATE", true),
		DBMaxConns:     getenvInt("HOP_DB_MAX_CONNS", 10),

		CacheDriver: oneOf("HOP_CACHE_DRIVER", CacheRedis, CacheRedis, CacheMemory),

		// Redis settings
		RedisAddr:             getenv("HOP_REDIS_ADDR", "localhost:6379"),
		RedisUser:             getenv("HOP_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("HOP_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("HOP_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("HOP_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),

		ConnectTimeout: mustDuration("HOP_CONNECT_TIMEOUT", 30*time.Second),
		RetryInterval:  mustDuration("HOP_RETRY_INTERVAL", 2*time.Second),
		RetryMaxWait:   mustDuration("HOP_RETRY_MAX_WAIT", 10*time.Second),
		PingTimeout:    mustDuration("HOP_PING_TIMEOUT", 5*time.Second),
		WarnThreshold:  getenvInt("HOP_WARN_THRESHOLD", 3),

		QueueDriver:       oneOf("HOP_QUEUE_DRIVER", QueueNATS, QueueNATS, QueueLocal),
		NATSURL:           getenv("HOP_NATS_URL", "nats://localhost:4222"),
		NATSStream:        getenv("HOP_NATS_STREAM", "HOP_JOBS"),
		WorkerEnabled:     mustBool("HOP_WORKER_ENABLED", true),
		WorkerConcurrency: getenvInt("HOP_WORKER_CONCURRENCY", 4),
		LocalQueueSize:    getenvInt("HOP_LOCAL_QUEUE_SIZE", 1024),
		FetchTimeout:      mustDuration("HOP_FETCH_TIMEOUT", 10*time.Second),

		RequestTimeout:   mustDuration("HOP_REQUEST_TIMEOUT", 5*time.Second),
		CreateRateBurst:  getenvInt("HOP_CREATE_RATE_BURST", 20),
		CreateRatePerMin: getenvInt("HOP_CREATE_RATE_PER_MIN", 60),

		// Access restrictions
		AllowedCIDRS: parseAllowedIPs(getenv("HOP_ALLOWED_CIDRS", "")),
		AllowedHosts: splitAndTrim(getenv("HOP_ALLOWED_HOSTS", "")),
		TrustProxy:   mustBool("HOP_TRUST_PROXY", true),
	}

	if cfg.RegistryDriver != RegistryMemory && cfg.DatabaseURL == "" {
		panic(fmt.Sprintf("❌ FATAL: HOP_DATABASE_URL is required when HOP_REGISTRY_DRIVER=%s", cfg.RegistryDriver))
	}

	// Validate Redis password configuration
	if cfg.CacheDriver == CacheRedis && cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: HOP_REDIS_PASSWORD is required when HOP_REDIS_PASSWORD_REQUIRED=true")
	}

	if cfg.NodeID < 0 || cfg.NodeID > 1023 {
		panic(fmt.Sprintf("❌ FATAL: HOP_NODE_ID must be in [0, 1023], got %d", cfg.NodeID))
	}

	if cfg.DefaultExpiry > cfg.MaxExpiry {
		panic(fmt.Sprintf("❌ FATAL: HOP_DEFAULT_EXPIRY (%v) exceeds HOP_MAX_EXPIRY (%v)", cfg.DefaultExpiry, cfg.MaxExpiry))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		if cfg.DatabaseURL != "" {
			cfgCopy.DatabaseURL = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

// oneOf reads key (lowercased) and panics if the value is not in allowed.
func oneOf(key, def string, allowed ...string) string {
	v := strings.ToLower(getenv(key, def))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	panic(fmt.Sprintf("❌ FATAL: Invalid value for %s: %q (allowed: %s)", key, v, strings.Join(allowed, ", ")))
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
