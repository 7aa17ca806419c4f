package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/hop/internal/httpserver/mw"
	"github.com/MrSnakeDoc/hop/internal/links"
	"github.com/MrSnakeDoc/hop/internal/logger"
	"github.com/MrSnakeDoc/hop/internal/redirect"
)

// LinkCreator is satisfied by *links.Service.
type LinkCreator interface {
	Create(ctx context.Context, destination string, expiryHours *int) (*links.ShortLink, error)
}

// Resolver is satisfied by *redirect.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, code, userAgent string) (redirect.Outcome, error)
}

// Pinger is anything that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Component is a backing system reported by /readyz and /infra.
// A failing critical component takes the service out of rotation.
type Component struct {
	Name     string
	Driver   string // ex: "postgres", "redis", "nats"
	Critical bool
	Pinger   Pinger
}

type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
	TimeNow   func() time.Time // for testing, defaults to time.Now

	AllowedHosts []string // Host headers allowed on admin endpoints
	AllowedCIDRS []string // IPs allowed to access ops endpoints
	TrustProxy   bool     // true if running behind a trusted reverse proxy (e.g., cloudflared)

	Links         LinkCreator
	Resolver      Resolver
	Components    []Component
	PreviewMaxAge time.Duration      // Cache-Control max-age on crawler previews
	SweepTrigger  chan<- struct{}    // Channel to trigger a manual expiry sweep
	CreateLimit   mw.RateLimitConfig // per-IP limit on link creation
}
