package mw

import (
	"net/http"

	"github.com/MrSnakeDoc/hop/internal/logger"
	"github.com/MrSnakeDoc/hop/internal/utils"
)

const forbiddenBody = `{"message":"forbidden","error":"Forbidden","statusCode":403}` + "\n"

// AllowOnlyCIDRS guards the ops surface (/readyz, /infra, /metrics,
// /admin/*) with an allow list of IPs and CIDRs. An empty list disables the
// check. trustProxy must only be set behind a trusted reverse proxy.
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(allowed)
	if m.IsEmpty() {
		log.Debug("ops allow list empty, ops endpoints are public")
		return func(next http.Handler) http.Handler { return next }
	}

	log.Debug("ops allow list enabled",
		logger.Int("rules", len(allowed)),
		logger.Bool("trust_proxy", trustProxy))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if !m.Allow(ip) {
				log.Warn("ops request rejected",
					logger.String("client_ip", ip),
					logger.String("route", routePattern(r)),
					logger.String("path", r.URL.Path))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(forbiddenBody))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
