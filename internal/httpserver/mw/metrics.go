package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/hop/internal/metrics"
)

// Metrics records request count and latency per route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		metrics.RequestCount.WithLabelValues(route, r.Method, strconv.Itoa(statusOf(ww))).Inc()
		metrics.RequestLatency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
