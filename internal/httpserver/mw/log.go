package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/hop/internal/logger"
	"github.com/MrSnakeDoc/hop/internal/utils"
)

// routePattern returns the chi pattern that served r, or "unmatched".
// Every short code shares "/{code}", which keeps logs and metric labels
// free of user input.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// outcome buckets a status for dashboards and log queries.
func outcome(status int) string {
	switch {
	case status >= 500:
		return "server_error"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusTooManyRequests:
		return "limited"
	case status >= 400:
		return "client_error"
	case status >= 300:
		return "redirect"
	default:
		return "ok"
	}
}

func statusOf(ww middleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

// Log writes one line per request. Server errors log at error level, the rest
// at info. The client address honours trustProxy the same way the rate
// limiter does, so both agree on who a caller is.
func Log(loggerClient logger.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := statusOf(ww)
			fields := []logger.Field{
				logger.String("route", routePattern(r)),
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", status),
				logger.String("outcome", outcome(status)),
				logger.Int("bytes", ww.BytesWritten()),
				logger.Duration("duration", time.Since(start)),
				logger.String("client_ip", utils.ClientIP(r, trustProxy)),
				logger.String("user_agent", r.UserAgent()),
				logger.String("request_id", middleware.GetReqID(r.Context())),
			}
			if status >= 500 {
				loggerClient.Error("http_request", fields...)
				return
			}
			loggerClient.Info("http_request", fields...)
		})
	}
}
