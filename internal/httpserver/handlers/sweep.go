package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/hop/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hop/internal/logger"
)

// Sweep asks the expiry sweeper for an immediate run. The trigger channel
// holds one pending request; further requests get 429 until it is picked up.
func Sweep(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.SweepTrigger == nil {
			writeError(w, http.StatusServiceUnavailable, "expiry sweeper is not running")
			return
		}

		select {
		case d.SweepTrigger <- struct{}{}:
			d.Logger.Info("manual expiry sweep triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			w.WriteHeader(http.StatusAccepted)
			if _, err := w.Write([]byte("✅ Sweep triggered\n")); err != nil {
				d.Logger.Debug("failed to write response", logger.Error(err))
			}
		default:
			d.Logger.Warn("expiry sweep already pending",
				logger.String("remote_ip", r.RemoteAddr))
			w.WriteHeader(http.StatusTooManyRequests)
			if _, err := w.Write([]byte("⏳ Sweep already pending, please wait\n")); err != nil {
				d.Logger.Debug("failed to write response", logger.Error(err))
			}
		}
	}
}
