package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/MrSnakeDoc/hop/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hop/internal/logger"
)

type readyzResponse struct {
	Ready  bool     `json:"ready"`
	Failed []string `json:"failed,omitempty"`
}

// Readyz reports 503 while a critical component is unreachable. Degraded
// optional components (cache, queue) keep the instance in rotation.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := readyzResponse{Ready: true}
		for _, res := range pingAll(r.Context(), d.Components) {
			if res.err == nil || !res.component.Critical {
				continue
			}
			resp.Ready = false
			resp.Failed = append(resp.Failed, res.component.Name)
			d.Logger.Warn("readiness check failed",
				logger.String("component", res.component.Name),
				logger.Error(res.err))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if resp.Ready {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
