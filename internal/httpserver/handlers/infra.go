package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/MrSnakeDoc/hop/internal/httpserver/deps"
)

type componentStatus struct {
	OK        bool    `json:"ok"`
	Driver    string  `json:"driver,omitempty"`
	Critical  bool    `json:"critical"`
	LatencyMS float64 `json:"latency_ms"`
	Impact    string  `json:"impact,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

// impacts describes what stops working when an optional component is down.
var impacts = map[string]string{
	"cache": "lookups-hit-registry",
	"queue": "clicks-and-previews-dropped",
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := make(map[string]componentStatus, len(d.Components))
		for _, res := range pingAll(r.Context(), d.Components) {
			st := componentStatus{
				OK:        res.err == nil,
				Driver:    res.component.Driver,
				Critical:  res.component.Critical,
				LatencyMS: float64(res.latency.Microseconds()) / 1000,
			}
			if res.err != nil {
				st.Error = res.err.Error()
				if !res.component.Critical {
					st.Impact = impacts[res.component.Name]
				}
			}
			components[res.component.Name] = st
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(infraResponse{
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

// determineMode is "critical" when the registry is down, "degraded" when an
// optional component is, "optimal" otherwise.
func determineMode(components map[string]componentStatus) string {
	mode := "optimal"
	for _, c := range components {
		if c.OK {
			continue
		}
		if c.Critical {
			return "critical"
		}
		mode = "degraded"
	}
	return mode
}
