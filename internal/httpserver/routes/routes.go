package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrSnakeDoc/hop/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hop/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/hop/internal/httpserver/mw"
)

// Mount registers every route on r. The list is explicit: adding an
// endpoint means adding a line here.
func Mount(r chi.Router, d deps.Deps) {
	ops := mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger)

	// Health and observability
	r.Get("/healthz", handlers.Healthz(d))
	r.With(ops).Get("/readyz", handlers.Readyz(d))
	r.With(ops).Get("/infra", handlers.Infra(d))
	r.With(ops).Handle("/metrics", promhttp.Handler())

	// Admin
	r.With(ops, mw.EnforceHost(d.AllowedHosts, d.Logger)).Post("/admin/sweep", handlers.Sweep(d))

	// Public API
	r.Route("/api/v1", func(api chi.Router) {
		api.With(mw.RateLimit(d.CreateLimit)).Post("/urls", handlers.CreateLink(d))
	})

	// Static routes above win over the pattern.
	r.Get("/{code}", handlers.Redirect(d))

	r.NotFound(handlers.NotFound)
}
