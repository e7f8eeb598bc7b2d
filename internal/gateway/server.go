package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	if g.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	// Admin endpoints. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.currentAuth, g.logger))
			r.Get("/status", g.handleStatus())
			r.Route("/api", func(r chi.Router) {
				r.Get("/jobs", g.handleListJobs())
				r.Post("/jobs/{name}/run", g.handleRunJob())
				r.Get("/providers", g.handleListProviders())
				r.Post("/config/reload", g.handleReloadConfig())
			})
		})
	}

	return r
}
