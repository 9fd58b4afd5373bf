package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/Assay/internal/approval"
	"github.com/MikeSquared-Agency/Assay/internal/scoring"
)

func NewRouter(s Store, engine *scoring.Engine, est *approval.Estimator, runs RunTrigger, adminToken string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(600))

	entities := NewEntitiesHandler(s)
	compute := NewComputeHandler(engine, est, logger)
	runsH := NewRunsHandler(runs)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/entities/{id}/scores", entities.Scores)
		r.Get("/entities/{id}/approval", entities.Approval)

		r.Post("/compute/composite", compute.Composite)
		r.Post("/compute/approval", compute.Approval)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(adminToken))
			r.Post("/runs", runsH.Trigger)
		})
	})

	return r
}

// NewMetricsRouter serves /health and /metrics for gatherer g.
func NewMetricsRouter(g prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return r
}
