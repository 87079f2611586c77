// Package http assembles the REST API surface over the application
// services: royalty records, contracts, reports, and probes.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/minegov/royalty-engine/internal/interfaces/http/handlers"
	"github.com/minegov/royalty-engine/internal/interfaces/http/middleware"
)

// RouterConfig gathers the handlers and cross-cutting pieces the router
// wires together. Metrics, RateLimiter, and Logger are optional; the
// middleware they drive is skipped when they are nil.
type RouterConfig struct {
	Royalty   *handlers.RoyaltyHandler
	Contracts *handlers.ContractHandler
	Reports   *handlers.ReportHandler
	Health    *handlers.HealthHandler

	Logger      logging.Logger
	Metrics     *prometheus.AppMetrics
	MetricsView http.Handler
	RateLimiter *middleware.RateLimiter
	CORS        middleware.CORSConfig
	Logging     middleware.LoggingConfig
}

// NewRouter builds the chi router with the full middleware chain and
// the /api/v1 route tree.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger, cfg.Logging))
	}
	r.Use(chimw.Recoverer)
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware)
	}
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health.Liveness)
		r.Get("/readyz", cfg.Health.Readiness)
	}
	if cfg.MetricsView != nil {
		r.Handle("/metrics", cfg.MetricsView)
	}

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.Royalty != nil {
			api.Route("/records", func(rr chi.Router) {
				rr.Get("/", cfg.Royalty.List)
				rr.Post("/", cfg.Royalty.Submit)
				rr.Get("/export", cfg.Royalty.Export)
				rr.Post("/export", cfg.Royalty.ExportToStore)
				rr.Post("/import", cfg.Royalty.Import)
				rr.Post("/overdue/refresh", cfg.Royalty.RefreshOverdue)
				rr.Route("/{recordID}", func(rec chi.Router) {
					rec.Get("/", cfg.Royalty.Get)
					rec.Post("/status", cfg.Royalty.ChangeStatus)
					rec.Post("/payments", cfg.Royalty.AddPayment)
				})
			})
		}
		if cfg.Contracts != nil {
			api.Route("/contracts", func(cr chi.Router) {
				cr.Get("/", cfg.Contracts.List)
				cr.Post("/", cfg.Contracts.Create)
				cr.Get("/active", cfg.Contracts.Active)
				cr.Route("/{contractID}", func(cc chi.Router) {
					cc.Get("/", cfg.Contracts.Get)
					cc.Put("/", cfg.Contracts.Amend)
					cc.Delete("/", cfg.Contracts.Delete)
				})
			})
		}
		if cfg.Reports != nil {
			api.Get("/reports/summary", cfg.Reports.Summary)
		}
	})

	return r
}
