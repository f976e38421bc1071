package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-FPIndex/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-FPIndex/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree.
type RouterConfig struct {
	// Handlers
	SearchHandler *handlers.SearchHandler
	IndexHandler  *handlers.IndexHandler
	HealthHandler *handlers.HealthHandler

	// Middleware
	APIKeyAuth  *middleware.APIKeyAuth
	RateLimiter *middleware.RateLimiter

	// Infrastructure
	Logger           logging.Logger
	Metrics          *prometheus.FPMetrics
	MetricsCollector prometheus.MetricsCollector
	MetricsPath      string
}

// NewRouter constructs the HTTP route tree. Reads are open; index
// maintenance routes sit behind the API key check when one is configured.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogging(cfg.Logger, middleware.DefaultLoggingConfig()))
	r.Use(chimw.Recoverer)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	// --- Health ---
	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.MetricsCollector.Handler())
	}

	// --- API v1 ---
	r.Route("/api/v1", func(api chi.Router) {
		if cfg.RateLimiter != nil {
			api.Use(cfg.RateLimiter.Handler)
		}
		registerSearchRoutes(api, cfg.SearchHandler)
		registerIndexRoutes(api, cfg.IndexHandler, cfg.APIKeyAuth)
	})

	return r
}

func registerSearchRoutes(r chi.Router, h *handlers.SearchHandler) {
	if h == nil {
		return
	}
	r.Post("/fingerprints", h.Fingerprint)
	r.Post("/search/substructure", h.Search)
}

func registerIndexRoutes(r chi.Router, h *handlers.IndexHandler, auth *middleware.APIKeyAuth) {
	if h == nil {
		return
	}
	r.Route("/index", func(ir chi.Router) {
		ir.Get("/stats", h.Stats)

		ir.Group(func(w chi.Router) {
			if auth != nil {
				w.Use(auth.Handler)
			}
			w.Post("/molecules", h.IndexMolecule)
			w.Delete("/molecules/{id}", h.DeleteMolecule)
			w.Post("/batch", h.IndexBatch)
			w.Post("/rebuild", h.Rebuild)
			w.Post("/snapshots", h.Snapshot)
			w.Post("/snapshots/restore", h.Restore)
		})
	})
}

//Personal.AI order the ending
