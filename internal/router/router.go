package router

import (
	"net/http"

	"distrihub-sync-api/internal/handler"
	"distrihub-sync-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	QueueHandler   *handler.QueueHandler
	SignalsHandler *handler.SignalsHandler
	HistoryHandler *handler.HistoryHandler
	ReadyChecks    map[string]handler.ReadyChecker
	AuthMiddleware func(http.Handler) http.Handler
	Logger         *logrus.Logger
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.NewRecovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.NewLogging(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// AUTHENTICATED routes (use Group to apply auth middleware only to these)
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		// API v1 routes
		r.Route("/api/v1", func(r chi.Router) {
			// Health check endpoints
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready(cfg.ReadyChecks))
			}

			// Operation queue endpoints
			if cfg.QueueHandler != nil {
				r.Route("/queue", func(r chi.Router) {
					r.Post("/operations", cfg.QueueHandler.Enqueue)
					r.Get("/operations", cfg.QueueHandler.ListPending)
					r.Get("/state", cfg.QueueHandler.State)
					r.Get("/stats", cfg.QueueHandler.Stats)
					r.Post("/sync", cfg.QueueHandler.SyncNow)
					r.Post("/retry", cfg.QueueHandler.RetryFailed)
					r.Post("/cleanup", cfg.QueueHandler.Cleanup)

					if cfg.HistoryHandler != nil {
						r.Get("/history", cfg.HistoryHandler.GetSyncHistory)
					}
				})
			}

			// Connectivity and visibility signal endpoints
			if cfg.SignalsHandler != nil {
				r.Route("/signals", func(r chi.Router) {
					r.Post("/connectivity", cfg.SignalsHandler.Connectivity)
					r.Post("/visibility", cfg.SignalsHandler.Visibility)
				})
			}
		})
	})

	return r
}
