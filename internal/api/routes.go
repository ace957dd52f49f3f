package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zapponejosh/natal-api/internal/config"
)

// RouteOptions holds the optional pieces of the router.
type RouteOptions struct {
	// Metrics is served at GET /metrics when set.
	Metrics http.Handler

	// Recorder observes every request when set.
	Recorder HTTPRecorder
}

// SetupRoutes configures all HTTP routes and returns the router.
//
// Route structure:
//
//	GET    /health
//	GET    /metrics
//	GET    /static/*                      image assets
//	POST   /api/v1/charts/preview
//	GET    /api/v1/research?sign=&degree=
//	GET    /api/v1/degrees/{sign}/{degree}
//	GET    /api/v1/profiles
//	POST   /api/v1/profiles               (API key)
//	GET    /api/v1/profiles/{id}
//	PUT    /api/v1/profiles/{id}          (API key)
//	DELETE /api/v1/profiles/{id}          (API key)
//	GET    /api/v1/profiles/{id}/chart
func SetupRoutes(handlers *Handlers, cfg *config.Config, logger *slog.Logger, opts RouteOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		chimiddleware.RealIP,
		LoggingMiddleware(logger, opts.Recorder),
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         3600,
	}))

	authWrap := AuthMiddleware(cfg, logger)

	// ==========================================================================
	// Operational routes
	// ==========================================================================
	r.Get("/health", handlers.HealthCheck)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if cfg.AssetsDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.AssetsDir))))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.AllowContentType("application/json"))

		// ======================================================================
		// Charts and degree content
		// ======================================================================
		r.Post("/charts/preview", handlers.PreviewChart)
		r.Get("/research", handlers.Research)
		r.Get("/degrees/{sign}/{degree}", handlers.GetDegree)

		// ======================================================================
		// Profiles (writes need the API key)
		// ======================================================================
		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", handlers.ListProfiles)
			r.With(authWrap).Post("/", handlers.CreateProfile)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handlers.GetProfile)
				r.Get("/chart", handlers.GetProfileChart)
				r.With(authWrap).Put("/", handlers.UpdateProfile)
				r.With(authWrap).Delete("/", handlers.DeleteProfile)
			})
		})
	})

	return r
}
