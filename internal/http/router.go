package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"collections/internal/collections"
	"collections/internal/config"
	"collections/internal/identity"
	"collections/internal/metrics"
	"collections/internal/profiles"
)

// Services are the collaborators NewRouter wires into handlers.
type Services struct {
	Identity    identity.Provider
	Profiles    *profiles.Service
	Collections *collections.Service
	// Metrics records auth outcomes; nil discards them.
	Metrics metrics.Recorder
	// Gatherer backs /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
}

// NewRouter wires application routes and middleware using chi. Background
// work started for the router stops when ctx is done.
func NewRouter(ctx context.Context, cfg config.Config, services Services, logger *slog.Logger) http.Handler {
	recorder := services.Metrics
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))
	r.Use(newSlogMiddleware(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": cfg.Environment,
		})
	})
	if services.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(services.Gatherer))
	}

	authHandler := NewAuthHandler(services.Identity, services.Profiles, AuthHandlerConfig{
		SiteURL:       cfg.SiteURL,
		OAuthProvider: cfg.OAuthProvider,
		Environment:   cfg.Environment,
	}, recorder, logger)
	sessionHandler := NewSessionHandler()
	collectionHandler := NewCollectionHandler(services.Collections, logger)
	adminHandler := NewAdminHandler(services.Profiles, logger)

	limiter := newRateLimiter(ctx, perMinuteConfig("auth", cfg.AuthRatePerMinute), recorder, logger)

	r.Route("/auth", func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Post("/session", authHandler.Session)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authHandler.SessionMiddleware())

		r.Get("/session", sessionHandler.Status)

		r.Group(func(r chi.Router) {
			r.Use(requireAuthenticated)
			r.Route("/collections", func(r chi.Router) {
				r.Get("/", collectionHandler.List)
				r.Post("/", collectionHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", collectionHandler.Get)
					r.Delete("/", collectionHandler.Delete)
					r.Get("/export", collectionHandler.Export)
					r.Post("/import", collectionHandler.Import)
					r.Post("/items", collectionHandler.AddItem)
					r.Put("/items/order", collectionHandler.ReorderItems)
					r.Delete("/items/{itemID}", collectionHandler.RemoveItem)
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Route("/admin/profiles", func(r chi.Router) {
				r.Get("/", adminHandler.ListProfiles)
				r.Put("/{id}/role", adminHandler.UpdateRole)
				r.Post("/{id}/role/toggle", adminHandler.ToggleRole)
			})
		})
	})

	r.NotFound(http.NotFoundHandler().ServeHTTP)

	return r
}
