package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"collections/internal/collections"
	"collections/internal/config"
	transporthttp "collections/internal/http"
	"collections/internal/identity"
	"collections/internal/metrics"
	"collections/internal/platform/database"
	"collections/internal/platform/logging"
	"collections/internal/platform/migrate"
	"collections/internal/profiles"
)

// providerTimeout bounds every call to the identity provider.
const providerTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	profileRepo, collectionRepo, cleanup, err := buildRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	provider, err := buildIdentityProvider(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize identity provider", "provider", cfg.IdentityProvider, "error", err)
		os.Exit(1)
	}

	profileSvc := profiles.NewService(profileRepo, collector)
	collectionSvc := collections.NewService(collectionRepo)

	if cfg.UseInMemoryStore() && len(cfg.SeedAdminIDs) > 0 {
		if err := seedCollections(ctx, collectionSvc, cfg.SeedAdminIDs); err != nil {
			logger.Error("failed to seed demo collections", "error", err)
			os.Exit(1)
		}
	}

	router := transporthttp.NewRouter(ctx, cfg, transporthttp.Services{
		Identity:    provider,
		Profiles:    profileSvc,
		Collections: collectionSvc,
		Metrics:     collector,
		Gatherer:    registry,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go func() {
		logger.Info("Collections API listening", "addr", srv.Addr, "store", cfg.DataStore, "identity", cfg.IdentityProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func buildRepositories(ctx context.Context, cfg config.Config, logger *slog.Logger) (profiles.Repository, collections.Repository, func(), error) {
	if cfg.UseInMemoryStore() {
		logger.Info("using in-memory repository", "seeded_admins", len(cfg.SeedAdminIDs))
		return profiles.NewInMemoryRepository(seedLocalProfiles(cfg.SeedAdminIDs)), collections.NewInMemoryRepository(), nil, nil
	}

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() {
		_ = db.Close()
	}

	if err := migrate.Apply(ctx, db, logger); err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	logger.Info("connected to postgres")
	return profiles.NewPostgresRepository(db), collections.NewPostgresRepository(db), cleanup, nil
}

func buildIdentityProvider(ctx context.Context, cfg config.Config, logger *slog.Logger) (identity.Provider, error) {
	client := &http.Client{Timeout: providerTimeout}

	switch cfg.IdentityProvider {
	case config.IdentityOIDC:
		provider, err := identity.NewOIDCProvider(ctx, identity.OIDCConfig{
			IssuerURL:      cfg.OIDCIssuerURL,
			ClientID:       cfg.OIDCClientID,
			ClientSecret:   cfg.OIDCClientSecret,
			RedirectURL:    cfg.SiteURL + "/auth/callback",
			AllowedDomains: cfg.AllowedDomains,
			AllowedEmails:  cfg.AllowedEmails,
			HTTPClient:     client,
		})
		if err != nil {
			return nil, err
		}
		if !provider.HasAllowlist() {
			logger.Warn("no AUTH_ALLOWED_DOMAINS or AUTH_ALLOWED_EMAILS configured; any account the issuer accepts can sign in")
		}
		return provider, nil
	case config.IdentityGoTrue:
		return identity.NewGoTrueProvider(cfg.AuthAPIURL, cfg.AuthAPIKey,
			identity.WithHTTPClient(client),
			identity.WithJWTSecret(cfg.AuthJWTSecret),
		), nil
	default:
		return nil, fmt.Errorf("unsupported identity provider %q", cfg.IdentityProvider)
	}
}
