package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	// IdentityGoTrue selects the hosted auth backend (GoTrue-compatible REST API).
	IdentityGoTrue = "gotrue"
	// IdentityOIDC selects a direct OpenID Connect provider.
	IdentityOIDC = "oidc"
)

// Config aggregates runtime configuration for the Collections service.
type Config struct {
	Environment    string
	HTTPPort       int
	DatabaseURL    string
	DataStore      string
	LogLevel       string
	AllowedOrigins []string
	SiteURL        string

	IdentityProvider string
	OAuthProvider    string
	AuthAPIURL       string
	AuthAPIKey       string
	AuthJWTSecret    string

	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	AllowedDomains   []string
	AllowedEmails    []string

	AuthRatePerMinute int

	// SeedAdminIDs are provider user ids seeded as admins into the in-memory store.
	SeedAdminIDs []string
}

// rawEnv holds the plain settings; secrets are resolved separately so they
// can also come from mounted files.
type rawEnv struct {
	Environment       string   `env:"APP_ENV" envDefault:"development"`
	Port              string   `env:"PORT"`
	HTTPPort          string   `env:"HTTP_PORT" envDefault:"8080"`
	DataStore         string   `env:"DATA_STORE" envDefault:"memory"`
	LogLevel          string   `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins    []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:8080"`
	SiteURL           string   `env:"SITE_URL"`
	IdentityProvider  string   `env:"IDENTITY_PROVIDER" envDefault:"gotrue"`
	OAuthProvider     string   `env:"OAUTH_PROVIDER" envDefault:"google"`
	AuthAPIURL        string   `env:"AUTH_API_URL"`
	OIDCIssuerURL     string   `env:"OIDC_ISSUER_URL" envDefault:"https://accounts.google.com"`
	OIDCClientID      string   `env:"OIDC_CLIENT_ID"`
	AllowedDomains    []string `env:"AUTH_ALLOWED_DOMAINS" envSeparator:","`
	AllowedEmails     []string `env:"AUTH_ALLOWED_EMAILS" envSeparator:","`
	AuthRatePerMinute int      `env:"AUTH_RATE_PER_MINUTE" envDefault:"30"`
	SeedAdminIDs      []string `env:"SEED_ADMIN_IDS" envSeparator:","`
}

// Load reads configuration from environment variables with sensible defaults for local development.
// A missing identity backend URL or key is a startup error.
func Load() (Config, error) {
	var raw rawEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	databaseURL, err := getEnvOrFile("DATABASE_URL", "/run/secrets/collections_database_url")
	if err != nil {
		return Config{}, err
	}
	apiKey, err := getEnvOrFile("AUTH_API_KEY", "/run/secrets/collections_auth_api_key")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := getEnvOrFile("AUTH_JWT_SECRET", "")
	if err != nil {
		return Config{}, err
	}
	clientSecret, err := getEnvOrFile("OIDC_CLIENT_SECRET", "/run/secrets/collections_oidc_client_secret")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:       strings.ToLower(strings.TrimSpace(raw.Environment)),
		DatabaseURL:       strings.TrimSpace(databaseURL),
		DataStore:         strings.ToLower(strings.TrimSpace(raw.DataStore)),
		LogLevel:          strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		AllowedOrigins:    cleanList(raw.AllowedOrigins),
		SiteURL:           strings.TrimSuffix(strings.TrimSpace(raw.SiteURL), "/"),
		IdentityProvider:  strings.ToLower(strings.TrimSpace(raw.IdentityProvider)),
		OAuthProvider:     strings.TrimSpace(raw.OAuthProvider),
		AuthAPIURL:        strings.TrimSuffix(strings.TrimSpace(raw.AuthAPIURL), "/"),
		AuthAPIKey:        strings.TrimSpace(apiKey),
		AuthJWTSecret:     strings.TrimSpace(jwtSecret),
		OIDCIssuerURL:     strings.TrimSpace(raw.OIDCIssuerURL),
		OIDCClientID:      strings.TrimSpace(raw.OIDCClientID),
		OIDCClientSecret:  strings.TrimSpace(clientSecret),
		AllowedDomains:    cleanList(raw.AllowedDomains),
		AllowedEmails:     cleanList(raw.AllowedEmails),
		AuthRatePerMinute: raw.AuthRatePerMinute,
		SeedAdminIDs:      cleanList(raw.SeedAdminIDs),
	}

	portValue := raw.HTTPPort
	if strings.TrimSpace(raw.Port) != "" {
		portValue = raw.Port
	}
	port, err := strconv.Atoi(strings.TrimSpace(portValue))
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", portValue, err)
	}
	cfg.HTTPPort = port
	if cfg.SiteURL == "" {
		cfg.SiteURL = fmt.Sprintf("http://localhost:%d", port)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DataStore {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATA_STORE is postgres but DATABASE_URL is not set")
		}
	default:
		return fmt.Errorf("unsupported DATA_STORE %q", c.DataStore)
	}

	switch c.IdentityProvider {
	case IdentityGoTrue:
		if c.AuthAPIURL == "" {
			return fmt.Errorf("AUTH_API_URL is required")
		}
		if c.AuthAPIKey == "" {
			return fmt.Errorf("AUTH_API_KEY is required")
		}
	case IdentityOIDC:
		if c.OIDCClientID == "" {
			return fmt.Errorf("OIDC_CLIENT_ID is required")
		}
		if c.OIDCClientSecret == "" {
			return fmt.Errorf("OIDC_CLIENT_SECRET is required")
		}
	default:
		return fmt.Errorf("unsupported IDENTITY_PROVIDER %q", c.IdentityProvider)
	}

	if c.IsProduction() {
		for _, origin := range c.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("ALLOWED_ORIGINS cannot contain wildcard in production")
			}
		}
	}

	if c.AuthRatePerMinute <= 0 {
		return fmt.Errorf("AUTH_RATE_PER_MINUTE must be positive")
	}
	return nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// UseInMemoryStore returns true if the in-memory repositories should be used.
func (c Config) UseInMemoryStore() bool {
	return c.DataStore == "memory"
}

// IsProduction reports whether cookies must be marked Secure.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}
