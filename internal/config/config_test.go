package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATA_STORE", "memory")
	t.Setenv("PORT", "8080")
	t.Setenv("IDENTITY_PROVIDER", "gotrue")
	t.Setenv("AUTH_API_URL", "https://project.auth.test/")
	t.Setenv("AUTH_API_KEY", "anon-key")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000")
	t.Setenv("AUTH_RATE_PER_MINUTE", "30")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.AuthAPIURL != "https://project.auth.test" {
		t.Fatalf("expected trailing slash to be trimmed, got %q", cfg.AuthAPIURL)
	}
	if cfg.OAuthProvider != "google" {
		t.Fatalf("expected default OAuth provider google, got %q", cfg.OAuthProvider)
	}
	if !cfg.UseInMemoryStore() {
		t.Fatal("expected in-memory store")
	}
	if cfg.HTTPAddress() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.HTTPAddress())
	}
	if cfg.IsProduction() {
		t.Fatal("development must not be treated as production")
	}
}

func TestLoadRequiresAuthAPIURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AUTH_API_URL", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "AUTH_API_URL is required") {
		t.Fatalf("expected missing URL error, got %v", err)
	}
}

func TestLoadRequiresAuthAPIKey(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AUTH_API_KEY", "")
	t.Setenv("AUTH_API_KEY_FILE", filepath.Join(t.TempDir(), "missing"))

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "AUTH_API_KEY is required") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestLoadReadsAPIKeyFromFile(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "api_key")
	if err := os.WriteFile(path, []byte("  file-key\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("AUTH_API_KEY", "")
	t.Setenv("AUTH_API_KEY_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.AuthAPIKey != "file-key" {
		t.Fatalf("expected key from file, got %q", cfg.AuthAPIKey)
	}
}

func TestLoadRejectsEmptySecretFile(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "api_key")
	if err := os.WriteFile(path, []byte("   "), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("AUTH_API_KEY", "")
	t.Setenv("AUTH_API_KEY_FILE", path)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty secret error, got %v", err)
	}
}

func TestLoadOIDCRequiresClientCredentials(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("IDENTITY_PROVIDER", "oidc")
	t.Setenv("OIDC_CLIENT_ID", "")
	t.Setenv("OIDC_CLIENT_SECRET", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "OIDC_CLIENT_ID is required") {
		t.Fatalf("expected missing client id error, got %v", err)
	}
}

func TestLoadOIDCParsesAllowlists(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("IDENTITY_PROVIDER", "oidc")
	t.Setenv("OIDC_CLIENT_ID", "client-id")
	t.Setenv("OIDC_CLIENT_SECRET", "client-secret")
	t.Setenv("AUTH_ALLOWED_DOMAINS", "example.com, ,other.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if len(cfg.AllowedDomains) != 2 || cfg.AllowedDomains[1] != "other.org" {
		t.Fatalf("unexpected domains %v", cfg.AllowedDomains)
	}
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATA_STORE", "postgres")
	t.Setenv("DATABASE_URL_FILE", filepath.Join(t.TempDir(), "missing"))

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL is not set") {
		t.Fatalf("expected database URL error, got %v", err)
	}
}

func TestLoadRejectsWildcardOriginsInProduction(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://example.com,*")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "cannot contain wildcard") {
		t.Fatalf("expected wildcard error, got %v", err)
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "eighty")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "invalid port") {
		t.Fatalf("expected invalid port error, got %v", err)
	}
}

func TestLoadDefaultsSiteURLAndSeedAdmins(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SITE_URL", "")
	t.Setenv("PORT", "9090")
	t.Setenv("SEED_ADMIN_IDS", "user-1, user-2,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.SiteURL != "http://localhost:9090" {
		t.Fatalf("expected site URL to default to the local port, got %q", cfg.SiteURL)
	}
	if len(cfg.SeedAdminIDs) != 2 || cfg.SeedAdminIDs[1] != "user-2" {
		t.Fatalf("unexpected seed admin ids %v", cfg.SeedAdminIDs)
	}
}
