package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

type oidcTestServer struct {
	*httptest.Server
	key         *rsa.PrivateKey
	idClaims    jwt.MapClaims
	tokenStatus int
	form        url.Values
}

func newOIDCTestServer(t *testing.T) *oidcTestServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	s := &oidcTestServer{key: key, tokenStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		s.form = r.PostForm
		if s.tokenStatus != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(s.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}

		body := map[string]any{
			"access_token":  "access-1",
			"token_type":    "Bearer",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
		}
		if r.PostForm.Get("grant_type") == "refresh_token" {
			delete(body, "refresh_token")
		}
		if s.idClaims != nil {
			body["id_token"] = s.sign(t, s.idClaims)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"user-1","email":"jane@example.com","email_verified":true,"name":"Jane Doe"}`))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *oidcTestServer) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		t.Fatalf("sign id token: %v", err)
	}
	return signed
}

func (s *oidcTestServer) provider(allowedDomains ...string) *OIDCProvider {
	cfg := OIDCConfig{
		IssuerURL:      s.URL,
		ClientID:       "client-1",
		ClientSecret:   "secret",
		RedirectURL:    "http://localhost:8080/auth/callback",
		AllowedDomains: allowedDomains,
	}
	remote := (&oidc.ProviderConfig{
		IssuerURL:   s.URL,
		AuthURL:     s.URL + "/authorize",
		TokenURL:    s.URL + "/token",
		UserInfoURL: s.URL + "/userinfo",
		Algorithms:  []string{oidc.RS256},
	}).NewProvider(context.Background())
	verifier := oidc.NewVerifier(s.URL, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&s.key.PublicKey}}, &oidc.Config{ClientID: "client-1"})
	return newOIDCProvider(remote, verifier, cfg)
}

func (s *oidcTestServer) claims(email string, verified bool) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":            s.URL,
		"aud":            "client-1",
		"sub":            "user-1",
		"email":          email,
		"email_verified": verified,
		"name":           "Jane Doe",
		"picture":        "https://img.example.com/j.png",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
	}
}

func TestOIDCAuthorizeURLCarriesPKCEChallenge(t *testing.T) {
	srv := newOIDCTestServer(t)

	raw, err := srv.provider().AuthorizeURL(AuthorizeRequest{
		CodeChallenge: "challenge",
		QueryParams:   map[string]string{"prompt": "consent"},
	})
	if err != nil {
		t.Fatalf("AuthorizeURL returned error: %v", err)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := parsed.Query()
	if q.Get("code_challenge") != "challenge" || q.Get("code_challenge_method") != "S256" {
		t.Fatalf("expected PKCE params, got %v", q)
	}
	if q.Get("client_id") != "client-1" || q.Get("redirect_uri") != "http://localhost:8080/auth/callback" {
		t.Fatalf("unexpected client params %v", q)
	}
	if q.Get("prompt") != "consent" {
		t.Fatalf("expected prompt=consent, got %q", q.Get("prompt"))
	}
}

func TestOIDCExchangeCode(t *testing.T) {
	srv := newOIDCTestServer(t)
	srv.idClaims = srv.claims("jane@example.com", true)

	session, err := srv.provider().ExchangeCode(context.Background(), "abc123", "verifier-1")
	if err != nil {
		t.Fatalf("ExchangeCode returned error: %v", err)
	}
	if srv.form.Get("code_verifier") != "verifier-1" || srv.form.Get("code") != "abc123" {
		t.Fatalf("unexpected token request %v", srv.form)
	}
	if !session.HasTokens() {
		t.Fatalf("expected both tokens, got %+v", session)
	}
	if session.User.ID != "user-1" || session.User.FullName() != "Jane Doe" || session.User.AvatarURL() == "" {
		t.Fatalf("unexpected user %+v", session.User)
	}
}

func TestOIDCExchangeCodeRejectsUnverifiedEmail(t *testing.T) {
	srv := newOIDCTestServer(t)
	srv.idClaims = srv.claims("jane@example.com", false)

	_, err := srv.provider().ExchangeCode(context.Background(), "abc123", "v")
	if KindOf(err) != ErrKindAccessDenied {
		t.Fatalf("expected access_denied, got %v", err)
	}
}

func TestOIDCExchangeCodeEnforcesAllowlist(t *testing.T) {
	srv := newOIDCTestServer(t)
	srv.idClaims = srv.claims("jane@other.com", true)

	_, err := srv.provider("example.com").ExchangeCode(context.Background(), "abc123", "v")
	if KindOf(err) != ErrKindAccessDenied {
		t.Fatalf("expected access_denied, got %v", err)
	}
}

func TestOIDCExchangeCodeRejectsForeignAudience(t *testing.T) {
	srv := newOIDCTestServer(t)
	claims := srv.claims("jane@example.com", true)
	claims["aud"] = "someone-else"
	srv.idClaims = claims

	_, err := srv.provider().ExchangeCode(context.Background(), "abc123", "v")
	if KindOf(err) != ErrKindInvalidGrant {
		t.Fatalf("expected invalid_grant, got %v", err)
	}
}

func TestOIDCExchangeCodeMapsTokenEndpointErrors(t *testing.T) {
	srv := newOIDCTestServer(t)
	srv.tokenStatus = http.StatusBadRequest

	_, err := srv.provider().ExchangeCode(context.Background(), "expired", "v")
	if KindOf(err) != ErrKindInvalidGrant {
		t.Fatalf("expected invalid_grant, got %v", err)
	}
}

func TestOIDCRefreshKeepsRefreshToken(t *testing.T) {
	srv := newOIDCTestServer(t)

	session, err := srv.provider().Refresh(context.Background(), "refresh-0")
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if session.RefreshToken != "refresh-0" {
		t.Fatalf("expected original refresh token, got %q", session.RefreshToken)
	}
	if session.User == nil || session.User.Email != "jane@example.com" {
		t.Fatalf("expected user from userinfo, got %+v", session.User)
	}
}

func TestOIDCUserRejectsUnknownToken(t *testing.T) {
	srv := newOIDCTestServer(t)

	if _, err := srv.provider().User(context.Background(), "stale"); KindOf(err) != ErrKindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestIsEmailAllowedByEmailAllowlist(t *testing.T) {
	provider := &OIDCProvider{
		allowedEmails: map[string]struct{}{
			"test@example.com": {},
		},
		allowedDomains: map[string]struct{}{},
	}

	if !provider.IsEmailAllowed("Test@Example.com") {
		t.Fatal("expected email to be allowed")
	}
}

func TestIsEmailAllowedByDomainAllowlist(t *testing.T) {
	provider := &OIDCProvider{
		allowedDomains: map[string]struct{}{
			"example.com": {},
		},
		allowedEmails: map[string]struct{}{},
	}

	if !provider.IsEmailAllowed("user@example.com") {
		t.Fatal("expected domain to be allowed")
	}
	if provider.IsEmailAllowed("user@other.com") {
		t.Fatal("expected email to be rejected")
	}
}

func TestIsEmailAllowedAllowsAllWhenNoAllowlist(t *testing.T) {
	provider := &OIDCProvider{
		allowedDomains: map[string]struct{}{},
		allowedEmails:  map[string]struct{}{},
	}

	if !provider.IsEmailAllowed("user@other.com") {
		t.Fatal("expected email to be allowed when no allowlist is configured")
	}
	if provider.HasAllowlist() {
		t.Fatal("expected HasAllowlist to be false")
	}

	provider.allowedDomains["example.com"] = struct{}{}
	if !provider.HasAllowlist() {
		t.Fatal("expected HasAllowlist to be true")
	}
}
