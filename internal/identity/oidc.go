package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleIssuer is the issuer URL of Google's OpenID Connect provider.
const GoogleIssuer = "https://accounts.google.com"

const defaultOIDCTimeout = 10 * time.Second

// OIDCConfig describes a direct OpenID Connect provider.
type OIDCConfig struct {
	IssuerURL      string
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	AllowedDomains []string
	AllowedEmails  []string
	// HTTPClient is used for discovery, token and userinfo calls. Defaults to
	// a client with a 10s timeout.
	HTTPClient *http.Client
}

// OIDCProvider signs users in directly against an OpenID Connect provider
// using the authorization code flow with PKCE.
type OIDCProvider struct {
	name           string
	config         *oauth2.Config
	provider       *oidc.Provider
	verifier       *oidc.IDTokenVerifier
	httpClient     *http.Client
	allowedDomains map[string]struct{}
	allowedEmails  map[string]struct{}
}

type idTokenClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// NewOIDCProvider discovers the issuer and builds the provider.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	issuer := strings.TrimSpace(cfg.IssuerURL)
	if issuer == "" {
		issuer = GoogleIssuer
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultOIDCTimeout}
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, cfg.HTTPClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return newOIDCProvider(provider, verifier, cfg), nil
}

func newOIDCProvider(provider *oidc.Provider, verifier *oidc.IDTokenVerifier, cfg OIDCConfig) *OIDCProvider {
	endpoint := provider.Endpoint()
	name := "oidc"
	if strings.TrimSuffix(cfg.IssuerURL, "/") == GoogleIssuer || cfg.IssuerURL == "" {
		endpoint = google.Endpoint
		name = "google"
	} else if parsed, err := url.Parse(cfg.IssuerURL); err == nil && parsed.Host != "" {
		name = parsed.Hostname()
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}

	return &OIDCProvider{
		name:           name,
		config:         config,
		provider:       provider,
		verifier:       verifier,
		httpClient:     cfg.HTTPClient,
		allowedDomains: normalizeSet(cfg.AllowedDomains),
		allowedEmails:  normalizeSet(cfg.AllowedEmails),
	}
}

func normalizeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// AuthorizeURL builds the consent URL. The redirect URI is fixed by the
// client registration, so req.RedirectTo and req.Provider are not forwarded.
func (p *OIDCProvider) AuthorizeURL(req AuthorizeRequest) (string, error) {
	opts := make([]oauth2.AuthCodeOption, 0, len(req.QueryParams)+2)
	for key, value := range req.QueryParams {
		opts = append(opts, oauth2.SetAuthURLParam(key, value))
	}
	if req.CodeChallenge != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", req.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}
	// PKCE binds the callback to this browser; state carries no extra information.
	return p.config.AuthCodeURL("pkce", opts...), nil
}

// ExchangeCode trades the code for tokens and verifies the ID token.
func (p *OIDCProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*Session, error) {
	if codeVerifier == "" {
		return nil, newError(ErrKindInvalidGrant, "code verifier is missing", nil)
	}

	ctx = p.clientContext(ctx)
	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, classifyOAuthError("token exchange", err)
	}
	return p.sessionFromToken(ctx, token, "")
}

// Refresh uses the refresh token to obtain a new access token. Providers that
// do not rotate refresh tokens keep the original one.
func (p *OIDCProvider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, newError(ErrKindMalformed, "refresh token is required", nil)
	}

	ctx = p.clientContext(ctx)
	token, err := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, classifyOAuthError("refresh", err)
	}
	return p.sessionFromToken(ctx, token, refreshToken)
}

// User looks the account up through the userinfo endpoint.
func (p *OIDCProvider) User(ctx context.Context, accessToken string) (*User, error) {
	info, err := p.provider.UserInfo(p.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, newError(ErrKindNetwork, "userinfo", err)
		}
		return nil, newError(ErrKindUnauthorized, "userinfo", err)
	}

	var claims idTokenClaims
	if err := info.Claims(&claims); err != nil {
		return nil, newError(ErrKindMalformed, "parse userinfo claims", err)
	}
	claims.Sub = info.Subject
	claims.Email = info.Email
	claims.EmailVerified = info.EmailVerified
	if !p.IsEmailAllowed(claims.Email) {
		return nil, newError(ErrKindAccessDenied, "email is not allowed", nil)
	}
	return p.userFromClaims(claims), nil
}

// clientContext routes oauth2 and go-oidc requests through the configured client.
func (p *OIDCProvider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, p.httpClient)
}

// SignOut is a no-op: OIDC providers have no session to revoke for this client.
func (p *OIDCProvider) SignOut(context.Context, string) error {
	return nil
}

// IsEmailAllowed checks if the given email is allowed based on domain/email allowlists.
func (p *OIDCProvider) IsEmailAllowed(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))

	if _, ok := p.allowedEmails[email]; ok {
		return true
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 {
		if _, ok := p.allowedDomains[parts[1]]; ok {
			return true
		}
	}

	// If both allowlists are empty, allow all (dev mode)
	return len(p.allowedDomains) == 0 && len(p.allowedEmails) == 0
}

// HasAllowlist returns true if any allowlist restrictions are configured.
func (p *OIDCProvider) HasAllowlist() bool {
	return len(p.allowedDomains) > 0 || len(p.allowedEmails) > 0
}

func (p *OIDCProvider) sessionFromToken(ctx context.Context, token *oauth2.Token, fallbackRefresh string) (*Session, error) {
	session := &Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		ExpiresAt:    token.Expiry,
	}
	if session.RefreshToken == "" {
		session.RefreshToken = fallbackRefresh
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		if fallbackRefresh == "" {
			return nil, newError(ErrKindMalformed, "no id_token in response", nil)
		}
		user, err := p.User(ctx, token.AccessToken)
		if err != nil {
			return nil, err
		}
		session.User = user
		return session, nil
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, newError(ErrKindInvalidGrant, "verify id_token", err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, newError(ErrKindMalformed, "parse claims", err)
	}
	if !claims.EmailVerified {
		return nil, newError(ErrKindAccessDenied, "email is not verified", nil)
	}
	if !p.IsEmailAllowed(claims.Email) {
		return nil, newError(ErrKindAccessDenied, "email is not allowed", nil)
	}

	session.User = p.userFromClaims(claims)
	return session, nil
}

func (p *OIDCProvider) userFromClaims(claims idTokenClaims) *User {
	metadata := map[string]any{"email_verified": claims.EmailVerified}
	if claims.Name != "" {
		metadata["full_name"] = claims.Name
	}
	if claims.Picture != "" {
		metadata["avatar_url"] = claims.Picture
	}
	return &User{
		ID:       claims.Sub,
		Email:    claims.Email,
		Provider: p.name,
		Metadata: metadata,
	}
}

func classifyOAuthError(op string, err error) *Error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return newError(ErrKindUnauthorized, op, err)
		case status >= http.StatusInternalServerError:
			return newError(ErrKindProvider, op, err)
		default:
			return newError(ErrKindInvalidGrant, op, err)
		}
	}
	return newError(ErrKindNetwork, op, err)
}
