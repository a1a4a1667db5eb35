package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultGoTrueTimeout = 10 * time.Second
	maxGoTrueBodyBytes   = 1 << 20
)

// GoTrueProvider talks to a hosted auth backend exposing the GoTrue REST API
// under /auth/v1. Every request carries the project's public API key.
type GoTrueProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	jwtSecret  []byte
	now        func() time.Time
}

// GoTrueOption configures a GoTrueProvider.
type GoTrueOption func(*GoTrueProvider)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) GoTrueOption {
	return func(p *GoTrueProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithJWTSecret enables local HS256 verification of access tokens, which
// avoids a round trip to /user on every request.
func WithJWTSecret(secret string) GoTrueOption {
	return func(p *GoTrueProvider) {
		if secret != "" {
			p.jwtSecret = []byte(secret)
		}
	}
}

// WithProviderClock overrides the time source used for token validation.
func WithProviderClock(now func() time.Time) GoTrueOption {
	return func(p *GoTrueProvider) {
		p.now = now
	}
}

// NewGoTrueProvider creates a provider for the backend at baseURL.
func NewGoTrueProvider(baseURL, apiKey string, opts ...GoTrueOption) *GoTrueProvider {
	p := &GoTrueProvider{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultGoTrueTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AuthorizeURL builds the /authorize redirect for a brokered OAuth provider.
func (p *GoTrueProvider) AuthorizeURL(req AuthorizeRequest) (string, error) {
	if strings.TrimSpace(req.Provider) == "" {
		return "", newError(ErrKindMalformed, "oauth provider is required", nil)
	}

	target, err := url.Parse(p.baseURL + "/auth/v1/authorize")
	if err != nil {
		return "", newError(ErrKindMalformed, "invalid auth api url", err)
	}

	query := url.Values{}
	for key, value := range req.QueryParams {
		query.Set(key, value)
	}
	query.Set("provider", req.Provider)
	if req.RedirectTo != "" {
		query.Set("redirect_to", req.RedirectTo)
	}
	if req.CodeChallenge != "" {
		query.Set("code_challenge", req.CodeChallenge)
		query.Set("code_challenge_method", "s256")
	}
	target.RawQuery = query.Encode()
	return target.String(), nil
}

// ExchangeCode completes the PKCE flow.
func (p *GoTrueProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*Session, error) {
	if codeVerifier == "" {
		return nil, newError(ErrKindInvalidGrant, "code verifier is missing", nil)
	}
	payload := map[string]string{"auth_code": code, "code_verifier": codeVerifier}
	return p.token(ctx, "pkce", payload)
}

// Refresh trades a refresh token for a new session.
func (p *GoTrueProvider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, newError(ErrKindMalformed, "refresh token is required", nil)
	}
	return p.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

// User resolves the account behind accessToken, locally when a JWT secret is configured.
func (p *GoTrueProvider) User(ctx context.Context, accessToken string) (*User, error) {
	if len(p.jwtSecret) > 0 {
		return p.verifyLocally(accessToken)
	}

	var body gotrueUser
	if err := p.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &body); err != nil {
		return nil, err
	}
	if body.ID == "" {
		return nil, newError(ErrKindMalformed, "user response has no id", nil)
	}
	return body.toUser(), nil
}

// SignOut revokes the session server-side. Tokens the backend no longer
// recognises are treated as already signed out.
func (p *GoTrueProvider) SignOut(ctx context.Context, accessToken string) error {
	err := p.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
	if err != nil && KindOf(err) == ErrKindUnauthorized {
		return nil
	}
	return err
}

// AccessTokenExpiry reads the exp claim without verifying the signature.
func (p *GoTrueProvider) AccessTokenExpiry(accessToken string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u gotrueUser) toUser() *User {
	provider, _ := u.AppMetadata["provider"].(string)
	return &User{
		ID:       u.ID,
		Email:    u.Email,
		Provider: provider,
		Metadata: u.UserMetadata,
	}
}

type gotrueTokenResponse struct {
	AccessToken  string     `json:"access_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	RefreshToken string     `json:"refresh_token"`
	User         gotrueUser `json:"user"`
}

type gotrueErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e gotrueErrorResponse) text() string {
	for _, candidate := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error, e.ErrorCode} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

type accessTokenClaims struct {
	Email        string         `json:"email"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

func (p *GoTrueProvider) verifyLocally(accessToken string) (*User, error) {
	var claims accessTokenClaims
	_, err := jwt.ParseWithClaims(accessToken, &claims, func(*jwt.Token) (any, error) {
		return p.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, newError(ErrKindUnauthorized, "access token expired", err)
		}
		return nil, newError(ErrKindUnauthorized, "invalid access token", err)
	}
	if claims.Subject == "" {
		return nil, newError(ErrKindMalformed, "access token has no subject", nil)
	}

	return gotrueUser{
		ID:           claims.Subject,
		Email:        claims.Email,
		AppMetadata:  claims.AppMetadata,
		UserMetadata: claims.UserMetadata,
	}.toUser(), nil
}

func (p *GoTrueProvider) token(ctx context.Context, grantType string, payload any) (*Session, error) {
	var body gotrueTokenResponse
	path := "/auth/v1/token?grant_type=" + url.QueryEscape(grantType)
	if err := p.do(ctx, http.MethodPost, path, "", payload, &body); err != nil {
		return nil, err
	}
	if body.AccessToken == "" || body.User.ID == "" {
		return nil, newError(ErrKindMalformed, "token response is incomplete", nil)
	}

	session := &Session{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		TokenType:    body.TokenType,
		User:         body.User.toUser(),
	}
	switch {
	case body.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(body.ExpiresAt, 0)
	case body.ExpiresIn > 0:
		session.ExpiresAt = p.now().Add(time.Duration(body.ExpiresIn) * time.Second)
	default:
		if expiresAt, ok := p.AccessTokenExpiry(body.AccessToken); ok {
			session.ExpiresAt = expiresAt
		}
	}
	return session, nil
}

func (p *GoTrueProvider) do(ctx context.Context, method, path, bearer string, payload, out any) error {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return newError(ErrKindMalformed, "encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return newError(ErrKindMalformed, "build request", err)
	}
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return newError(ErrKindNetwork, fmt.Sprintf("%s %s", method, strings.Split(path, "?")[0]), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGoTrueBodyBytes))
	if err != nil {
		return newError(ErrKindNetwork, "read response", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr gotrueErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		return newError(classifyStatus(resp.StatusCode), apiErr.text(), fmt.Errorf("status %d", resp.StatusCode))
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return newError(ErrKindMalformed, "decode response", err)
	}
	return nil
}

func classifyStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrKindUnauthorized
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return ErrKindInvalidGrant
	default:
		return ErrKindProvider
	}
}
