package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"collections/internal/identity"
	"collections/internal/profiles"
)

const testSiteURL = "http://app.test"

type providerStub struct {
	authorizeURL func(req identity.AuthorizeRequest) (string, error)
	exchangeCode func(ctx context.Context, code, codeVerifier string) (*identity.Session, error)
	refresh      func(ctx context.Context, refreshToken string) (*identity.Session, error)
	user         func(ctx context.Context, accessToken string) (*identity.User, error)
	signOut      func(ctx context.Context, accessToken string) error
}

func (p *providerStub) AuthorizeURL(req identity.AuthorizeRequest) (string, error) {
	if p.authorizeURL != nil {
		return p.authorizeURL(req)
	}
	return "https://idp.test/authorize?provider=" + req.Provider, nil
}

func (p *providerStub) ExchangeCode(ctx context.Context, code, codeVerifier string) (*identity.Session, error) {
	if p.exchangeCode != nil {
		return p.exchangeCode(ctx, code, codeVerifier)
	}
	return nil, &identity.Error{Kind: identity.ErrKindInvalidGrant, Message: "unknown code"}
}

func (p *providerStub) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	if p.refresh != nil {
		return p.refresh(ctx, refreshToken)
	}
	return nil, &identity.Error{Kind: identity.ErrKindInvalidGrant, Message: "unknown refresh token"}
}

func (p *providerStub) User(ctx context.Context, accessToken string) (*identity.User, error) {
	if p.user != nil {
		return p.user(ctx, accessToken)
	}
	return nil, &identity.Error{Kind: identity.ErrKindUnauthorized, Message: "invalid token"}
}

func (p *providerStub) SignOut(ctx context.Context, accessToken string) error {
	if p.signOut != nil {
		return p.signOut(ctx, accessToken)
	}
	return nil
}

// usersByToken returns a user lookup that accepts the given access tokens.
func usersByToken(users map[string]*identity.User) func(context.Context, string) (*identity.User, error) {
	return func(_ context.Context, accessToken string) (*identity.User, error) {
		if user, ok := users[accessToken]; ok {
			return user, nil
		}
		return nil, &identity.Error{Kind: identity.ErrKindUnauthorized, Message: "invalid token"}
	}
}

type recorderStub struct {
	callbacks   []string
	refreshed   int
	rejected    int
	rateLimited []string
}

func (r *recorderStub) RecordCallback(outcome string) {
	r.callbacks = append(r.callbacks, outcome)
}

func (r *recorderStub) RecordSessionRefreshed() {
	r.refreshed++
}

func (r *recorderStub) RecordSessionRejected() {
	r.rejected++
}

func (r *recorderStub) RecordRateLimited(scope string) {
	r.rateLimited = append(r.rateLimited, scope)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProfiles(seed ...profiles.Profile) *profiles.Service {
	return profiles.NewService(profiles.NewInMemoryRepository(seed), nil)
}

func newTestAuthHandler(provider identity.Provider, profileSvc *profiles.Service, recorder *recorderStub, environment string) *AuthHandler {
	return NewAuthHandler(provider, profileSvc, AuthHandlerConfig{
		SiteURL:       testSiteURL,
		OAuthProvider: "google",
		Environment:   environment,
	}, recorder, discardLogger())
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func requireCookie(t *testing.T, cookies []*http.Cookie, name string) *http.Cookie {
	t.Helper()
	cookie := findCookie(cookies, name)
	if cookie == nil {
		t.Fatalf("expected cookie %q to be set, got %v", name, cookies)
	}
	return cookie
}
