package identity

import (
	"context"
	"time"
)

// AuthorizeRequest describes an OAuth sign-in redirect.
type AuthorizeRequest struct {
	// Provider names the upstream OAuth provider (e.g. "google") for backends that broker several.
	Provider      string
	RedirectTo    string
	CodeChallenge string
	QueryParams   map[string]string
}

// Provider is the identity backend. Implementations must return *Error values.
type Provider interface {
	AuthorizeURL(req AuthorizeRequest) (string, error)
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	User(ctx context.Context, accessToken string) (*User, error)
	SignOut(ctx context.Context, accessToken string) error
}

// ExpiryReader is implemented by providers whose access tokens carry a readable expiry.
type ExpiryReader interface {
	AccessTokenExpiry(accessToken string) (time.Time, bool)
}
