package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// expirySkew treats tokens this close to expiry as already expired.
const expirySkew = 10 * time.Second

// Listener receives auth state notifications.
type Listener func(ChangeEvent)

// Subscription is returned by OnAuthStateChange.
type Subscription struct {
	client *Client
	id     int
}

// Unsubscribe releases the listener. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.client == nil {
		return
	}
	s.client.removeListener(s.id)
}

// SignInRedirect carries the provider URL the browser is sent to and the PKCE
// verifier that must be persisted until the callback.
type SignInRedirect struct {
	URL          string
	CodeVerifier string
}

type listenerEntry struct {
	id int
	fn Listener
}

// Client holds one browser's session against a Provider and notifies
// subscribers about sign-in, sign-out and refresh events.
type Client struct {
	provider Provider
	now      func() time.Time

	mu            sync.Mutex
	session       *Session
	storedAccess  string
	storedRefresh string
	codeVerifier  string
	listeners     []listenerEntry
	nextID        int
}

// Option configures a Client.
type Option func(*Client)

// WithStoredSession seeds the client with persisted raw tokens. They are
// validated lazily by the first GetSession call.
func WithStoredSession(accessToken, refreshToken string) Option {
	return func(c *Client) {
		c.storedAccess = strings.TrimSpace(accessToken)
		c.storedRefresh = strings.TrimSpace(refreshToken)
	}
}

// WithCodeVerifier supplies the PKCE verifier persisted by SignInWithOAuth.
func WithCodeVerifier(verifier string) Option {
	return func(c *Client) {
		c.codeVerifier = verifier
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient builds a Client backed by provider.
func NewClient(provider Provider, opts ...Option) *Client {
	c := &Client{provider: provider, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetSession returns the current session, or nil when signed out. Stored raw
// tokens are recovered on first use and an expired session is refreshed; both
// refresh paths emit EventTokenRefreshed.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	current := c.session
	access, refresh := c.storedAccess, c.storedRefresh
	c.storedAccess, c.storedRefresh = "", ""
	c.mu.Unlock()

	if current != nil {
		if !c.expired(current.ExpiresAt) {
			return current, nil
		}
		if current.RefreshToken == "" {
			c.setSession(nil)
			return nil, newError(ErrKindUnauthorized, "session expired", nil)
		}
		refreshed, err := c.provider.Refresh(ctx, current.RefreshToken)
		if err != nil {
			return nil, err
		}
		c.setSession(refreshed)
		c.emit(ChangeEvent{Kind: EventTokenRefreshed, Session: refreshed})
		return refreshed, nil
	}

	if access == "" && refresh == "" {
		return nil, nil
	}

	session, refreshed, err := c.recover(ctx, access, refresh)
	if err != nil {
		return nil, err
	}
	c.setSession(session)
	if refreshed {
		c.emit(ChangeEvent{Kind: EventTokenRefreshed, Session: session})
	}
	return session, nil
}

// ExchangeCodeForSession trades an authorization code for a session.
func (c *Client) ExchangeCodeForSession(ctx context.Context, code string) (*Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, newError(ErrKindMalformed, "authorization code is required", nil)
	}

	c.mu.Lock()
	verifier := c.codeVerifier
	c.mu.Unlock()

	session, err := c.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}
	if session == nil || session.User == nil {
		return nil, newError(ErrKindMalformed, "exchange returned no session", nil)
	}

	c.mu.Lock()
	c.codeVerifier = ""
	c.mu.Unlock()

	c.setSession(session)
	c.emit(ChangeEvent{Kind: EventSignedIn, Session: session})
	return session, nil
}

// SetSession adopts raw tokens, typically recovered from an implicit-flow
// URL fragment, after validating them with the provider.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	accessToken = strings.TrimSpace(accessToken)
	refreshToken = strings.TrimSpace(refreshToken)
	if accessToken == "" {
		return nil, newError(ErrKindMalformed, "access token is required", nil)
	}

	session, _, err := c.recover(ctx, accessToken, refreshToken)
	if err != nil {
		return nil, err
	}

	c.setSession(session)
	c.emit(ChangeEvent{Kind: EventSignedIn, Session: session})
	return session, nil
}

// SignInWithOAuth prepares a PKCE authorization redirect.
func (c *Client) SignInWithOAuth(provider, redirectTo string, queryParams map[string]string) (SignInRedirect, error) {
	verifier := oauth2.GenerateVerifier()
	target, err := c.provider.AuthorizeURL(AuthorizeRequest{
		Provider:      provider,
		RedirectTo:    redirectTo,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
		QueryParams:   queryParams,
	})
	if err != nil {
		return SignInRedirect{}, err
	}

	c.mu.Lock()
	c.codeVerifier = verifier
	c.mu.Unlock()

	return SignInRedirect{URL: target, CodeVerifier: verifier}, nil
}

// SignOut clears the local session unconditionally and asks the provider to
// revoke it. The provider error, if any, is returned after listeners ran.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	access := c.storedAccess
	if c.session != nil {
		access = c.session.AccessToken
	}
	c.session = nil
	c.storedAccess, c.storedRefresh = "", ""
	c.mu.Unlock()

	var err error
	if access != "" {
		err = c.provider.SignOut(ctx, access)
	}
	c.emit(ChangeEvent{Kind: EventSignedOut})
	return err
}

// OnAuthStateChange registers listener for subsequent events.
func (c *Client) OnAuthStateChange(listener Listener) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	c.listeners = append(c.listeners, listenerEntry{id: c.nextID, fn: listener})
	return &Subscription{client: c, id: c.nextID}
}

func (c *Client) removeListener(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, entry := range c.listeners {
		if entry.id == id {
			c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
			return
		}
	}
}

// emit runs listeners outside the lock so they may call back into the client.
func (c *Client) emit(event ChangeEvent) {
	c.mu.Lock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, entry := range c.listeners {
		listeners = append(listeners, entry.fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
}

func (c *Client) setSession(session *Session) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
}

// recover validates raw tokens, refreshing when the access token is expired
// or rejected. The bool reports whether a refresh happened.
func (c *Client) recover(ctx context.Context, access, refresh string) (*Session, bool, error) {
	if access != "" {
		expiresAt, known := c.accessTokenExpiry(access)
		if !known || !c.expired(expiresAt) {
			user, err := c.provider.User(ctx, access)
			if err == nil {
				return &Session{
					AccessToken:  access,
					RefreshToken: refresh,
					TokenType:    "bearer",
					ExpiresAt:    expiresAt,
					User:         user,
				}, false, nil
			}
			if KindOf(err) != ErrKindUnauthorized || refresh == "" {
				return nil, false, err
			}
		}
	}

	if refresh == "" {
		return nil, false, newError(ErrKindUnauthorized, "access token expired and no refresh token", nil)
	}

	session, err := c.provider.Refresh(ctx, refresh)
	if err != nil {
		return nil, false, err
	}
	if session == nil || session.User == nil {
		return nil, false, newError(ErrKindMalformed, "refresh returned no session", nil)
	}
	return session, true, nil
}

func (c *Client) accessTokenExpiry(access string) (time.Time, bool) {
	reader, ok := c.provider.(ExpiryReader)
	if !ok {
		return time.Time{}, false
	}
	return reader.AccessTokenExpiry(access)
}

func (c *Client) expired(expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return !c.now().Before(expiresAt.Add(-expirySkew))
}
