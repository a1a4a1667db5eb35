package authstate

import (
	"context"
	"log/slog"
	"sync"

	"collections/internal/identity"
	"collections/internal/profiles"
)

// SessionClient is the part of identity.Client the bootstrap depends on.
type SessionClient interface {
	GetSession(ctx context.Context) (*identity.Session, error)
	SetSession(ctx context.Context, accessToken, refreshToken string) (*identity.Session, error)
	OnAuthStateChange(listener identity.Listener) *identity.Subscription
}

// Provisioner creates or loads the profile for a signed-in user.
type Provisioner interface {
	Provision(ctx context.Context, claims profiles.Claims) (profiles.Profile, error)
}

// Result is the outcome of Bootstrapper.Run.
type Result struct {
	State State
	// FragmentConsumed is set when implicit-flow tokens from the URL fragment
	// were adopted and the fragment should be removed from the URL.
	FragmentConsumed bool
	// Err is the session error that left the state anonymous, if any.
	Err error
}

// Bootstrapper resolves the initial session for one browser and keeps the
// store in sync with later auth notifications until Close.
type Bootstrapper struct {
	client      SessionClient
	provisioner Provisioner
	store       *Store
	logger      *slog.Logger

	runOnce   sync.Once
	closeOnce sync.Once
	result    Result

	mu          sync.Mutex
	ctx         context.Context
	sub         *identity.Subscription
	provisioned map[string]struct{}
}

// NewBootstrapper wires a bootstrapper with a fresh Store.
func NewBootstrapper(client SessionClient, provisioner Provisioner, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		client:      client,
		provisioner: provisioner,
		store:       NewStore(),
		logger:      logger,
		provisioned: make(map[string]struct{}),
	}
}

// Store exposes the state store driven by this bootstrapper.
func (b *Bootstrapper) Store() *Store {
	return b.store
}

// Run performs the initial session check once. Later calls return the first
// result without touching the client again.
//
// The subscription is registered before the session check so that sign-in
// notifications raised by the check itself are observed. Every path that
// makes a user present goes through provisionOnce, so each user id is
// provisioned at most once per bootstrapper.
func (b *Bootstrapper) Run(ctx context.Context, fragment string) Result {
	b.runOnce.Do(func() {
		b.result = b.run(ctx, fragment)
	})
	result := b.result
	result.State = b.store.State()
	return result
}

func (b *Bootstrapper) run(ctx context.Context, fragment string) Result {
	b.mu.Lock()
	b.ctx = ctx
	b.sub = b.client.OnAuthStateChange(b.handleChange)
	b.mu.Unlock()

	var result Result
	session, err := b.client.GetSession(ctx)
	if err != nil {
		b.logger.Warn("session lookup failed", "error", err, "kind", identity.KindOf(err))
		result.Err = err
		session = nil
	}

	if session == nil {
		if tokens, ok := identity.ParseFragment(fragment); ok {
			adopted, err := b.client.SetSession(ctx, tokens.AccessToken, tokens.RefreshToken)
			if err != nil {
				b.logger.Warn("fragment session rejected", "error", err, "kind", identity.KindOf(err))
				result.Err = err
			} else {
				session = adopted
				result.FragmentConsumed = true
				result.Err = nil
			}
		}
	}

	var user *identity.User
	if session != nil {
		user = session.User
	}
	b.store.Dispatch(SessionResolved{User: user})
	if user != nil {
		b.provisionOnce(ctx, user)
	}

	result.State = b.store.State()
	return result
}

func (b *Bootstrapper) handleChange(event identity.ChangeEvent) {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	switch event.Kind {
	case identity.EventSignedOut:
		b.mu.Lock()
		clear(b.provisioned)
		b.mu.Unlock()
		b.store.Dispatch(SignedOut{})
	case identity.EventSignedIn, identity.EventTokenRefreshed:
		var user *identity.User
		if event.Session != nil {
			user = event.Session.User
		}
		b.store.Dispatch(SessionChanged{Kind: event.Kind, User: user})
		if user != nil {
			b.provisionOnce(ctx, user)
		}
	default:
		b.logger.Debug("ignoring auth event", "event", event.Kind.String())
	}
}

func (b *Bootstrapper) provisionOnce(ctx context.Context, user *identity.User) {
	if b.provisioner == nil {
		return
	}

	b.mu.Lock()
	if _, done := b.provisioned[user.ID]; done {
		b.mu.Unlock()
		return
	}
	b.provisioned[user.ID] = struct{}{}
	b.mu.Unlock()

	profile, err := b.provisioner.Provision(ctx, profiles.Claims{
		UserID:    user.ID,
		Email:     user.Email,
		FullName:  user.FullName(),
		AvatarURL: user.AvatarURL(),
	})
	if err != nil {
		b.logger.Error("profile provisioning failed", "user_id", user.ID, "error", err)
		b.store.Dispatch(ProfileFailed{UserID: user.ID, Err: err})
		return
	}
	b.store.Dispatch(ProfileLoaded{UserID: user.ID, Profile: profile})
}

// Close releases the auth subscription and freezes the store. It is safe to
// call more than once.
func (b *Bootstrapper) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		sub := b.sub
		b.sub = nil
		b.mu.Unlock()

		sub.Unsubscribe()
		b.store.Close()
	})
}
