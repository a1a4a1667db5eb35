package authstate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"collections/internal/identity"
	"collections/internal/profiles"
)

type fakeProvider struct {
	users    map[string]*identity.User
	refresh  map[string]*identity.Session
	userHits int
}

func (f *fakeProvider) AuthorizeURL(identity.AuthorizeRequest) (string, error) {
	return "https://auth.example.com/authorize", nil
}

func (f *fakeProvider) ExchangeCode(context.Context, string, string) (*identity.Session, error) {
	return nil, &identity.Error{Kind: identity.ErrKindInvalidGrant}
}

func (f *fakeProvider) Refresh(_ context.Context, refreshToken string) (*identity.Session, error) {
	if session, ok := f.refresh[refreshToken]; ok {
		return session, nil
	}
	return nil, &identity.Error{Kind: identity.ErrKindInvalidGrant, Message: "refresh token not found"}
}

func (f *fakeProvider) User(_ context.Context, accessToken string) (*identity.User, error) {
	f.userHits++
	if user, ok := f.users[accessToken]; ok {
		return user, nil
	}
	return nil, &identity.Error{Kind: identity.ErrKindUnauthorized, Message: "invalid token"}
}

func (f *fakeProvider) SignOut(context.Context, string) error {
	return nil
}

type countingProvisioner struct {
	mu    sync.Mutex
	calls map[string]int
	svc   *profiles.Service
	err   error
}

func (c *countingProvisioner) Provision(ctx context.Context, claims profiles.Claims) (profiles.Profile, error) {
	c.mu.Lock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[claims.UserID]++
	c.mu.Unlock()

	if c.err != nil {
		return profiles.Profile{}, c.err
	}
	return c.svc.Provision(ctx, claims)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newProvisioner(seed ...profiles.Profile) (*countingProvisioner, profiles.Repository) {
	repo := profiles.NewInMemoryRepository(seed)
	return &countingProvisioner{svc: profiles.NewService(repo, nil)}, repo
}

func janeWithMetadata() *identity.User {
	return &identity.User{
		ID:       "user-1",
		Email:    "jane@example.com",
		Metadata: map[string]any{"full_name": "Jane Doe", "avatar_url": "https://img.example.com/j.png"},
	}
}

func TestBootstrapWithoutSessionResolvesAnonymous(t *testing.T) {
	client := identity.NewClient(&fakeProvider{})
	provisioner, _ := newProvisioner()
	b := NewBootstrapper(client, provisioner, discardLogger())
	defer b.Close()

	result := b.Run(context.Background(), "")
	if result.State.Status != StatusAnonymous || result.State.Loading() {
		t.Fatalf("expected anonymous resolved state, got %+v", result.State)
	}
	if result.FragmentConsumed || result.Err != nil {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(provisioner.calls) != 0 {
		t.Fatalf("expected no provisioning, got %+v", provisioner.calls)
	}
}

func TestBootstrapAdoptsStoredSessionAndProvisions(t *testing.T) {
	provider := &fakeProvider{users: map[string]*identity.User{"access-1": janeWithMetadata()}}
	client := identity.NewClient(provider, identity.WithStoredSession("access-1", "refresh-1"))
	provisioner, repo := newProvisioner()
	b := NewBootstrapper(client, provisioner, discardLogger())
	defer b.Close()

	result := b.Run(context.Background(), "")
	state := result.State
	if state.Status != StatusAuthenticated || state.UserID() != "user-1" {
		t.Fatalf("expected authenticated state, got %+v", state)
	}
	if !state.ProfileResolved || state.Profile == nil || state.Profile.Username != "Jane Doe" {
		t.Fatalf("expected provisioned profile, got %+v", state.Profile)
	}
	if provisioner.calls["user-1"] != 1 {
		t.Fatalf("expected one provisioning call, got %d", provisioner.calls["user-1"])
	}

	stored, err := repo.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected stored profile: %v", err)
	}
	if stored.AvatarURL == nil || *stored.AvatarURL != "https://img.example.com/j.png" {
		t.Fatalf("unexpected avatar %v", stored.AvatarURL)
	}
}

func TestBootstrapRefreshProvisionsOnce(t *testing.T) {
	provider := &fakeProvider{
		refresh: map[string]*identity.Session{
			"refresh-1": {AccessToken: "access-2", RefreshToken: "refresh-2", User: janeWithMetadata()},
		},
	}
	// access-1 is unknown to the provider, so recovery goes through refresh
	// and emits TOKEN_REFRESHED before the initial check resolves.
	client := identity.NewClient(provider, identity.WithStoredSession("access-1", "refresh-1"))
	provisioner, _ := newProvisioner()
	b := NewBootstrapper(client, provisioner, discardLogger())
	defer b.Close()

	result := b.Run(context.Background(), "")
	if result.State.Status != StatusAuthenticated {
		t.Fatalf("expected authenticated state, got %+v", result.State)
	}
	if provisioner.calls["user-1"] != 1 {
		t.Fatalf("expected exactly one provisioning call, got %d", provisioner.calls["user-1"])
	}
}

func TestBootstrapConsumesFragmentTokens(t *testing.T) {
	provider := &fakeProvider{users: map[string]*identity.User{"aaa": janeWithMetadata()}}
	client := identity.NewClient(provider)
	provisioner, _ := newProvisioner()
	b := NewBootstrapper(client, provisioner, discardLogger())
	defer b.Close()

	result := b.Run(context.Background(), "#access_token=aaa&refresh_token=rrr&token_type=bearer")
	if !result.FragmentConsumed {
		t.Fatal("expected fragment to be consumed")
	}
	if result.State.UserID() != "user-1" || !result.State.ProfileResolved {
		t.Fatalf("expected user with resolved profile, got %+v", result.State)
	}
	if provisioner.calls["user-1"] != 1 {
		t.Fatalf("expected one provisioning call, got %d", provisioner.calls["user-1"])
	}
}

func TestBootstrapRejectedFragmentStaysAnonymous(t *testing.T) {
	client := identity.NewClient(&fakeProvider{})
	b := NewBootstrapper(client, nil, discardLogger())
	defer b.Close()

	result := b.Run(context.Background(), "#access_token=forged")
	if result.FragmentConsumed {
		t.Fatal("expected fragment not to be consumed")
	}
	if result.State.Status != StatusAnonymous {
		t.Fatalf("expected anonymous state, got %+v", result.State)
	}
	if identity.KindOf(result.Err) != identity.ErrKindUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", result.Err)
	}
}

func TestBootstrapSessionErrorStillResolves(t *testing.T) {
	client := identity.NewClient(&fakeProvider{}, identity.WithStoredSession("stale", "revoked"))
	b := NewBootstrapper(client, nil, discardLogger())
	defer b.Close()

	result := b.Run(context.Background(), "")
	if result.State.Loading() || result.State.Status != StatusAnonymous {
		t.Fatalf("expected resolved anonymous state, got %+v", result.State)
	}
	if identity.KindOf(result.Err) != identity.ErrKindInvalidGrant {
		t.Fatalf("expected invalid_grant error, got %v", result.Err)
	}
}

func TestBootstrapProfileFailureIsNotFatal(t *testing.T) {
	provider := &fakeProvider{users: map[string]*identity.User{"access-1": janeWithMetadata()}}
	client := identity.NewClient(provider, identity.WithStoredSession("access-1", "refresh-1"))
	provisioner := &countingProvisioner{err: errors.New("db down")}
	b := NewBootstrapper(client, provisioner, discardLogger())
	defer b.Close()

	result := b.Run(context.Background(), "")
	if result.State.Status != StatusAuthenticated {
		t.Fatalf("expected user to stay authenticated, got %+v", result.State)
	}
	access := AccessFrom(result.State)
	if access.Loading || access.HasAdminAccess {
		t.Fatalf("expected resolved, non-admin access, got %+v", access)
	}
}

func TestBootstrapRunIsIdempotent(t *testing.T) {
	provider := &fakeProvider{users: map[string]*identity.User{"access-1": janeWithMetadata()}}
	client := identity.NewClient(provider, identity.WithStoredSession("access-1", "refresh-1"))
	provisioner, repo := newProvisioner()
	b := NewBootstrapper(client, provisioner, discardLogger())
	defer b.Close()

	first := b.Run(context.Background(), "")
	hits := provider.userHits
	second := b.Run(context.Background(), "")

	if second.State.Loading() {
		t.Fatal("loading regressed on second run")
	}
	if provider.userHits != hits {
		t.Fatalf("expected no further provider calls, got %d", provider.userHits-hits)
	}
	if first.State.UserID() != second.State.UserID() {
		t.Fatalf("expected same user, got %q and %q", first.State.UserID(), second.State.UserID())
	}

	// A remount builds a new bootstrapper over the same client and storage.
	remount := NewBootstrapper(client, provisioner, discardLogger())
	defer remount.Close()
	if state := remount.Run(context.Background(), "").State; state.Loading() || state.Profile == nil {
		t.Fatalf("expected remount to resolve with profile, got %+v", state)
	}

	all, err := repo.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single profile row, got %d", len(all))
	}
}

func TestBootstrapFollowsLaterNotifications(t *testing.T) {
	provider := &fakeProvider{users: map[string]*identity.User{"access-1": janeWithMetadata()}}
	client := identity.NewClient(provider, identity.WithStoredSession("access-1", "refresh-1"))
	provisioner, _ := newProvisioner()
	b := NewBootstrapper(client, provisioner, discardLogger())

	b.Run(context.Background(), "")
	if err := client.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut returned error: %v", err)
	}
	if state := b.Store().State(); state.Status != StatusAnonymous || state.Profile != nil {
		t.Fatalf("expected anonymous state after sign out, got %+v", state)
	}

	// Signing back in after sign out loads the profile again.
	if _, err := client.SetSession(context.Background(), "access-1", "refresh-1"); err != nil {
		t.Fatalf("SetSession returned error: %v", err)
	}
	if state := b.Store().State(); state.Profile == nil {
		t.Fatalf("expected profile after re-sign-in, got %+v", state)
	}

	b.Close()
	b.Close()
	if _, err := client.SetSession(context.Background(), "access-1", "refresh-1"); err != nil {
		t.Fatalf("SetSession returned error: %v", err)
	}
	_ = client.SignOut(context.Background())
	if state := b.Store().State(); state.Status != StatusAuthenticated {
		t.Fatalf("expected closed store to ignore events, got %+v", state)
	}
}
