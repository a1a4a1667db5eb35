package authstate

import (
	"fmt"

	"collections/internal/identity"
	"collections/internal/profiles"
)

// Status is the coarse auth status of a browser session.
type Status int

const (
	// StatusUnresolved means the initial session check has not completed.
	StatusUnresolved Status = iota
	// StatusAnonymous means no user is signed in.
	StatusAnonymous
	// StatusAuthenticated means a user is signed in.
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUnresolved:
		return "unresolved"
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is the single source of truth for who is signed in. It only changes
// through Reduce.
type State struct {
	Status Status
	User   *identity.User
	// Profile is nil until loaded, and stays nil when loading failed.
	Profile         *profiles.Profile
	ProfileResolved bool
}

// Loading reports whether the initial session check is still pending.
func (s State) Loading() bool {
	return s.Status == StatusUnresolved
}

// UserID returns the signed-in user's id, or "".
func (s State) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

// Event is a state transition input. The set of events is closed.
type Event interface {
	event()
}

// SessionResolved completes the initial session check. User is nil when
// nobody is signed in.
type SessionResolved struct {
	User *identity.User
}

// SessionChanged reports a sign-in or token refresh notification.
type SessionChanged struct {
	Kind identity.EventKind
	User *identity.User
}

// ProfileLoaded delivers the provisioned profile for UserID.
type ProfileLoaded struct {
	UserID  string
	Profile profiles.Profile
}

// ProfileFailed reports that the profile for UserID could not be loaded.
type ProfileFailed struct {
	UserID string
	Err    error
}

// SignedOut clears the user and profile.
type SignedOut struct{}

func (SessionResolved) event() {}
func (SessionChanged) event()  {}
func (ProfileLoaded) event()   {}
func (ProfileFailed) event()   {}
func (SignedOut) event()       {}

// Reduce returns the state that follows s after e. Unknown events leave the
// state unchanged. A resolved state never returns to StatusUnresolved, and
// profile results for a user who is no longer current are dropped.
func Reduce(s State, e Event) State {
	switch ev := e.(type) {
	case SessionResolved:
		return withUser(s, ev.User)
	case SessionChanged:
		return withUser(s, ev.User)
	case SignedOut:
		return State{Status: StatusAnonymous}
	case ProfileLoaded:
		if !isCurrent(s, ev.UserID) {
			return s
		}
		profile := ev.Profile
		s.Profile = &profile
		s.ProfileResolved = true
		return s
	case ProfileFailed:
		if !isCurrent(s, ev.UserID) {
			return s
		}
		s.Profile = nil
		s.ProfileResolved = true
		return s
	default:
		return s
	}
}

func withUser(s State, user *identity.User) State {
	if user == nil {
		return State{Status: StatusAnonymous}
	}
	if s.User == nil || s.User.ID != user.ID {
		s.Profile = nil
		s.ProfileResolved = false
	}
	s.Status = StatusAuthenticated
	s.User = user
	return s
}

func isCurrent(s State, userID string) bool {
	return s.Status == StatusAuthenticated && s.User != nil && s.User.ID == userID
}
