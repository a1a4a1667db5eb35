package authstate

import (
	"collections/internal/identity"
	"collections/internal/profiles"
)

// Access is the admin gate derived from a State.
type Access struct {
	IsAuthenticated bool
	IsAdmin         bool
	HasAdminAccess  bool
	// Loading is true until both the session and, for a signed-in user, the
	// profile have resolved. It is distinct from being denied.
	Loading bool
	User    *identity.User
	Profile *profiles.Profile
}

// Decision is the outcome of an admin check.
type Decision struct {
	Authorized bool `json:"authorized"`
	Loading    bool `json:"loading"`
}

// AccessFrom derives the gate from s.
func AccessFrom(s State) Access {
	authenticated := s.Status == StatusAuthenticated && s.User != nil
	admin := s.Profile != nil && s.Profile.IsAdmin()
	return Access{
		IsAuthenticated: authenticated,
		IsAdmin:         admin,
		HasAdminAccess:  authenticated && admin,
		Loading:         s.Status == StatusUnresolved || (authenticated && !s.ProfileResolved),
		User:            s.User,
		Profile:         s.Profile,
	}
}

// RequireAdmin reports whether privileged content may be shown.
func (a Access) RequireAdmin() Decision {
	if a.Loading {
		return Decision{Authorized: false, Loading: true}
	}
	if !a.HasAdminAccess {
		return Decision{Authorized: false, Loading: false}
	}
	return Decision{Authorized: true, Loading: false}
}
