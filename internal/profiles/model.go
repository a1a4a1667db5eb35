package profiles

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a profile cannot be found.
var ErrNotFound = errors.New("profile not found")

// ErrValidation wraps user-correctable validation errors safe to expose to clients.
var ErrValidation = errors.New("validation error")

// Role is the application-level privilege of a profile.
type Role string

const (
	// RoleUser is assigned to every provisioned profile.
	RoleUser Role = "user"
	// RoleAdmin grants access to administrative pages.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Profile is the application record attached to an identity-provider user.
type Profile struct {
	ID        string    `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	AvatarURL *string   `db:"avatar_url" json:"avatarUrl"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// IsAdmin reports whether the profile carries the admin role.
func (p Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Claims are the identity attributes used to provision a profile.
type Claims struct {
	UserID    string
	Email     string
	FullName  string
	AvatarURL string
}

// Repository abstracts persistence for profiles.
type Repository interface {
	Get(ctx context.Context, id string) (Profile, error)
	// Insert stores profile unless one with the same id exists. It reports
	// whether a row was written.
	Insert(ctx context.Context, profile Profile) (bool, error)
	List(ctx context.Context, search string) ([]Profile, error)
	UpdateRole(ctx context.Context, id string, role Role, updatedAt time.Time) (Profile, error)
}
