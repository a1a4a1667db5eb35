package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// User is the identity-provider record for an authenticated account. It is
// owned by the provider; the application keeps only its ID.
type User struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Provider string         `json:"provider,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FullName returns the provider's full-name claim, if any.
func (u User) FullName() string {
	return u.metadataString("full_name", "name")
}

// AvatarURL returns the provider's avatar claim, if any.
func (u User) AvatarURL() string {
	return u.metadataString("avatar_url", "picture")
}

func (u User) metadataString(keys ...string) string {
	for _, key := range keys {
		if value, ok := u.Metadata[key].(string); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// Session is an access/refresh token pair issued by the identity provider.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	User         *User
}

// HasTokens reports whether both tokens needed to persist the session are present.
func (s *Session) HasTokens() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != ""
}

// EventKind enumerates the auth lifecycle notifications a Client emits.
type EventKind int

const (
	EventSignedIn EventKind = iota + 1
	EventSignedOut
	EventTokenRefreshed
)

func (k EventKind) String() string {
	switch k {
	case EventSignedIn:
		return "SIGNED_IN"
	case EventSignedOut:
		return "SIGNED_OUT"
	case EventTokenRefreshed:
		return "TOKEN_REFRESHED"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// ChangeEvent is delivered to OnAuthStateChange listeners. Session is nil for EventSignedOut.
type ChangeEvent struct {
	Kind    EventKind
	Session *Session
}

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	ErrKindNetwork      ErrorKind = "network"
	ErrKindInvalidGrant ErrorKind = "invalid_grant"
	ErrKindUnauthorized ErrorKind = "unauthorized"
	ErrKindMalformed    ErrorKind = "malformed"
	ErrKindAccessDenied ErrorKind = "access_denied"
	ErrKindProvider     ErrorKind = "provider"
)

// Error is the only error type returned across the identity boundary.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("identity %s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("identity %s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("identity %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("identity %s", e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind carried by err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var identityErr *Error
	if errors.As(err, &identityErr) {
		return identityErr.Kind
	}
	return ""
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}
