package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const defaultUsername = "user"

// Outcome labels the result of a provisioning attempt.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeExisting Outcome = "existing"
	OutcomeFailed   Outcome = "failed"
)

// Recorder observes provisioning outcomes.
type Recorder interface {
	RecordProvision(outcome Outcome)
}

type noopRecorder struct{}

func (noopRecorder) RecordProvision(Outcome) {}

// Service provisions and administers profiles.
type Service struct {
	repo     Repository
	recorder Recorder
	now      func() time.Time
}

// NewService wires a profile service. A nil recorder disables metrics.
func NewService(repo Repository, recorder Recorder) *Service {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Service{
		repo:     repo,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// DeriveUsername picks the display name for a new profile: the trimmed full
// name, else the email local part, else "user".
func DeriveUsername(claims Claims) string {
	if name := strings.TrimSpace(claims.FullName); name != "" {
		return name
	}
	if local, _, found := strings.Cut(strings.TrimSpace(claims.Email), "@"); found && local != "" {
		return local
	}
	return defaultUsername
}

// Provision returns the profile for claims.UserID, creating it on first sight.
// Concurrent callers for the same user converge on a single row.
func (s *Service) Provision(ctx context.Context, claims Claims) (Profile, error) {
	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		s.recorder.RecordProvision(OutcomeFailed)
		return Profile{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}

	existing, err := s.repo.Get(ctx, userID)
	switch {
	case err == nil:
		s.recorder.RecordProvision(OutcomeExisting)
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		s.recorder.RecordProvision(OutcomeFailed)
		return Profile{}, fmt.Errorf("fetch profile: %w", err)
	}

	now := s.now()
	profile := Profile{
		ID:        userID,
		Username:  DeriveUsername(claims),
		Role:      RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if avatar := strings.TrimSpace(claims.AvatarURL); avatar != "" {
		profile.AvatarURL = &avatar
	}

	inserted, err := s.repo.Insert(ctx, profile)
	if err != nil {
		s.recorder.RecordProvision(OutcomeFailed)
		return Profile{}, fmt.Errorf("insert profile: %w", err)
	}

	// Re-read so server-generated columns are populated and a concurrent
	// winner's row is returned when the insert lost.
	stored, err := s.repo.Get(ctx, userID)
	if err != nil {
		s.recorder.RecordProvision(OutcomeFailed)
		return Profile{}, fmt.Errorf("fetch provisioned profile: %w", err)
	}

	if inserted {
		s.recorder.RecordProvision(OutcomeCreated)
	} else {
		s.recorder.RecordProvision(OutcomeExisting)
	}
	return stored, nil
}

// Get returns the profile with the given id.
func (s *Service) Get(ctx context.Context, id string) (Profile, error) {
	return s.repo.Get(ctx, strings.TrimSpace(id))
}

// List returns profiles newest first, optionally filtered by username.
func (s *Service) List(ctx context.Context, search string) ([]Profile, error) {
	return s.repo.List(ctx, search)
}

// SetRole assigns role to the profile.
func (s *Service) SetRole(ctx context.Context, id string, role Role) (Profile, error) {
	if !role.Valid() {
		return Profile{}, fmt.Errorf("%w: role must be %q or %q", ErrValidation, RoleUser, RoleAdmin)
	}
	return s.repo.UpdateRole(ctx, strings.TrimSpace(id), role, s.now())
}

// ToggleRole flips a profile between user and admin.
func (s *Service) ToggleRole(ctx context.Context, id string) (Profile, error) {
	current, err := s.repo.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Profile{}, err
	}

	next := RoleAdmin
	if current.IsAdmin() {
		next = RoleUser
	}
	return s.SetRole(ctx, current.ID, next)
}
