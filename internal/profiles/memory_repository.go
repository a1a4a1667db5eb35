package profiles

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

type inMemoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewInMemoryRepository seeds an in-memory profile repository.
func NewInMemoryRepository(seed []Profile) Repository {
	repo := &inMemoryRepository{profiles: make(map[string]Profile, len(seed))}
	for _, profile := range seed {
		repo.profiles[profile.ID] = profile
	}
	return repo
}

func (m *inMemoryRepository) Get(_ context.Context, id string) (Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	profile, ok := m.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return profile, nil
}

func (m *inMemoryRepository) Insert(_ context.Context, profile Profile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.profiles[profile.ID]; exists {
		return false, nil
	}
	m.profiles[profile.ID] = profile
	return true, nil
}

func (m *inMemoryRepository) List(_ context.Context, search string) ([]Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	result := make([]Profile, 0, len(m.profiles))
	for _, profile := range m.profiles {
		if search != "" && !strings.Contains(strings.ToLower(profile.Username), search) {
			continue
		}
		result = append(result, profile)
	}

	slices.SortFunc(result, func(a, b Profile) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (m *inMemoryRepository) UpdateRole(_ context.Context, id string, role Role, updatedAt time.Time) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	profile, ok := m.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	profile.Role = role
	profile.UpdatedAt = updatedAt
	m.profiles[id] = profile
	return profile, nil
}
