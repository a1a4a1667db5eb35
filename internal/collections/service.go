package collections

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
	// maxContentLength limits the character length of item URLs.
	maxContentLength = 4096
)

// Service validates input and coordinates collection persistence.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a collection service.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateCollectionInput captures the fields required to create a collection.
type CreateCollectionInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// AddItemInput captures a new collection entry.
type AddItemInput struct {
	Type    ItemType `json:"type"`
	Content string   `json:"content"`
}

// ReorderInput lists every item of a collection in its new order.
type ReorderInput struct {
	ItemIDs []uuid.UUID `json:"itemIds"`
}

// Create stores a new, empty collection owned by userID.
func (s *Service) Create(ctx context.Context, userID string, input CreateCollectionInput) (Collection, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Collection{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(title) > maxTitleLength {
		return Collection{}, fmt.Errorf("%w: title must be at most %d characters", ErrValidation, maxTitleLength)
	}

	var description *string
	if trimmed := strings.TrimSpace(input.Description); trimmed != "" {
		if len(trimmed) > maxDescriptionLength {
			return Collection{}, fmt.Errorf("%w: description must be at most %d characters", ErrValidation, maxDescriptionLength)
		}
		description = &trimmed
	}

	now := s.now()
	return s.repo.Create(ctx, Collection{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// List returns the user's collections newest first with items in rank order.
func (s *Service) List(ctx context.Context, userID string) ([]Collection, error) {
	return s.repo.List(ctx, userID)
}

// Get returns a single collection owned by userID.
func (s *Service) Get(ctx context.Context, id uuid.UUID, userID string) (Collection, error) {
	return s.repo.Get(ctx, id, userID)
}

// Delete removes a collection and its items.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	return s.repo.Delete(ctx, id, userID)
}

// AddItem appends an image or link to the end of a collection.
func (s *Service) AddItem(ctx context.Context, collectionID uuid.UUID, userID string, input AddItemInput) (Item, error) {
	itemType := ItemType(strings.ToLower(strings.TrimSpace(string(input.Type))))
	if itemType != ItemTypeImage && itemType != ItemTypeLink {
		return Item{}, fmt.Errorf("%w: type must be %q or %q", ErrValidation, ItemTypeImage, ItemTypeLink)
	}

	content, err := sanitizeContentURL(input.Content)
	if err != nil {
		return Item{}, err
	}

	return s.repo.AddItem(ctx, userID, Item{
		ID:           uuid.New(),
		CollectionID: collectionID,
		Type:         itemType,
		Content:      content,
		CreatedAt:    s.now(),
	})
}

// RemoveItem deletes one item from a collection.
func (s *Service) RemoveItem(ctx context.Context, collectionID, itemID uuid.UUID, userID string) error {
	return s.repo.DeleteItem(ctx, collectionID, itemID, userID)
}

// ReorderItems ranks the collection's items in the given order. The list must
// name every item exactly once.
func (s *Service) ReorderItems(ctx context.Context, collectionID uuid.UUID, userID string, input ReorderInput) (Collection, error) {
	seen := make(map[uuid.UUID]struct{}, len(input.ItemIDs))
	for _, id := range input.ItemIDs {
		if _, dup := seen[id]; dup {
			return Collection{}, fmt.Errorf("%w: item %s listed more than once", ErrValidation, id)
		}
		seen[id] = struct{}{}
	}

	if err := s.repo.ReorderItems(ctx, collectionID, userID, input.ItemIDs); err != nil {
		return Collection{}, err
	}
	return s.repo.Get(ctx, collectionID, userID)
}

func sanitizeContentURL(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", fmt.Errorf("%w: content is required", ErrValidation)
	}
	if len(content) > maxContentLength {
		return "", fmt.Errorf("%w: content must be at most %d characters", ErrValidation, maxContentLength)
	}

	parsed, err := url.Parse(content)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: content must be an absolute URL", ErrValidation)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: content must use http or https", ErrValidation)
	}
	return content, nil
}
