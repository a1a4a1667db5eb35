package collections

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a collection or item cannot be found for the caller.
var ErrNotFound = errors.New("collection not found")

// ErrItemNotFound is returned when an item does not belong to the collection.
var ErrItemNotFound = errors.New("collection item not found")

// ErrValidation wraps user-correctable validation errors safe to expose to clients.
var ErrValidation = errors.New("validation error")

// ItemType enumerates supported collection entries.
type ItemType string

const (
	ItemTypeImage ItemType = "image"
	ItemTypeLink  ItemType = "link"
)

// Collection is a user-owned ranked list of images and links.
type Collection struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"userId"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
	Items       []Item    `db:"-" json:"items"`
}

// Item is a single entry of a collection. Lower ranks are shown first.
type Item struct {
	ID           uuid.UUID `db:"id" json:"id"`
	CollectionID uuid.UUID `db:"collection_id" json:"collectionId"`
	Type         ItemType  `db:"type" json:"type"`
	Content      string    `db:"content" json:"content"`
	Rank         int       `db:"rank" json:"rank"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Repository abstracts persistence for collections. Every method is scoped
// to the owning user; collections of other users behave as missing.
type Repository interface {
	Create(ctx context.Context, collection Collection) (Collection, error)
	List(ctx context.Context, userID string) ([]Collection, error)
	Get(ctx context.Context, id uuid.UUID, userID string) (Collection, error)
	Delete(ctx context.Context, id uuid.UUID, userID string) error
	// AddItem appends item after the collection's current last rank.
	AddItem(ctx context.Context, userID string, item Item) (Item, error)
	DeleteItem(ctx context.Context, collectionID, itemID uuid.UUID, userID string) error
	// ReorderItems assigns ranks 1..n following itemIDs.
	ReorderItems(ctx context.Context, collectionID uuid.UUID, userID string, itemIDs []uuid.UUID) error
}
