package collections

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

type inMemoryRepository struct {
	mu          sync.RWMutex
	collections map[uuid.UUID]Collection
	items       map[uuid.UUID][]Item // collectionID -> items
}

// NewInMemoryRepository constructs an empty collection repository.
func NewInMemoryRepository() Repository {
	return &inMemoryRepository{
		collections: make(map[uuid.UUID]Collection),
		items:       make(map[uuid.UUID][]Item),
	}
}

func (m *inMemoryRepository) Create(_ context.Context, collection Collection) (Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	collection.Items = nil
	m.collections[collection.ID] = collection
	m.items[collection.ID] = nil
	return m.withItems(collection), nil
}

func (m *inMemoryRepository) List(_ context.Context, userID string) ([]Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Collection, 0)
	for _, collection := range m.collections {
		if collection.UserID == userID {
			result = append(result, m.withItems(collection))
		}
	}

	slices.SortFunc(result, func(a, b Collection) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result, nil
}

func (m *inMemoryRepository) Get(_ context.Context, id uuid.UUID, userID string) (Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	collection, ok := m.owned(id, userID)
	if !ok {
		return Collection{}, ErrNotFound
	}
	return m.withItems(collection), nil
}

func (m *inMemoryRepository) Delete(_ context.Context, id uuid.UUID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.owned(id, userID); !ok {
		return ErrNotFound
	}
	delete(m.collections, id)
	delete(m.items, id)
	return nil
}

func (m *inMemoryRepository) AddItem(_ context.Context, userID string, item Item) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.owned(item.CollectionID, userID); !ok {
		return Item{}, ErrNotFound
	}

	existing := m.items[item.CollectionID]
	item.Rank = 1
	for _, other := range existing {
		if other.Rank >= item.Rank {
			item.Rank = other.Rank + 1
		}
	}
	m.items[item.CollectionID] = append(existing, item)
	return item, nil
}

func (m *inMemoryRepository) DeleteItem(_ context.Context, collectionID, itemID uuid.UUID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.owned(collectionID, userID); !ok {
		return ErrNotFound
	}

	existing := m.items[collectionID]
	idx := slices.IndexFunc(existing, func(it Item) bool { return it.ID == itemID })
	if idx < 0 {
		return ErrItemNotFound
	}
	m.items[collectionID] = slices.Delete(slices.Clone(existing), idx, idx+1)
	return nil
}

func (m *inMemoryRepository) ReorderItems(_ context.Context, collectionID uuid.UUID, userID string, itemIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.owned(collectionID, userID); !ok {
		return ErrNotFound
	}

	existing := m.items[collectionID]
	if len(existing) != len(itemIDs) {
		return ErrItemNotFound
	}
	ranks := make(map[uuid.UUID]int, len(itemIDs))
	for i, id := range itemIDs {
		ranks[id] = i + 1
	}

	updated := make([]Item, len(existing))
	for i, item := range existing {
		rank, ok := ranks[item.ID]
		if !ok {
			return ErrItemNotFound
		}
		item.Rank = rank
		updated[i] = item
	}
	m.items[collectionID] = updated
	return nil
}

func (m *inMemoryRepository) owned(id uuid.UUID, userID string) (Collection, bool) {
	collection, ok := m.collections[id]
	if !ok || collection.UserID != userID {
		return Collection{}, false
	}
	return collection, true
}

func (m *inMemoryRepository) withItems(collection Collection) Collection {
	items := slices.Clone(m.items[collection.ID])
	slices.SortStableFunc(items, func(a, b Item) int { return a.Rank - b.Rank })
	if items == nil {
		items = []Item{}
	}
	collection.Items = items
	return collection
}
