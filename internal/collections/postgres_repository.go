package collections

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type postgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a collections repository backed by Postgres.
func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, collection Collection) (Collection, error) {
	if _, err := r.db.NamedExecContext(ctx, `
		INSERT INTO collections (id, user_id, title, description, created_at, updated_at)
		VALUES (:id, :user_id, :title, :description, :created_at, :updated_at)
	`, collection); err != nil {
		return Collection{}, err
	}
	return r.Get(ctx, collection.ID, collection.UserID)
}

func (r *postgresRepository) List(ctx context.Context, userID string) ([]Collection, error) {
	var result []Collection
	if err := r.db.SelectContext(ctx, &result, `
		SELECT id, user_id, title, description, created_at, updated_at
		FROM collections
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return []Collection{}, nil
	}

	ids := make([]string, len(result))
	for i, c := range result {
		ids[i] = c.ID.String()
	}

	var items []Item
	if err := r.db.SelectContext(ctx, &items, `
		SELECT id, collection_id, type, content, rank, created_at
		FROM collection_items
		WHERE collection_id = ANY($1::uuid[])
		ORDER BY collection_id, rank, created_at
	`, pq.Array(ids)); err != nil {
		return nil, err
	}

	byCollection := make(map[uuid.UUID][]Item, len(result))
	for _, item := range items {
		byCollection[item.CollectionID] = append(byCollection[item.CollectionID], item)
	}
	for i := range result {
		result[i].Items = byCollection[result[i].ID]
		if result[i].Items == nil {
			result[i].Items = []Item{}
		}
	}
	return result, nil
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID, userID string) (Collection, error) {
	var collection Collection
	if err := r.db.GetContext(ctx, &collection, `
		SELECT id, user_id, title, description, created_at, updated_at
		FROM collections
		WHERE id = $1 AND user_id = $2
	`, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Collection{}, ErrNotFound
		}
		return Collection{}, err
	}

	collection.Items = []Item{}
	if err := r.db.SelectContext(ctx, &collection.Items, `
		SELECT id, collection_id, type, content, rank, created_at
		FROM collection_items
		WHERE collection_id = $1
		ORDER BY rank, created_at
	`, id); err != nil {
		return Collection{}, err
	}
	return collection, nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM collections WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrNotFound)
}

func (r *postgresRepository) AddItem(ctx context.Context, userID string, item Item) (Item, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Item{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Locking the parent row serialises concurrent appends to one collection.
	var owner string
	if err := tx.GetContext(ctx, &owner, `
		SELECT user_id FROM collections WHERE id = $1 FOR UPDATE
	`, item.CollectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	if owner != userID {
		return Item{}, ErrNotFound
	}

	if err := tx.GetContext(ctx, &item.Rank, `
		INSERT INTO collection_items (id, collection_id, type, content, rank, created_at)
		VALUES ($1, $2, $3, $4, (SELECT COALESCE(MAX(rank), 0) + 1 FROM collection_items WHERE collection_id = $2), $5)
		RETURNING rank
	`, item.ID, item.CollectionID, item.Type, item.Content, item.CreatedAt); err != nil {
		return Item{}, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE collections SET updated_at = $2 WHERE id = $1`, item.CollectionID, item.CreatedAt); err != nil {
		return Item{}, err
	}

	if err := tx.Commit(); err != nil {
		return Item{}, err
	}
	return item, nil
}

func (r *postgresRepository) DeleteItem(ctx context.Context, collectionID, itemID uuid.UUID, userID string) error {
	if err := r.ensureOwner(ctx, r.db, collectionID, userID); err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM collection_items WHERE id = $1 AND collection_id = $2
	`, itemID, collectionID)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrItemNotFound)
}

func (r *postgresRepository) ReorderItems(ctx context.Context, collectionID uuid.UUID, userID string, itemIDs []uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.ensureOwner(ctx, tx, collectionID, userID); err != nil {
		return err
	}

	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM collection_items WHERE collection_id = $1`, collectionID); err != nil {
		return err
	}
	if count != len(itemIDs) {
		return ErrItemNotFound
	}

	for i, id := range itemIDs {
		result, err := tx.ExecContext(ctx, `
			UPDATE collection_items SET rank = $3 WHERE id = $1 AND collection_id = $2
		`, id, collectionID, i+1)
		if err != nil {
			return err
		}
		if err := requireAffected(result, ErrItemNotFound); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *postgresRepository) ensureOwner(ctx context.Context, q sqlx.QueryerContext, collectionID uuid.UUID, userID string) error {
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `
		SELECT EXISTS (SELECT 1 FROM collections WHERE id = $1 AND user_id = $2)
	`, collectionID, userID); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func requireAffected(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
