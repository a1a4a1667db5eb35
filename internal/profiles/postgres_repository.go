package profiles

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

type postgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a profile repository backed by Postgres.
func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Get(ctx context.Context, id string) (Profile, error) {
	const query = `
		SELECT id, username, avatar_url, role, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`

	var profile Profile
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return profile, nil
}

func (r *postgresRepository) Insert(ctx context.Context, profile Profile) (bool, error) {
	result, err := r.db.NamedExecContext(ctx, `
		INSERT INTO profiles (id, username, avatar_url, role)
		VALUES (:id, :username, :avatar_url, :role)
		ON CONFLICT (id) DO NOTHING
	`, profile)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *postgresRepository) List(ctx context.Context, search string) ([]Profile, error) {
	query := `
		SELECT id, username, avatar_url, role, created_at, updated_at
		FROM profiles
	`
	var args []any
	if search = strings.TrimSpace(search); search != "" {
		query += ` WHERE username ILIKE $1`
		args = append(args, "%"+escapeLike(search)+"%")
	}
	query += ` ORDER BY created_at DESC, id`

	profiles := []Profile{}
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *postgresRepository) UpdateRole(ctx context.Context, id string, role Role, updatedAt time.Time) (Profile, error) {
	const query = `
		UPDATE profiles
		SET role = $2, updated_at = $3
		WHERE id = $1
		RETURNING id, username, avatar_url, role, created_at, updated_at
	`

	var profile Profile
	if err := r.db.GetContext(ctx, &profile, query, id, role, updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return profile, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
