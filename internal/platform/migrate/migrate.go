package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"collections/migrations"
)

// baselineVersion is recorded for databases whose profiles table was created
// by hand in the hosted backend's SQL console before goose was introduced.
const baselineVersion int64 = 1

// Apply runs any pending SQL migrations bundled with the binary.
func Apply(ctx context.Context, db *sqlx.DB, logger *slog.Logger) error {
	goose.SetBaseFS(migrations.Files)
	goose.SetLogger(gooseSlogLogger{logger: logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate: set goose dialect: %w", err)
	}

	if err := bootstrapBaseline(ctx, db.DB, logger); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return fmt.Errorf("migrate: goose up: %w", err)
	}

	return nil
}

func bootstrapBaseline(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	exists, err := tableExists(ctx, db, "profiles")
	if err != nil {
		return fmt.Errorf("migrate: check profiles table: %w", err)
	}
	if !exists {
		return nil
	}

	if _, err := goose.EnsureDBVersionContext(ctx, db); err != nil {
		return fmt.Errorf("migrate: ensure goose table: %w", err)
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate: check goose version: %w", err)
	}

	if current == 0 {
		query := fmt.Sprintf(`INSERT INTO %s (version_id, is_applied) VALUES ($1, TRUE)`, goose.TableName())
		if _, err := db.ExecContext(ctx, query, baselineVersion); err != nil {
			return fmt.Errorf("migrate: set baseline: %w", err)
		}
		if logger != nil {
			logger.Info("goose baseline recorded", "version", baselineVersion)
		}
	}

	return nil
}

func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	schema, table := splitTableName(name)
	if schema == "" {
		schema = "public"
	}

	var exists bool
	err := db.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = $1 AND tablename = $2)`,
		schema,
		table,
	).Scan(&exists)
	return exists, err
}

func splitTableName(name string) (string, string) {
	schema, table, found := strings.Cut(name, ".")
	if !found {
		return "", name
	}
	return schema, table
}
