package postgres

import (
	"context"
	"embed"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations lists the embedded migration files in apply order.
func Migrations() ([]string, error) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Migrate applies every embedded migration that is not yet recorded in schema_migrations.
// Each file runs in its own transaction.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	const createStmt = `CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now());`
	if _, err := db.Exec(ctx, createStmt); err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	names, err := Migrations()
	if err != nil {
		return fmt.Errorf("migrate: list: %w", err)
	}

	for _, name := range names {
		applied, err := apply(ctx, db, name)
		if err != nil {
			return fmt.Errorf("migrate: %s: %w", name, err)
		}
		if applied {
			slog.InfoContext(ctx, "postgres: applied migration", "name", name)
		}
	}

	return nil
}

func apply(ctx context.Context, db *pgxpool.Pool, name string) (applied bool, err error) {
	b, err := migrationsFS.ReadFile(name)
	if err != nil {
		return false, err
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	var exists bool
	if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1);`, name).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		return false, tx.Rollback(ctx)
	}

	if _, err = tx.Exec(ctx, string(b), pgx.QueryExecModeSimpleProtocol); err != nil {
		return false, err
	}
	if _, err = tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1);`, name); err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}
