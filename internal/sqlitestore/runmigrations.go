package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/crucible-db/crucible/internal/crucibleerr"
	"github.com/crucible-db/crucible/internal/sqlitestore/migrations"
)

// runMigrations ensures the schema_migrations ledger exists, applies every
// registered migration not yet recorded there (in order), and fails with
// crucibleerr.ErrSchemaTooNew if the ledger names a migration this build
// does not recognize (the file was written by a newer build).
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("create schema_migrations ledger: %w", err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(migrations.All))
	for _, m := range migrations.All {
		known[m.Name] = true
	}
	for name := range applied {
		if !known[name] {
			return fmt.Errorf("%w: unknown migration %q recorded in database", crucibleerr.ErrSchemaTooNew, name)
		}
	}

	for _, m := range migrations.All {
		if applied[m.Name] {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("apply migration %q: %w", m.Name, err)
		}
	}
	return nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema_migrations row: %w", err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func applyMigration(ctx context.Context, db *sql.DB, m migrations.Step) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Migration steps operate against *sql.DB directly (some issue DDL,
	// which SQLite does not roll back transactionally the way DML does);
	// the surrounding transaction here only protects the ledger insert
	// racing a concurrent opener, not the DDL itself.
	if err := m.Func(ctx, db); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)
	`, m.Name, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
