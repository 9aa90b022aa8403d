package migrations

import (
	"context"
	"database/sql"
)

// ConfigTable creates a small key/value table for ambient settings that
// don't belong in the CRDT data model proper (e.g. a cached telemetry
// toggle), mirroring the teacher's config table pattern
// (internal/storage/sqlite/config.go).
func ConfigTable(ctx context.Context, db *sql.DB) error {
	return exec(ctx, db,
		`CREATE TABLE config (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,
	)
}
