package migrations

import (
	"context"
	"database/sql"
)

// InitialSchema creates the four base relations of the data model: author,
// entry, tombstone, and application_identifier. The tombstone table is
// intentionally non-unique on (scope, key, author_id, usn): the original
// format's unique constraint there forbade two different deleters from
// recording the same prior entry (bd note carried from the teacher's own
// bd-vw8 tombstone design, generalized here to a non-unique secondary
// index on the deleting side instead).
func InitialSchema(ctx context.Context, db *sql.DB) error {
	return exec(ctx, db,
		`CREATE TABLE author (
			id        TEXT PRIMARY KEY,
			name      TEXT NOT NULL DEFAULT '',
			usn       INTEGER NOT NULL DEFAULT 0,
			timestamp TEXT NOT NULL
		)`,
		`CREATE TABLE entry (
			scope     TEXT NOT NULL,
			key       TEXT NOT NULL,
			author_id TEXT NOT NULL,
			usn       INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			type      INTEGER NOT NULL,
			text      TEXT,
			json      TEXT,
			blob_mime TEXT,
			blob      BLOB,
			PRIMARY KEY (scope, key, author_id)
		)`,
		`CREATE INDEX idx_entry_scope_key ON entry (scope, key)`,
		`CREATE INDEX idx_entry_author_usn ON entry (author_id, usn)`,
		`CREATE TABLE tombstone (
			scope              TEXT NOT NULL,
			key                TEXT NOT NULL,
			author_id          TEXT NOT NULL,
			usn                INTEGER NOT NULL,
			deleting_author_id TEXT NOT NULL,
			deleting_usn       INTEGER NOT NULL
		)`,
		`CREATE INDEX idx_tombstone_slot ON tombstone (scope, key, author_id)`,
		`CREATE INDEX idx_tombstone_deleter ON tombstone (deleting_author_id, deleting_usn)`,
		`CREATE TABLE application_identifier (
			id          TEXT PRIMARY KEY,
			major       INTEGER NOT NULL,
			minor       INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
	)
}
