package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/crucible-db/crucible/internal/record"
)

const tombstoneColumns = `scope, key, author_id, usn, deleting_author_id, deleting_usn`

func scanTombstoneRow(row interface{ Scan(...any) error }) (record.Tombstone, error) {
	var t record.Tombstone
	var authorID, deletingAuthorID string
	var usn, deletingUSN int64
	if err := row.Scan(&t.Scope, &t.Key, &authorID, &usn, &deletingAuthorID, &deletingUSN); err != nil {
		return record.Tombstone{}, err
	}
	var err error
	t.AuthorID, err = uuid.Parse(authorID)
	if err != nil {
		return record.Tombstone{}, fmt.Errorf("parse tombstone author id: %w", err)
	}
	t.DeletingAuthorID, err = uuid.Parse(deletingAuthorID)
	if err != nil {
		return record.Tombstone{}, fmt.Errorf("parse tombstone deleting author id: %w", err)
	}
	t.USN = uint64(usn)
	t.DeletingUSN = uint64(deletingUSN)
	return t, nil
}

// InsertTombstone appends a tombstone row. Tombstones are not unique: two
// different deleters may each record a tombstone for the same prior
// (scope, key, author, usn).
func InsertTombstone(ctx context.Context, tx *sql.Tx, t record.Tombstone) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tombstone (`+tombstoneColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`, t.Scope, t.Key, t.AuthorID.String(), t.USN, t.DeletingAuthorID.String(), t.DeletingUSN)
	if err != nil {
		return fmt.Errorf("insert tombstone: %w", err)
	}
	return nil
}

// DeleteTombstonesAtSlotBelow removes every tombstone at (scope, key,
// author) whose usn is strictly less than usn — the garbage collection
// step that runs after a higher-usn entry from that author arrives.
func DeleteTombstonesAtSlotBelow(ctx context.Context, tx *sql.Tx, scope, key string, author uuid.UUID, usn uint64) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM tombstone WHERE scope = ? AND key = ? AND author_id = ? AND usn < ?
	`, scope, key, author.String(), usn)
	if err != nil {
		return fmt.Errorf("gc tombstones at slot: %w", err)
	}
	return nil
}

// DeleteAllTombstones removes every tombstone row (erase-version-history
// step 1).
func DeleteAllTombstones(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM tombstone`); err != nil {
		return fmt.Errorf("delete all tombstones: %w", err)
	}
	return nil
}

// TombstonesFromDeleterSince returns every tombstone whose
// deleting_author_id is deleter and whose deleting_usn exceeds sinceUSN
// (or every such tombstone if hasSince is false) — merge's fetch-from-
// source step for causal evidence.
func TombstonesFromDeleterSince(ctx context.Context, tx *sql.Tx, deleter uuid.UUID, sinceUSN uint64, hasSince bool) ([]record.Tombstone, error) {
	var rows *sql.Rows
	var err error
	if hasSince {
		rows, err = tx.QueryContext(ctx, `SELECT `+tombstoneColumns+` FROM tombstone WHERE deleting_author_id = ? AND deleting_usn > ?`,
			deleter.String(), sinceUSN)
	} else {
		rows, err = tx.QueryContext(ctx, `SELECT `+tombstoneColumns+` FROM tombstone WHERE deleting_author_id = ?`, deleter.String())
	}
	if err != nil {
		return nil, fmt.Errorf("tombstones from deleter since: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []record.Tombstone
	for rows.Next() {
		t, err := scanTombstoneRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tombstone row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountTombstones returns the number of tombstone rows.
func CountTombstones(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tombstone`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tombstones: %w", err)
	}
	return n, nil
}
