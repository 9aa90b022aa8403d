package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crucible-db/crucible/internal/record"
)

// GetAuthor returns the author row for id, or ok=false if it doesn't exist.
func GetAuthor(ctx context.Context, tx *sql.Tx, id uuid.UUID) (record.Author, bool, error) {
	var a record.Author
	var idStr, ts string
	row := tx.QueryRowContext(ctx, `SELECT id, name, usn, timestamp FROM author WHERE id = ?`, id.String())
	if err := row.Scan(&idStr, &a.Name, &a.USN, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.Author{}, false, nil
		}
		return record.Author{}, false, fmt.Errorf("get author: %w", err)
	}
	parsed, err := uuid.Parse(idStr)
	if err != nil {
		return record.Author{}, false, fmt.Errorf("parse author id: %w", err)
	}
	a.ID = parsed
	a.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return record.Author{}, false, fmt.Errorf("parse author timestamp: %w", err)
	}
	return a, true, nil
}

// ListAuthors returns every author row in the database.
func ListAuthors(ctx context.Context, tx *sql.Tx) ([]record.Author, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, name, usn, timestamp FROM author`)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []record.Author
	for rows.Next() {
		var idStr, ts string
		var a record.Author
		if err := rows.Scan(&idStr, &a.Name, &a.USN, &ts); err != nil {
			return nil, fmt.Errorf("scan author row: %w", err)
		}
		a.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse author id: %w", err)
		}
		a.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse author timestamp: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertAuthor inserts or replaces the author row identified by a.ID.
func UpsertAuthor(ctx context.Context, tx *sql.Tx, a record.Author) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO author (id, name, usn, timestamp) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, usn = excluded.usn, timestamp = excluded.timestamp
	`, a.ID.String(), a.Name, a.USN, a.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert author: %w", err)
	}
	return nil
}

// DeleteAuthorsExcept removes every author row except keep.
func DeleteAuthorsExcept(ctx context.Context, tx *sql.Tx, keep uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM author WHERE id != ?`, keep.String())
	if err != nil {
		return fmt.Errorf("delete non-local authors: %w", err)
	}
	return nil
}

// CountAuthors returns the number of author rows.
func CountAuthors(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM author`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count authors: %w", err)
	}
	return n, nil
}

// MaxEntryUSNForAuthor returns the largest entry.usn recorded for author,
// and ok=false if that author has no entries at all.
func MaxEntryUSNForAuthor(ctx context.Context, tx *sql.Tx, author uuid.UUID) (uint64, bool, error) {
	var usn sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT MAX(usn) FROM entry WHERE author_id = ?`, author.String()).Scan(&usn)
	if err != nil {
		return 0, false, fmt.Errorf("max entry usn for author: %w", err)
	}
	if !usn.Valid {
		return 0, false, nil
	}
	return uint64(usn.Int64), true, nil
}
