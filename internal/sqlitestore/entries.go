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

func scanEntry(scope, key, authorID string, usn int64, ts string, typ int, text, json, blobMime sql.NullString, blob []byte) (record.Entry, error) {
	e := record.Entry{Scope: scope, Key: key, USN: uint64(usn)}
	var err error
	e.AuthorID, err = uuid.Parse(authorID)
	if err != nil {
		return record.Entry{}, fmt.Errorf("parse entry author id: %w", err)
	}
	e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return record.Entry{}, fmt.Errorf("parse entry timestamp: %w", err)
	}
	e.Value.Type = record.ValueType(typ)
	switch e.Value.Type {
	case record.TypeText:
		e.Value.Text = text.String
	case record.TypeJSON:
		e.Value.JSON = json.String
	case record.TypeBlob:
		e.Value.BlobMIME = blobMime.String
		e.Value.Blob = blob
	}
	return e, nil
}

const entryColumns = `scope, key, author_id, usn, timestamp, type, text, json, blob_mime, blob`

func scanEntryRow(row interface{ Scan(...any) error }) (record.Entry, error) {
	var scope, key, authorID, ts string
	var usn int64
	var typ int
	var text, jsonVal, blobMime sql.NullString
	var blob []byte
	if err := row.Scan(&scope, &key, &authorID, &usn, &ts, &typ, &text, &jsonVal, &blobMime, &blob); err != nil {
		return record.Entry{}, err
	}
	return scanEntry(scope, key, authorID, usn, ts, typ, text, jsonVal, blobMime, blob)
}

// GetEntry returns the entry at (scope, key, author), or ok=false if none.
func GetEntry(ctx context.Context, tx *sql.Tx, scope, key string, author uuid.UUID) (record.Entry, bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entry WHERE scope = ? AND key = ? AND author_id = ?`,
		scope, key, author.String())
	e, err := scanEntryRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.Entry{}, false, nil
		}
		return record.Entry{}, false, fmt.Errorf("get entry: %w", err)
	}
	return e, true, nil
}

// EntriesForKey returns every author's entry at (scope, key): the
// multi-value register's current contents.
func EntriesForKey(ctx context.Context, tx *sql.Tx, scope, key string) ([]record.Entry, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+entryColumns+` FROM entry WHERE scope = ? AND key = ?`, scope, key)
	if err != nil {
		return nil, fmt.Errorf("entries for key: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]record.Entry, error) {
	var out []record.Entry
	for rows.Next() {
		e, err := scanEntryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntriesOtherAuthors returns every entry at (scope, key) whose author_id
// is not exclude — the set a local write must tombstone and replace.
func EntriesOtherAuthors(ctx context.Context, tx *sql.Tx, scope, key string, exclude uuid.UUID) ([]record.Entry, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+entryColumns+` FROM entry WHERE scope = ? AND key = ? AND author_id != ?`,
		scope, key, exclude.String())
	if err != nil {
		return nil, fmt.Errorf("entries other authors: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectEntries(rows)
}

// UpsertEntry inserts or replaces the entry at (scope, key, author).
func UpsertEntry(ctx context.Context, tx *sql.Tx, e record.Entry) error {
	var text, jsonVal, blobMime sql.NullString
	var blob []byte
	switch e.Value.Type {
	case record.TypeText:
		text = sql.NullString{String: e.Value.Text, Valid: true}
	case record.TypeJSON:
		jsonVal = sql.NullString{String: e.Value.JSON, Valid: true}
	case record.TypeBlob:
		blobMime = sql.NullString{String: e.Value.BlobMIME, Valid: true}
		blob = e.Value.Blob
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO entry (scope, key, author_id, usn, timestamp, type, text, json, blob_mime, blob)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (scope, key, author_id) DO UPDATE SET
			usn = excluded.usn,
			timestamp = excluded.timestamp,
			type = excluded.type,
			text = excluded.text,
			json = excluded.json,
			blob_mime = excluded.blob_mime,
			blob = excluded.blob
	`, e.Scope, e.Key, e.AuthorID.String(), e.USN, e.Timestamp.UTC().Format(time.RFC3339Nano),
		int(e.Value.Type), text, jsonVal, blobMime, blob)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

// DeleteEntry removes the entry at (scope, key, author), if any.
func DeleteEntry(ctx context.Context, tx *sql.Tx, scope, key string, author uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM entry WHERE scope = ? AND key = ? AND author_id = ?`, scope, key, author.String())
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// RewriteEntriesToAuthor rewrites every entry's (author_id, usn) to
// (newAuthor, newUSN) — used by erase-version-history. Because the
// primary key includes author_id, entries from different old authors at
// the same (scope, key) slot collapse onto a single row under the new
// author: every entry is deleted and only the first row read for each
// (scope, key) is reinserted, matching the "replica looks like a
// single-author database" outcome. Rows are read ordered by scope and key
// only, so which author's value survives a conflicted slot is not defined.
func RewriteEntriesToAuthor(ctx context.Context, tx *sql.Tx, newAuthor uuid.UUID, newUSN uint64) error {
	rows, err := tx.QueryContext(ctx, `SELECT `+entryColumns+` FROM entry ORDER BY scope, key`)
	if err != nil {
		return fmt.Errorf("select entries for rewrite: %w", err)
	}
	all, err := collectEntries(rows)
	_ = rows.Close()
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entry`); err != nil {
		return fmt.Errorf("clear entries for rewrite: %w", err)
	}

	seen := make(map[record.Key]bool, len(all))
	now := time.Now().UTC()
	for _, e := range all {
		k := record.Key{Scope: e.Scope, Name: e.Key}
		if seen[k] {
			continue
		}
		seen[k] = true
		e.AuthorID = newAuthor
		e.USN = newUSN
		e.Timestamp = now
		if err := UpsertEntry(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}

// KeyFilter narrows ListKeys and EntriesByFilter to a scope and/or key.
type KeyFilter struct {
	Scope    *string
	Key      *string
	KeyList  []string
	KeyPrefix *string
}

// ListKeys returns every (scope, key) pair with at least one non-null
// entry, optionally filtered by scope and/or key.
func ListKeys(ctx context.Context, tx *sql.Tx, f KeyFilter) ([]record.Key, error) {
	query := `SELECT DISTINCT scope, key FROM entry WHERE type != 0`
	var args []any
	if f.Scope != nil {
		query += ` AND scope = ?`
		args = append(args, *f.Scope)
	}
	if f.Key != nil {
		query += ` AND key = ?`
		args = append(args, *f.Key)
	}
	if f.KeyPrefix != nil {
		query += ` AND key LIKE ? ESCAPE '\'`
		args = append(args, likePrefix(*f.KeyPrefix))
	}
	if len(f.KeyList) > 0 {
		query += ` AND key IN (` + placeholders(len(f.KeyList)) + `)`
		for _, k := range f.KeyList {
			args = append(args, k)
		}
	}
	query += ` ORDER BY scope, key`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []record.Key
	for rows.Next() {
		var k record.Key
		if err := rows.Scan(&k.Scope, &k.Name); err != nil {
			return nil, fmt.Errorf("scan key row: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// EntriesByFilter returns every entry row (including null-typed ones,
// unlike ListKeys) matching f, for the engine's bulk-read path to group
// by key.
func EntriesByFilter(ctx context.Context, tx *sql.Tx, f KeyFilter) ([]record.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entry WHERE 1 = 1`
	var args []any
	if f.Scope != nil {
		query += ` AND scope = ?`
		args = append(args, *f.Scope)
	}
	if f.Key != nil {
		query += ` AND key = ?`
		args = append(args, *f.Key)
	}
	if f.KeyPrefix != nil {
		query += ` AND key LIKE ? ESCAPE '\'`
		args = append(args, likePrefix(*f.KeyPrefix))
	}
	if len(f.KeyList) > 0 {
		query += ` AND key IN (` + placeholders(len(f.KeyList)) + `)`
		for _, k := range f.KeyList {
			args = append(args, k)
		}
	}
	query += ` ORDER BY scope, key`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("entries by filter: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectEntries(rows)
}

// EntriesFromAuthorSince returns every entry authored by author whose usn
// exceeds sinceUSN (or every entry from that author if hasSince is false),
// for merge's fetch-from-source step.
func EntriesFromAuthorSince(ctx context.Context, tx *sql.Tx, author uuid.UUID, sinceUSN uint64, hasSince bool) ([]record.Entry, error) {
	var rows *sql.Rows
	var err error
	if hasSince {
		rows, err = tx.QueryContext(ctx, `SELECT `+entryColumns+` FROM entry WHERE author_id = ? AND usn > ?`, author.String(), sinceUSN)
	} else {
		rows, err = tx.QueryContext(ctx, `SELECT `+entryColumns+` FROM entry WHERE author_id = ?`, author.String())
	}
	if err != nil {
		return nil, fmt.Errorf("entries from author since: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectEntries(rows)
}

// CountEntries returns the number of entry rows (including null-typed
// ones; spec's Statistics.entry_count counts rows, not live keys).
func CountEntries(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entry`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}

// likePrefix escapes % and _ in prefix and appends a wildcard so it can be
// used as the right-hand side of LIKE ... ESCAPE '\'.
func likePrefix(prefix string) string {
	escaped := make([]byte, 0, len(prefix)+1)
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '%' || c == '_' || c == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, c)
	}
	return string(escaped) + "%"
}
