package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/crucible-db/crucible/internal/record"
)

// SearchText runs query against the FTS5 index and returns the (scope,
// key) pairs of matching entries, most relevant first.
func SearchText(ctx context.Context, tx *sql.Tx, query string) ([]record.Key, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT scope, key FROM entry_full_text WHERE entry_full_text MATCH ? ORDER BY rank
	`, query)
	if err != nil {
		return nil, fmt.Errorf("search text: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []record.Key
	seen := make(map[record.Key]bool)
	for rows.Next() {
		var k record.Key
		if err := rows.Scan(&k.Scope, &k.Name); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out, rows.Err()
}
