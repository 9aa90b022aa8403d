package engine

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/crucible-db/crucible/internal/record"
	"github.com/crucible-db/crucible/internal/sqlitestore"
	"github.com/crucible-db/crucible/internal/vector"
)

// buildVector reduces a replica's author table to the version vector
// spec §4.2 defines: one usn per author, taken directly from the
// authoritative author row rather than recomputed from entries (the
// author row is the source of truth; it can be ahead of any entry it
// currently owns once that entry has been tombstoned).
func buildVector(ctx context.Context, tx *sql.Tx) (vector.Vector, map[uuid.UUID]record.Author, error) {
	authors, err := sqlitestore.ListAuthors(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	v := vector.New()
	byID := make(map[uuid.UUID]record.Author, len(authors))
	for _, a := range authors {
		v.Set(a.ID, a.USN)
		byID[a.ID] = a
	}
	return v, byID, nil
}
