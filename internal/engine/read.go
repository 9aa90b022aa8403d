package engine

import (
	"context"
	"fmt"

	"github.com/crucible-db/crucible/internal/record"
	"github.com/crucible-db/crucible/internal/sqlitestore"
	"github.com/crucible-db/crucible/internal/telemetry"
)

// Read returns the multi-value register at (scope, key): every author's
// current entry, in no particular order. An empty result means the key
// was never written; a single null-typed version means it was deleted;
// more than one version means two authors wrote concurrently and the
// caller must resolve the conflict (see record.VersionList).
func (s *Store) Read(ctx context.Context, scope, key string) (record.VersionList, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "engine.Read")
	defer func() { telemetry.EndSpan(span, nil) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginRead(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	entries, err := sqlitestore.EntriesForKey(ctx, tx, scope, key)
	if err != nil {
		return nil, err
	}

	versions := make(record.VersionList, len(entries))
	for i, e := range entries {
		versions[i] = record.Version{AuthorID: e.AuthorID, Timestamp: e.Timestamp, Value: e.Value}
	}
	return versions, nil
}
