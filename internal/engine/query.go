package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/crucible-db/crucible/internal/crucibleerr"
	"github.com/crucible-db/crucible/internal/record"
	"github.com/crucible-db/crucible/internal/sqlitestore"
	"github.com/crucible-db/crucible/internal/telemetry"
)

// bulkReadFanoutThreshold is the explicit-key-list size above which
// BulkRead splits the request into chunks and fetches them concurrently.
const bulkReadFanoutThreshold = 64

const bulkReadChunkSize = 32

// BulkReadQuery selects the four call shapes BulkRead supports: an
// explicit key list, every key in a scope, every key matching a prefix
// within a scope, or (with every field left nil) every key in the
// database.
type BulkReadQuery struct {
	Scope    *string
	KeyList  []string
	KeyPrefix *string
}

// Keys lists every (scope, key) pair with at least one live (non-null)
// entry, narrowed by f.
func (s *Store) Keys(ctx context.Context, f sqlitestore.KeyFilter) ([]record.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginRead(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin keys transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return sqlitestore.ListKeys(ctx, tx, f)
}

// BulkRead resolves every key matched by q to its VersionList in one
// call. Explicit key lists larger than bulkReadFanoutThreshold are split
// into chunks and fetched concurrently, bounded by errgroup's default
// unlimited-but-joined fan-out (each chunk is its own read-only
// transaction, so there is no shared-lock contention to bound further).
func (s *Store) BulkRead(ctx context.Context, q BulkReadQuery) (map[record.Key]record.VersionList, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "engine.BulkRead")
	defer func() { telemetry.EndSpan(span, nil) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(q.KeyList) > bulkReadFanoutThreshold {
		return s.bulkReadFanout(ctx, q)
	}

	tx, err := s.db.BeginRead(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin bulk read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	entries, err := sqlitestore.EntriesByFilter(ctx, tx, toKeyFilter(q))
	if err != nil {
		return nil, err
	}
	return groupVersions(entries), nil
}

func (s *Store) bulkReadFanout(ctx context.Context, q BulkReadQuery) (map[record.Key]record.VersionList, error) {
	chunks := chunkStrings(q.KeyList, bulkReadChunkSize)
	results := make([]map[record.Key]record.VersionList, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			tx, err := s.db.BeginRead(ctx)
			if err != nil {
				return fmt.Errorf("begin bulk read chunk transaction: %w", err)
			}
			defer func() { _ = tx.Rollback() }()

			entries, err := sqlitestore.EntriesByFilter(ctx, tx, sqlitestore.KeyFilter{Scope: q.Scope, KeyList: chunk, KeyPrefix: q.KeyPrefix})
			if err != nil {
				return err
			}
			results[i] = groupVersions(entries)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[record.Key]record.VersionList)
	for _, r := range results {
		for k, v := range r {
			merged[k] = v
		}
	}
	return merged, nil
}

func toKeyFilter(q BulkReadQuery) sqlitestore.KeyFilter {
	return sqlitestore.KeyFilter{Scope: q.Scope, KeyList: q.KeyList, KeyPrefix: q.KeyPrefix}
}

func groupVersions(entries []record.Entry) map[record.Key]record.VersionList {
	out := make(map[record.Key]record.VersionList)
	for _, e := range entries {
		k := record.Key{Scope: e.Scope, Name: e.Key}
		out[k] = append(out[k], record.Version{AuthorID: e.AuthorID, Timestamp: e.Timestamp, Value: e.Value})
	}
	return out
}

func chunkStrings(items []string, size int) [][]string {
	var out [][]string
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

// SearchText runs a full-text query over every text-typed entry and
// returns the matching (scope, key) pairs, most relevant first.
func (s *Store) SearchText(ctx context.Context, query string) ([]record.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginRead(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin search transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return sqlitestore.SearchText(ctx, tx, query)
}

// Statistics summarizes the replica's current size.
type Statistics struct {
	EntryCount     int
	TombstoneCount int
	AuthorCount    int
	Consistent     bool
}

// Statistics computes a point-in-time summary of the replica.
func (s *Store) Statistics(ctx context.Context) (Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginRead(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("begin statistics transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return statisticsTx(ctx, tx)
}

func statisticsTx(ctx context.Context, tx *sql.Tx) (Statistics, error) {
	entryCount, err := sqlitestore.CountEntries(ctx, tx)
	if err != nil {
		return Statistics{}, err
	}
	tombstoneCount, err := sqlitestore.CountTombstones(ctx, tx)
	if err != nil {
		return Statistics{}, err
	}
	authorCount, err := sqlitestore.CountAuthors(ctx, tx)
	if err != nil {
		return Statistics{}, err
	}

	consistent := true
	if err := verifyAuthorTableConsistency(ctx, tx); err != nil {
		if !errors.Is(err, crucibleerr.ErrAuthorTableInconsistency) {
			return Statistics{}, err
		}
		consistent = false
	}

	return Statistics{
		EntryCount:     entryCount,
		TombstoneCount: tombstoneCount,
		AuthorCount:    authorCount,
		Consistent:     consistent,
	}, nil
}
