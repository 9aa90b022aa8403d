package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/crucible-db/crucible/internal/crucibleerr"
	"github.com/crucible-db/crucible/internal/record"
	"github.com/crucible-db/crucible/internal/sqlitestore"
	"github.com/crucible-db/crucible/internal/telemetry"
)

// WriteItem is one (scope, key, value) triple passed to WriteBulk.
type WriteItem struct {
	Scope string
	Key   string
	Value record.Value
}

// Write performs the write path of spec §4.3: bump the local author's
// usn, tombstone every other author's entry currently occupying (scope,
// key), and persist the new entry — all as a single transaction. Write is
// also how deletion works: pass record.NewNullValue() as value.
func (s *Store) Write(ctx context.Context, scope, key string, value record.Value) (record.Version, error) {
	versions, err := s.WriteBulk(ctx, []WriteItem{{Scope: scope, Key: key, Value: value}})
	if err != nil {
		return record.Version{}, err
	}
	return versions[0], nil
}

// Delete is sugar for Write with a null-typed value.
func (s *Store) Delete(ctx context.Context, scope, key string) (record.Version, error) {
	return s.Write(ctx, scope, key, record.NewNullValue())
}

// WriteBulk applies every item in order within one transaction: each item
// bumps the local usn once (spec's "step 1 and 4 once per input"); the
// tombstone-other-authors step is naturally idempotent when the same key
// appears more than once in a single call, since the second pass finds no
// remaining competing entries.
func (s *Store) WriteBulk(ctx context.Context, items []WriteItem) ([]record.Version, error) {
	for _, it := range items {
		if it.Value.Type == record.TypeJSON && !gjson.Valid(it.Value.JSON) {
			return nil, fmt.Errorf("%w: scope %q key %q", crucibleerr.ErrInvalidJSON, it.Scope, it.Key)
		}
	}

	ctx, span := telemetry.Tracer.Start(ctx, "engine.WriteBulk")
	defer func() { telemetry.EndSpan(span, nil) }()

	s.mu.Lock()
	author := s.localAuthor
	defer s.mu.Unlock()

	tx, err := s.db.BeginWrite(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin write transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	versions := make([]record.Version, len(items))
	var changedKeys []record.Key
	tombstoneCount := 0

	for i, it := range items {
		author.USN++

		others, err := sqlitestore.EntriesOtherAuthors(ctx, tx, it.Scope, it.Key, author.ID)
		if err != nil {
			return nil, err
		}
		for _, other := range others {
			t := record.Tombstone{
				Scope: it.Scope, Key: it.Key,
				AuthorID: other.AuthorID, USN: other.USN,
				DeletingAuthorID: author.ID, DeletingUSN: author.USN,
			}
			if err := sqlitestore.InsertTombstone(ctx, tx, t); err != nil {
				return nil, err
			}
			if err := sqlitestore.DeleteEntry(ctx, tx, it.Scope, it.Key, other.AuthorID); err != nil {
				return nil, err
			}
			tombstoneCount++
		}

		entry := record.Entry{
			Scope: it.Scope, Key: it.Key,
			AuthorID: author.ID, USN: author.USN,
			Timestamp: now, Value: it.Value,
		}
		if err := sqlitestore.UpsertEntry(ctx, tx, entry); err != nil {
			return nil, err
		}

		versions[i] = record.Version{AuthorID: author.ID, Timestamp: now, Value: it.Value}
		changedKeys = append(changedKeys, record.Key{Scope: it.Scope, Name: it.Key})
	}

	if err := sqlitestore.UpsertAuthor(ctx, tx, author); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit write transaction: %w", err)
	}

	s.localAuthor = author
	telemetry.Metrics.Writes.Add(ctx, int64(len(items)))
	if tombstoneCount > 0 {
		telemetry.Metrics.TombstonesCreated.Add(ctx, int64(tombstoneCount))
	}

	s.notifyChange(ctx, changedKeys)

	// The consistency invariant holds by construction for a pure local
	// write (the author row was bumped to at least the usn of every entry
	// it just produced), but the check still runs so every committing
	// code path shares the same post-commit verification in spec §7.
	if err := s.checkConsistency(ctx); err != nil {
		return nil, err
	}

	return versions, nil
}

func (s *Store) checkConsistency(ctx context.Context) error {
	tx, err := s.db.BeginRead(ctx)
	if err != nil {
		return fmt.Errorf("begin consistency check transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := verifyAuthorTableConsistency(ctx, tx); err != nil {
		telemetry.Metrics.ConsistencyFailures.Add(ctx, 1)
		return err
	}
	return nil
}

// verifyAuthorTableConsistency checks that every author's recorded usn is
// at least the usn of every entry it owns — the invariant spec §8 calls
// out as load-bearing for the version-vector logic to be sound.
func verifyAuthorTableConsistency(ctx context.Context, tx *sql.Tx) error {
	authors, err := sqlitestore.ListAuthors(ctx, tx)
	if err != nil {
		return err
	}
	for _, a := range authors {
		maxUSN, ok, err := sqlitestore.MaxEntryUSNForAuthor(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		if ok && maxUSN > a.USN {
			return fmt.Errorf("%w: author %s has entry usn %d but recorded usn %d",
				crucibleerr.ErrAuthorTableInconsistency, a.ID, maxUSN, a.USN)
		}
	}
	return nil
}
