package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/crucible-db/crucible/internal/appversion"
	"github.com/crucible-db/crucible/internal/record"
	"github.com/crucible-db/crucible/internal/sqlitestore"
	"github.com/crucible-db/crucible/internal/telemetry"
	"github.com/crucible-db/crucible/internal/vector"
)

// Merge pulls every record dest needs from source, applying them and
// persisting the unioned version vector, following the twelve-step
// protocol of spec §4.3. It returns every (scope, key) whose multi-value
// register changed as a result.
func (dest *Store) Merge(ctx context.Context, source *Store) ([]record.Key, error) {
	return dest.merge(ctx, source, false)
}

// MergeDryRun computes exactly what Merge would change, without writing
// anything to dest.
func (dest *Store) MergeDryRun(ctx context.Context, source *Store) ([]record.Key, error) {
	return dest.merge(ctx, source, true)
}

func (dest *Store) merge(ctx context.Context, source *Store, dryRun bool) ([]record.Key, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "engine.Merge")
	defer func() { telemetry.EndSpan(span, nil) }()

	dest.mu.Lock()
	defer dest.mu.Unlock()

	dtx, err := dest.db.BeginWrite(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin merge destination transaction: %w", err)
	}
	defer func() { _ = dtx.Rollback() }()

	// Step 1: the destination must already be internally consistent or
	// its version vector cannot be trusted to compute a correct need-list.
	if err := verifyAuthorTableConsistency(ctx, dtx); err != nil {
		telemetry.Metrics.ConsistencyFailures.Add(ctx, 1)
		return nil, err
	}

	destVector, destAuthorsByID, err := buildVector(ctx, dtx)
	if err != nil {
		return nil, err
	}

	source.mu.RLock()
	defer source.mu.RUnlock()

	stx, err := source.db.BeginRead(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin merge source transaction: %w", err)
	}
	defer func() { _ = stx.Rollback() }()

	if err := verifyAuthorTableConsistency(ctx, stx); err != nil {
		return nil, fmt.Errorf("merge source: %w", err)
	}

	sourceAppID, hasSourceAppID, err := sqlitestore.GetAppIdentifier(ctx, stx)
	if err != nil {
		return nil, err
	}
	var sourceAppIDPtr *record.AppIdentifier
	if hasSourceAppID {
		sourceAppIDPtr = &sourceAppID
	}
	if err := appversion.CheckMerge(sourceAppIDPtr, dest.expected); err != nil {
		return nil, err
	}

	sourceVector, sourceAuthorsByID, err := buildVector(ctx, stx)
	if err != nil {
		return nil, err
	}

	needs := destVector.NeedList(sourceVector)

	var fetchedEntries []record.Entry
	var fetchedTombstones []record.Tombstone
	for _, n := range needs {
		entries, err := sqlitestore.EntriesFromAuthorSince(ctx, stx, n.Author, n.LocalUSN, n.HasLocal)
		if err != nil {
			return nil, err
		}
		fetchedEntries = append(fetchedEntries, entries...)

		tombstones, err := sqlitestore.TombstonesFromDeleterSince(ctx, stx, n.Author, n.LocalUSN, n.HasLocal)
		if err != nil {
			return nil, err
		}
		fetchedTombstones = append(fetchedTombstones, tombstones...)
	}

	changed, err := applyMergeData(ctx, dtx, fetchedTombstones, fetchedEntries, !dryRun)
	if err != nil {
		return nil, err
	}

	if dryRun {
		return sortedKeys(changed), nil
	}

	if err := persistUnionedAuthors(ctx, dtx, destVector, destAuthorsByID, sourceVector, sourceAuthorsByID); err != nil {
		return nil, err
	}

	if err := dtx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge transaction: %w", err)
	}

	if localUSN, ok := sourceVector[dest.localAuthor.ID]; ok && localUSN > dest.localAuthor.USN {
		dest.localAuthor.USN = localUSN
	}

	telemetry.Metrics.Merges.Add(ctx, 1)
	keys := sortedKeys(changed)
	dest.notifyChange(ctx, keys)

	if err := dest.checkConsistency(ctx); err != nil {
		return keys, err
	}
	return keys, nil
}

// applyMergeData runs the tombstone-then-entry application order of spec
// §4.3 within the already-open destination transaction, returning the set
// of keys that actually changed. When apply is false (dry run) it only
// determines what would change, reading but never mutating dtx.
func applyMergeData(ctx context.Context, dtx *sql.Tx, tombstones []record.Tombstone, entries []record.Entry, apply bool) (map[record.Key]bool, error) {
	changed := make(map[record.Key]bool)

	for _, t := range tombstones {
		existing, ok, err := sqlitestore.GetEntry(ctx, dtx, t.Scope, t.Key, t.AuthorID)
		if err != nil {
			return nil, err
		}
		if !ok || existing.USN > t.USN {
			continue
		}
		changed[record.Key{Scope: t.Scope, Name: t.Key}] = true
		if !apply {
			continue
		}
		if err := sqlitestore.DeleteEntry(ctx, dtx, t.Scope, t.Key, t.AuthorID); err != nil {
			return nil, err
		}
		if err := sqlitestore.InsertTombstone(ctx, dtx, t); err != nil {
			return nil, err
		}
	}

	for _, e := range entries {
		changed[record.Key{Scope: e.Scope, Name: e.Key}] = true
		if !apply {
			continue
		}
		if err := sqlitestore.UpsertEntry(ctx, dtx, e); err != nil {
			return nil, err
		}
		if err := sqlitestore.DeleteTombstonesAtSlotBelow(ctx, dtx, e.Scope, e.Key, e.AuthorID, e.USN); err != nil {
			return nil, err
		}
	}

	return changed, nil
}

// persistUnionedAuthors writes the destination's post-merge author table:
// every author either side has ever seen, at the larger of the two usns.
// The local session's own author row is never overwritten with the
// source's name, preserving its record identity even if the source had
// independently observed (and renamed) the same author id.
func persistUnionedAuthors(ctx context.Context, dtx *sql.Tx, destVector vector.Vector, destAuthors map[uuid.UUID]record.Author, sourceVector vector.Vector, sourceAuthors map[uuid.UUID]record.Author) error {
	union := destVector.Clone()
	union.Union(sourceVector)

	now := time.Now().UTC()
	for authorID, usn := range union {
		row, existedLocally := destAuthors[authorID]
		if !existedLocally {
			srcRow, ok := sourceAuthors[authorID]
			name := ""
			if ok {
				name = srcRow.Name
			}
			row = record.Author{ID: authorID, Name: name}
		}
		row.USN = usn
		row.Timestamp = now
		if err := sqlitestore.UpsertAuthor(ctx, dtx, row); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(set map[record.Key]bool) []record.Key {
	keys := make([]record.Key, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Scope != keys[j].Scope {
			return keys[i].Scope < keys[j].Scope
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}
