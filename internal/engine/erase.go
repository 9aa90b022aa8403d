package engine

import (
	"context"
	"fmt"

	"github.com/crucible-db/crucible/internal/sqlitestore"
)

// EraseVersionHistory collapses every author's entries onto the local
// author and discards every other author row and every tombstone. After
// it returns, the file looks like it was always written by a single
// author: Read never reports a conflict and Merge against any replica
// that only ever saw the pre-erase history starts fresh.
//
// The erase consumes exactly one usn: one above the largest usn any
// author had before it. The rewritten entries carry that usn and the
// local author's row is set to it, so the first write after the erase
// uses that usn + 1, not + 2.
func (s *Store) EraseVersionHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginWrite(ctx)
	if err != nil {
		return fmt.Errorf("begin erase-version-history transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	authors, err := sqlitestore.ListAuthors(ctx, tx)
	if err != nil {
		return err
	}
	var eraseUSN uint64
	for _, a := range authors {
		if a.USN > eraseUSN {
			eraseUSN = a.USN
		}
	}
	newUSN := eraseUSN + 1

	if err := sqlitestore.DeleteAllTombstones(ctx, tx); err != nil {
		return err
	}

	if err := sqlitestore.RewriteEntriesToAuthor(ctx, tx, s.localAuthor.ID, newUSN); err != nil {
		return err
	}

	if err := sqlitestore.DeleteAuthorsExcept(ctx, tx, s.localAuthor.ID); err != nil {
		return err
	}

	s.localAuthor.USN = newUSN
	if err := sqlitestore.UpsertAuthor(ctx, tx, s.localAuthor); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit erase-version-history transaction: %w", err)
	}

	return nil
}
