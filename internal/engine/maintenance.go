package engine

import (
	"context"
	"fmt"

	"github.com/crucible-db/crucible/internal/sqlitestore"
)

// Dominates reports whether s has observed everything other has: every
// author's usn in s is at least as large as in other. A Store that
// dominates another needs nothing from it in a merge.
func (s *Store) Dominates(ctx context.Context, other *Store) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	tx, err := s.db.BeginRead(ctx)
	if err != nil {
		return false, fmt.Errorf("begin dominates transaction (local): %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	localVector, _, err := buildVector(ctx, tx)
	if err != nil {
		return false, err
	}

	otx, err := other.db.BeginRead(ctx)
	if err != nil {
		return false, fmt.Errorf("begin dominates transaction (other): %w", err)
	}
	defer func() { _ = otx.Rollback() }()
	otherVector, _, err := buildVector(ctx, otx)
	if err != nil {
		return false, err
	}

	return localVector.Dominates(otherVector), nil
}

// ConsistencyCheck verifies the author-table invariant described in spec
// §8 without mutating anything: every author's recorded usn must be at
// least the largest usn among its own live entries.
func (s *Store) ConsistencyCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkConsistency(ctx)
}

// Backup produces a consistent copy of the replica at destPath while
// readers and writers keep operating against the original file.
func (s *Store) Backup(ctx context.Context, destPath string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Backup(ctx, destPath)
}
