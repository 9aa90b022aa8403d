package engine

import (
	"context"

	"github.com/crucible-db/crucible/internal/sqlitestore"
)

// LocalSetting returns a per-file setting stored outside the CRDT data
// model — it is never merged, replicated, or versioned, and is not
// visible to Read, BulkRead, or SearchText.
func (s *Store) LocalSetting(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginRead(ctx)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = tx.Rollback() }()

	return sqlitestore.GetConfig(ctx, tx, key)
}

// SetLocalSetting stores a per-file setting outside the CRDT data model.
func (s *Store) SetLocalSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := sqlitestore.SetConfig(ctx, tx, key, value); err != nil {
		return err
	}
	return tx.Commit()
}

// LocalSettings returns every per-file setting.
func (s *Store) LocalSettings(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginRead(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	return sqlitestore.GetAllConfig(ctx, tx)
}
