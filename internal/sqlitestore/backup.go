package sqlitestore

import (
	"context"
	"fmt"
)

// Backup produces a byte-for-byte-consistent copy of db at destPath using
// SQLite's own VACUUM INTO, which is atomic with respect to concurrent
// readers/writers on the source and portable across any database/sql
// SQLite driver (unlike a driver-specific low-level backup API). The
// destination inherits whatever author rows the source had; Backup does
// not touch author identity.
func (db *DB) Backup(ctx context.Context, destPath string) error {
	_, err := db.sql.ExecContext(ctx, `VACUUM INTO ?`, destPath)
	if err != nil {
		return fmt.Errorf("backup database to %q: %w", destPath, err)
	}
	return nil
}
