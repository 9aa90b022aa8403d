package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crucible-db/crucible/internal/record"
)

// GetAppIdentifier returns the stored application identifier, or
// ok=false if the file has never been stamped.
func GetAppIdentifier(ctx context.Context, tx *sql.Tx) (record.AppIdentifier, bool, error) {
	var id record.AppIdentifier
	row := tx.QueryRowContext(ctx, `SELECT id, major, minor, description FROM application_identifier LIMIT 1`)
	if err := row.Scan(&id.ID, &id.Major, &id.Minor, &id.Description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.AppIdentifier{}, false, nil
		}
		return record.AppIdentifier{}, false, fmt.Errorf("get application identifier: %w", err)
	}
	return id, true, nil
}

// StampAppIdentifier replaces whatever application identifier is stored
// (there is at most one row) with id.
func StampAppIdentifier(ctx context.Context, tx *sql.Tx, id record.AppIdentifier) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM application_identifier`); err != nil {
		return fmt.Errorf("clear application identifier: %w", err)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO application_identifier (id, major, minor, description) VALUES (?, ?, ?, ?)
	`, id.ID, id.Major, id.Minor, id.Description)
	if err != nil {
		return fmt.Errorf("stamp application identifier: %w", err)
	}
	return nil
}
