// Package migrations holds the ordered schema steps applied by
// sqlitestore.Open. Each step is self-contained SQL run once against a
// freshly opened database; sqlitestore tracks which steps have already
// been applied in a schema_migrations ledger table.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// Step is a single named migration. Func is not safe to re-run (its
// CREATE statements fail on objects that already exist); sqlitestore
// invokes it once per name per database and records that in the ledger.
type Step struct {
	Name string
	Func func(ctx context.Context, db *sql.DB) error
}

// All is the ordered list of every migration this build knows about.
// Never reorder or remove an entry: the ledger in an existing database
// refers to these entries by name, and an unrecognized ledger entry
// causes sqlitestore.Open to fail with crucibleerr.ErrSchemaTooNew.
var All = []Step{
	{Name: "001_initial_schema", Func: InitialSchema},
	{Name: "002_entry_full_text", Func: EntryFullText},
	{Name: "003_config_table", Func: ConfigTable},
}

func exec(ctx context.Context, db *sql.DB, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration statement: %w", err)
		}
	}
	return nil
}
