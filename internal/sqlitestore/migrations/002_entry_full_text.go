package migrations

import (
	"context"
	"database/sql"
)

// EntryFullText creates an FTS5 virtual table mirroring entry.text and
// wires triggers so it can never drift from the base table (spec
// invariant: "the full-text index is in lockstep with the text payloads
// of entries"). A deleted or retyped entry removes its row from the
// index; a new or updated text entry (re)inserts it.
func EntryFullText(ctx context.Context, db *sql.DB) error {
	return exec(ctx, db,
		`CREATE VIRTUAL TABLE entry_full_text USING fts5(
			scope UNINDEXED,
			key UNINDEXED,
			text,
			tokenize = 'porter unicode61'
		)`,
		`CREATE TRIGGER trg_entry_ft_ai AFTER INSERT ON entry
		 WHEN new.type = 1
		 BEGIN
			INSERT INTO entry_full_text (rowid, scope, key, text)
			VALUES (new.rowid, new.scope, new.key, new.text);
		 END`,
		`CREATE TRIGGER trg_entry_ft_ad AFTER DELETE ON entry
		 WHEN old.type = 1
		 BEGIN
			DELETE FROM entry_full_text WHERE rowid = old.rowid;
		 END`,
		`CREATE TRIGGER trg_entry_ft_au AFTER UPDATE ON entry
		 BEGIN
			DELETE FROM entry_full_text WHERE rowid = old.rowid;
			INSERT INTO entry_full_text (rowid, scope, key, text)
			SELECT new.rowid, new.scope, new.key, new.text
			WHERE new.type = 1;
		 END`,
	)
}
