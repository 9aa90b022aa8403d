package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/crucible-db/crucible/internal/record"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(context.Background(), Options{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenRunsMigrationsIdempotently(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening an already-migrated file must not re-run or fail any step.
	db2, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	require.NoError(t, db2.Close())
}

func TestAuthorUpsertAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginWrite(ctx)
	require.NoError(t, err)

	a := record.Author{ID: uuid.New(), Name: "alice", USN: 3, Timestamp: time.Now().UTC()}
	require.NoError(t, UpsertAuthor(ctx, tx, a))
	require.NoError(t, tx.Commit())

	rtx, err := db.BeginRead(ctx)
	require.NoError(t, err)
	defer func() { _ = rtx.Rollback() }()

	got, ok, err := GetAuthor(ctx, rtx, a.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a.Name, got.Name)
	require.Equal(t, a.USN, got.USN)
}

func TestEntryUpsertOverwritesSameSlot(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	author := uuid.New()

	tx, err := db.BeginWrite(ctx)
	require.NoError(t, err)
	e := record.Entry{Scope: "s", Key: "k", AuthorID: author, USN: 1, Timestamp: time.Now().UTC(), Value: record.NewTextValue("v1")}
	require.NoError(t, UpsertEntry(ctx, tx, e))
	e.USN = 2
	e.Value = record.NewTextValue("v2")
	require.NoError(t, UpsertEntry(ctx, tx, e))
	require.NoError(t, tx.Commit())

	rtx, err := db.BeginRead(ctx)
	require.NoError(t, err)
	defer func() { _ = rtx.Rollback() }()

	entries, err := EntriesForKey(ctx, rtx, "s", "k")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "v2", entries[0].Value.Text)
	require.Equal(t, uint64(2), entries[0].USN)
}

func TestListKeysExcludesNullTypedEntries(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	author := uuid.New()

	tx, err := db.BeginWrite(ctx)
	require.NoError(t, err)
	require.NoError(t, UpsertEntry(ctx, tx, record.Entry{Scope: "s", Key: "live", AuthorID: author, USN: 1, Timestamp: time.Now().UTC(), Value: record.NewTextValue("v")}))
	require.NoError(t, UpsertEntry(ctx, tx, record.Entry{Scope: "s", Key: "dead", AuthorID: author, USN: 2, Timestamp: time.Now().UTC(), Value: record.NewNullValue()}))
	require.NoError(t, tx.Commit())

	rtx, err := db.BeginRead(ctx)
	require.NoError(t, err)
	defer func() { _ = rtx.Rollback() }()

	keys, err := ListKeys(ctx, rtx, KeyFilter{})
	require.NoError(t, err)
	require.Equal(t, []record.Key{{Scope: "s", Name: "live"}}, keys)
}

func TestSearchTextMatchesIndexedEntries(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	author := uuid.New()

	tx, err := db.BeginWrite(ctx)
	require.NoError(t, err)
	require.NoError(t, UpsertEntry(ctx, tx, record.Entry{
		Scope: "notes", Key: "n1", AuthorID: author, USN: 1, Timestamp: time.Now().UTC(),
		Value: record.NewTextValue("the quick brown fox"),
	}))
	require.NoError(t, UpsertEntry(ctx, tx, record.Entry{
		Scope: "notes", Key: "n2", AuthorID: author, USN: 2, Timestamp: time.Now().UTC(),
		Value: record.NewTextValue("lazy dog"),
	}))
	require.NoError(t, tx.Commit())

	rtx, err := db.BeginRead(ctx)
	require.NoError(t, err)
	defer func() { _ = rtx.Rollback() }()

	hits, err := SearchText(ctx, rtx, "fox")
	require.NoError(t, err)
	require.Equal(t, []record.Key{{Scope: "notes", Name: "n1"}}, hits)
}

func TestRewriteEntriesToAuthorCollapsesSlots(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	author1, author2, newAuthor := uuid.New(), uuid.New(), uuid.New()

	tx, err := db.BeginWrite(ctx)
	require.NoError(t, err)
	require.NoError(t, UpsertEntry(ctx, tx, record.Entry{Scope: "s", Key: "k", AuthorID: author1, USN: 1, Timestamp: time.Now().UTC(), Value: record.NewTextValue("v1")}))
	require.NoError(t, UpsertEntry(ctx, tx, record.Entry{Scope: "s", Key: "k", AuthorID: author2, USN: 2, Timestamp: time.Now().UTC(), Value: record.NewTextValue("v2")}))
	require.NoError(t, tx.Commit())

	tx2, err := db.BeginWrite(ctx)
	require.NoError(t, err)
	require.NoError(t, RewriteEntriesToAuthor(ctx, tx2, newAuthor, 5))
	require.NoError(t, tx2.Commit())

	rtx, err := db.BeginRead(ctx)
	require.NoError(t, err)
	defer func() { _ = rtx.Rollback() }()

	entries, err := EntriesForKey(ctx, rtx, "s", "k")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, newAuthor, entries[0].AuthorID)
	require.Equal(t, uint64(5), entries[0].USN)
}

func TestBackupProducesIndependentFile(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	author := uuid.New()

	tx, err := db.BeginWrite(ctx)
	require.NoError(t, err)
	require.NoError(t, UpsertEntry(ctx, tx, record.Entry{Scope: "s", Key: "k", AuthorID: author, USN: 1, Timestamp: time.Now().UTC(), Value: record.NewTextValue("v")}))
	require.NoError(t, tx.Commit())

	destPath := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, db.Backup(ctx, destPath))

	restored, err := Open(ctx, Options{Path: destPath})
	require.NoError(t, err)
	defer func() { _ = restored.Close() }()

	rtx, err := restored.BeginRead(ctx)
	require.NoError(t, err)
	defer func() { _ = rtx.Rollback() }()

	entries, err := EntriesForKey(ctx, rtx, "s", "k")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestAppIdentifierStampAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginWrite(ctx)
	require.NoError(t, err)

	_, ok, err := GetAppIdentifier(ctx, tx)
	require.NoError(t, err)
	require.False(t, ok)

	id := record.AppIdentifier{ID: "app", Major: 1, Minor: 2, Description: "test"}
	require.NoError(t, StampAppIdentifier(ctx, tx, id))

	got, ok, err := GetAppIdentifier(ctx, tx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id, got)

	require.NoError(t, StampAppIdentifier(ctx, tx, record.AppIdentifier{ID: "app", Major: 2, Minor: 0}))
	got, ok, err = GetAppIdentifier(ctx, tx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, got.Major)
	require.NoError(t, tx.Commit())
}

func TestConfigSetGetDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginWrite(ctx)
	require.NoError(t, err)

	_, ok, err := GetConfig(ctx, tx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, SetConfig(ctx, tx, "nickname", "primary"))
	value, ok, err := GetConfig(ctx, tx, "nickname")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "primary", value)

	all, err := GetAllConfig(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"nickname": "primary"}, all)

	require.NoError(t, DeleteConfig(ctx, tx, "nickname"))
	_, ok, err = GetConfig(ctx, tx, "nickname")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, tx.Commit())
}
