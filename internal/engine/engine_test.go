package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crucible-db/crucible/internal/appversion"
	"github.com/crucible-db/crucible/internal/crucibleerr"
	"github.com/crucible-db/crucible/internal/record"
)

func testAppID() appversion.Expected {
	return appversion.Expected{ID: "test-app", Major: 1, Minor: 0}
}

func openTestStore(t *testing.T, name string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	s, err := Open(context.Background(), Options{Path: path, AppID: testAppID(), AuthorName: name})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "a.db")

	_, err := s.Write(ctx, "scope1", "k1", record.NewTextValue("hello"))
	require.NoError(t, err)

	versions, err := s.Read(ctx, "scope1", "k1")
	require.NoError(t, err)
	require.Len(t, versions, 1)

	text, err := versions.Text()
	require.NoError(t, err)
	require.Equal(t, "hello", text)
}

func TestWriteOverwriteBySameAuthorStaysSingleVersion(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "a.db")

	_, err := s.Write(ctx, "s", "k", record.NewTextValue("v1"))
	require.NoError(t, err)
	_, err = s.Write(ctx, "s", "k", record.NewTextValue("v2"))
	require.NoError(t, err)

	versions, err := s.Read(ctx, "s", "k")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	text, err := versions.Text()
	require.NoError(t, err)
	require.Equal(t, "v2", text)
}

func TestDeleteIsNullVersion(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "a.db")

	_, err := s.Write(ctx, "s", "k", record.NewTextValue("v1"))
	require.NoError(t, err)
	_, err = s.Delete(ctx, "s", "k")
	require.NoError(t, err)

	versions, err := s.Read(ctx, "s", "k")
	require.NoError(t, err)
	deleted, err := versions.IsDeleted()
	require.NoError(t, err)
	require.True(t, deleted)
}

func TestInvalidJSONRejected(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "a.db")

	_, err := s.Write(ctx, "s", "k", record.NewJSONValue("{not json"))
	require.ErrorIs(t, err, crucibleerr.ErrInvalidJSON)

	versions, err := s.Read(ctx, "s", "k")
	require.NoError(t, err)
	require.Empty(t, versions, "rejected write must not touch storage")
}

func TestScopeIsolation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "a.db")

	_, err := s.Write(ctx, "scope-a", "k", record.NewTextValue("in-a"))
	require.NoError(t, err)

	versions, err := s.Read(ctx, "scope-b", "k")
	require.NoError(t, err)
	require.Empty(t, versions)
}

func TestMergePullsRemoteWrites(t *testing.T) {
	ctx := context.Background()
	a := openTestStore(t, "a.db")
	b := openTestStore(t, "b.db")

	_, err := a.Write(ctx, "s", "k1", record.NewTextValue("from-a"))
	require.NoError(t, err)
	_, err = b.Write(ctx, "s", "k2", record.NewTextValue("from-b"))
	require.NoError(t, err)

	changed, err := a.Merge(ctx, b)
	require.NoError(t, err)
	require.Equal(t, []record.Key{{Scope: "s", Name: "k2"}}, changed)

	versions, err := a.Read(ctx, "s", "k2")
	require.NoError(t, err)
	text, err := versions.Text()
	require.NoError(t, err)
	require.Equal(t, "from-b", text)

	dominatesB, err := a.Dominates(ctx, b)
	require.NoError(t, err)
	require.True(t, dominatesB)
}

func TestMergeDryRunDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	a := openTestStore(t, "a.db")
	b := openTestStore(t, "b.db")

	_, err := b.Write(ctx, "s", "k", record.NewTextValue("from-b"))
	require.NoError(t, err)

	changed, err := a.MergeDryRun(ctx, b)
	require.NoError(t, err)
	require.Equal(t, []record.Key{{Scope: "s", Name: "k"}}, changed)

	versions, err := a.Read(ctx, "s", "k")
	require.NoError(t, err)
	require.Empty(t, versions, "dry run must not write anything")

	statsBefore, err := a.Statistics(ctx)
	require.NoError(t, err)
	require.Zero(t, statsBefore.EntryCount)
}

func TestMergeResolvesConcurrentWritesAsConflict(t *testing.T) {
	ctx := context.Background()
	a := openTestStore(t, "a.db")
	b := openTestStore(t, "b.db")

	_, err := a.Write(ctx, "s", "k", record.NewTextValue("a-value"))
	require.NoError(t, err)
	_, err = b.Write(ctx, "s", "k", record.NewTextValue("b-value"))
	require.NoError(t, err)

	_, err = a.Merge(ctx, b)
	require.NoError(t, err)

	versions, err := a.Read(ctx, "s", "k")
	require.NoError(t, err)
	require.Len(t, versions, 2, "two authors wrote the same slot: both survive as a conflict")

	_, err = versions.Text()
	require.ErrorIs(t, err, crucibleerr.ErrVersionConflict)
}

func TestMergeConflictResolvedByOverwriteThenReMerges(t *testing.T) {
	ctx := context.Background()
	a := openTestStore(t, "a.db")
	b := openTestStore(t, "b.db")

	_, err := a.Write(ctx, "s", "k", record.NewTextValue("a-value"))
	require.NoError(t, err)
	_, err = b.Write(ctx, "s", "k", record.NewTextValue("b-value"))
	require.NoError(t, err)
	_, err = a.Merge(ctx, b)
	require.NoError(t, err)

	// a resolves the conflict by writing again; this tombstones b's entry.
	_, err = a.Write(ctx, "s", "k", record.NewTextValue("resolved"))
	require.NoError(t, err)

	versions, err := a.Read(ctx, "s", "k")
	require.NoError(t, err)
	require.Len(t, versions, 1)

	_, err = b.Merge(ctx, a)
	require.NoError(t, err)
	bVersions, err := b.Read(ctx, "s", "k")
	require.NoError(t, err)
	text, err := bVersions.Text()
	require.NoError(t, err)
	require.Equal(t, "resolved", text)
}

func TestDeleteThenRemoteWriteResurrectsAsConflict(t *testing.T) {
	ctx := context.Background()
	a := openTestStore(t, "a.db")
	b := openTestStore(t, "b.db")

	_, err := a.Write(ctx, "s", "k", record.NewTextValue("v1"))
	require.NoError(t, err)
	_, err = b.Merge(ctx, a)
	require.NoError(t, err)

	_, err = a.Delete(ctx, "s", "k")
	require.NoError(t, err)

	// b, unaware of the delete, writes concurrently.
	_, err = b.Write(ctx, "s", "k", record.NewTextValue("b-still-alive"))
	require.NoError(t, err)

	_, err = a.Merge(ctx, b)
	require.NoError(t, err)

	versions, err := a.Read(ctx, "s", "k")
	require.NoError(t, err)
	require.Len(t, versions, 2)
}

func TestEraseVersionHistoryCollapsesToSingleAuthor(t *testing.T) {
	ctx := context.Background()
	a := openTestStore(t, "a.db")
	b := openTestStore(t, "b.db")

	_, err := a.Write(ctx, "s", "k1", record.NewTextValue("a1"))
	require.NoError(t, err)
	_, err = b.Write(ctx, "s", "k2", record.NewTextValue("b1"))
	require.NoError(t, err)
	_, err = a.Merge(ctx, b)
	require.NoError(t, err)

	stats, err := a.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.AuthorCount)

	require.NoError(t, a.EraseVersionHistory(ctx))

	stats, err = a.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.AuthorCount)
	require.Zero(t, stats.TombstoneCount)

	v1, err := a.Read(ctx, "s", "k1")
	require.NoError(t, err)
	require.Len(t, v1, 1)
	require.Equal(t, a.LocalAuthor().ID, v1[0].AuthorID)

	v2, err := a.Read(ctx, "s", "k2")
	require.NoError(t, err)
	require.Len(t, v2, 1)
	require.Equal(t, a.LocalAuthor().ID, v2[0].AuthorID)
}

func TestEraseVersionHistoryThenWriteUsesErasePlusOne(t *testing.T) {
	ctx := context.Background()
	a := openTestStore(t, "a.db")

	_, err := a.Write(ctx, "s", "k", record.NewTextValue("v1"))
	require.NoError(t, err)
	preEraseUSN := a.LocalAuthor().USN

	require.NoError(t, a.EraseVersionHistory(ctx))
	eraseUSN := a.LocalAuthor().USN
	require.Equal(t, preEraseUSN+1, eraseUSN)

	_, err = a.Write(ctx, "s", "k2", record.NewTextValue("v2"))
	require.NoError(t, err)
	require.Equal(t, eraseUSN+1, a.LocalAuthor().USN)
}

func TestOpenRejectsIncompatibleApplicationID(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.db")

	s, err := Open(ctx, Options{Path: path, AppID: appversion.Expected{ID: "app-one", Major: 1}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Options{Path: path, AppID: appversion.Expected{ID: "app-two", Major: 1}})
	require.ErrorIs(t, err, crucibleerr.ErrIncompatibleApplications)
}

func TestMergeRejectsSourceAheadOfExpected(t *testing.T) {
	ctx := context.Background()
	a := openTestStore(t, "a.db")

	bPath := filepath.Join(t.TempDir(), "b.db")
	b, err := Open(ctx, Options{Path: bPath, AppID: appversion.Expected{ID: "test-app", Major: 1, Minor: 9}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	_, err = a.Merge(ctx, b)
	require.ErrorIs(t, err, crucibleerr.ErrMergeSourceRequiresUpgrade)
}

func TestChangeObserverReceivesWriteNotification(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "a.db")

	events, cancel := s.ChangeObserver()
	defer cancel()

	_, err := s.Write(ctx, "s", "k", record.NewTextValue("v"))
	require.NoError(t, err)

	event := <-events
	require.Equal(t, []record.Key{{Scope: "s", Name: "k"}}, event.Keys)
}

func TestReadObserverYieldsSnapshotThenHotUpdates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "a.db")

	_, err := s.Write(ctx, "s", "k", record.NewTextValue("v1"))
	require.NoError(t, err)

	key := record.Key{Scope: "s", Name: "k"}
	events, cancel, err := s.ReadObserver(ctx, key, record.Key{Scope: "s", Name: "unwritten"})
	require.NoError(t, err)
	defer cancel()

	initial := <-events
	require.Equal(t, key, initial.Key)
	require.Len(t, initial.Result, 1)
	require.Equal(t, "v1", initial.Result[0].Value.Text)

	second := <-events
	require.Equal(t, record.Key{Scope: "s", Name: "unwritten"}, second.Key)
	require.Empty(t, second.Result)

	_, err = s.Write(ctx, "s", "k", record.NewTextValue("v2"))
	require.NoError(t, err)

	updated := <-events
	require.Equal(t, key, updated.Key)
	require.Len(t, updated.Result, 1)
	require.Equal(t, "v2", updated.Result[0].Value.Text)

	// A write to a key nobody subscribed to must not wake this observer.
	_, err = s.Write(ctx, "s", "zzz", record.NewTextValue("v3"))
	require.NoError(t, err)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event for a key this observer never subscribed to: %+v", ev)
	default:
	}

	// A write to the OTHER watched key re-yields that key's own matched set.
	_, err = s.Write(ctx, "s", "unwritten", record.NewTextValue("v4"))
	require.NoError(t, err)

	third := <-events
	require.Equal(t, record.Key{Scope: "s", Name: "unwritten"}, third.Key)
	require.Len(t, third.Result, 1)
	require.Equal(t, "v4", third.Result[0].Value.Text)
}

func TestBulkReadExplicitKeyList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "a.db")

	_, err := s.WriteBulk(ctx, []WriteItem{
		{Scope: "s", Key: "k1", Value: record.NewTextValue("v1")},
		{Scope: "s", Key: "k2", Value: record.NewTextValue("v2")},
	})
	require.NoError(t, err)

	results, err := s.BulkRead(ctx, BulkReadQuery{KeyList: []string{"k1", "k2", "missing"}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	text, err := results[record.Key{Scope: "s", Name: "k1"}].Text()
	require.NoError(t, err)
	require.Equal(t, "v1", text)
}

func TestConsistencyCheckPasses(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, "a.db")

	_, err := s.Write(ctx, "s", "k", record.NewTextValue("v"))
	require.NoError(t, err)
	require.NoError(t, s.ConsistencyCheck(ctx))
}
