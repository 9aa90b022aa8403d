package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// runCLI executes rootCmd with args and returns whatever it wrote to
// stdout. Each call is a fresh cobra invocation against the package-level
// command tree, the way a real process runs the binary once per command.
func runCLI(t *testing.T, args ...string) string {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	origStdout := os.Stdout
	os.Stdout = w

	// Flag-bound package variables keep their values across Execute calls;
	// reset them so each call starts from the flag defaults.
	dbPath, scopeFlag, jsonOutput = "", "", false
	keyPrefixFlag, dryRunFlag = "", false
	putJSONFlag, putMIMEFlag = false, ""

	rootCmd.SetArgs(args)
	runErr := rootCmd.Execute()

	require.NoError(t, w.Close())
	os.Stdout = origStdout

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	require.NoError(t, runErr, "output so far: %s", buf.String())
	return buf.String()
}

func testDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "smoke.db")
}

func TestCLIPutGet(t *testing.T) {
	db := testDBPath(t)
	runCLI(t, "--db", db, "put", "hello", "world")
	out := runCLI(t, "--db", db, "get", "hello")
	require.Contains(t, out, "world")
}

func TestCLIPutJSONValue(t *testing.T) {
	db := testDBPath(t)
	runCLI(t, "--db", db, "put", "--json-value", "cfg", `{"a":1}`)
	out := runCLI(t, "--db", db, "get", "cfg")
	require.Contains(t, out, "\"a\": 1")
}

func TestCLIList(t *testing.T) {
	db := testDBPath(t)
	runCLI(t, "--db", db, "put", "k1", "v1")
	runCLI(t, "--db", db, "put", "k2", "v2")
	out := runCLI(t, "--db", db, "list")
	require.Contains(t, out, "k1")
	require.Contains(t, out, "k2")
}

func TestCLIListPrefix(t *testing.T) {
	db := testDBPath(t)
	runCLI(t, "--db", db, "put", "alpha-1", "v")
	runCLI(t, "--db", db, "put", "beta-1", "v")
	out := runCLI(t, "--db", db, "list", "--prefix", "alpha")
	require.Contains(t, out, "alpha-1")
	require.NotContains(t, out, "beta-1")
}

func TestCLIDelete(t *testing.T) {
	db := testDBPath(t)
	runCLI(t, "--db", db, "put", "k", "v")
	runCLI(t, "--db", db, "delete", "k")
	out := runCLI(t, "--db", db, "get", "k")
	require.Contains(t, out, "type=null")
	require.Contains(t, out, "DELETED")
}

func TestCLISearch(t *testing.T) {
	db := testDBPath(t)
	runCLI(t, "--db", db, "put", "note", "the quick brown fox")
	out := runCLI(t, "--db", db, "search", "fox")
	require.Contains(t, out, "note")
}

func TestCLIStats(t *testing.T) {
	db := testDBPath(t)
	runCLI(t, "--db", db, "put", "k", "v")
	out := runCLI(t, "--db", db, "--json", "stats")
	require.Contains(t, out, `"EntryCount"`)
}

func TestCLIConfigSetGetList(t *testing.T) {
	db := testDBPath(t)
	runCLI(t, "--db", db, "config", "set", "nickname", "primary")
	out := runCLI(t, "--db", db, "config", "get", "nickname")
	require.Contains(t, out, "primary")

	out = runCLI(t, "--db", db, "config", "list")
	require.Contains(t, out, "nickname=primary")
}

func TestCLIEraseVersionHistory(t *testing.T) {
	db := testDBPath(t)
	runCLI(t, "--db", db, "put", "k", "v")
	out := runCLI(t, "--db", db, "erase-version-history")
	require.Contains(t, out, "erased")
}

func TestCLIMergeDryRun(t *testing.T) {
	dbA := testDBPath(t)
	dbB := testDBPath(t)
	runCLI(t, "--db", dbB, "put", "remote-key", "remote-value")

	out := runCLI(t, "--db", dbA, "merge", "--dry-run", dbB)
	require.Contains(t, out, "remote-key")
	require.Contains(t, out, "would change")

	// a dry run must not have actually written anything.
	out = runCLI(t, "--db", dbA, "list")
	require.NotContains(t, out, "remote-key")
}

func TestCLIMerge(t *testing.T) {
	dbA := testDBPath(t)
	dbB := testDBPath(t)
	runCLI(t, "--db", dbB, "put", "remote-key", "remote-value")

	runCLI(t, "--db", dbA, "merge", dbB)
	out := runCLI(t, "--db", dbA, "get", "remote-key")
	require.Contains(t, out, "remote-value")
}
