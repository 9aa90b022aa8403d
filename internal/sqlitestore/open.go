// Package sqlitestore is the storage-schema-and-records component of
// spec §4.1: it owns the physical SQLite layout, schema migrations, and
// the low-level CRUD the reconciliation engine builds on. It knows
// nothing about CRDT semantics — that belongs to internal/engine.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	// Registers the "sqlite3" database/sql driver with a pure-Go, WASM
	// backed SQLite engine — no cgo, so the resulting binary and the
	// database file it produces are both as portable as Go itself.
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps a *sql.DB with the pragmas and retry policy this package
// expects every caller to get for free.
type DB struct {
	sql *sql.DB
	log *slog.Logger
}

// Options configures Open.
type Options struct {
	// Path is the database file path, or ":memory:"/"file::memory:?..."
	// for an in-process database.
	Path string

	// BusyTimeout bounds how long SQLite itself will wait on a lock
	// before returning SQLITE_BUSY. Defaults to 5s.
	BusyTimeout time.Duration

	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Open opens (creating if necessary) a SQLite database at opts.Path,
// applies pragmas, and runs every schema migration not yet recorded in
// the file.
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.BusyTimeout == 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	sqlDB, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", opts.Path, err)
	}

	// engine.Store's mutex is what actually serializes writers, not this
	// pool — a single connection here would also serialize readers behind
	// it, defeating WAL's concurrent-reader guarantee. A small pool lets
	// several reader transactions run against distinct connections at once
	// while the one in-flight writer holds its reserved lock.
	sqlDB.SetMaxOpenConns(8)

	db := &DB{sql: sqlDB, log: opts.Logger}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.ExecContext(ctx, p); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if err := runMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// Close releases the underlying database handle.
func (db *DB) Close() error { return db.sql.Close() }

// Raw returns the underlying *sql.DB for callers that need to issue
// statements this package doesn't wrap.
func (db *DB) Raw() *sql.DB { return db.sql }

// retryableBackoff bounds retries of transient SQLITE_BUSY errors to a
// handful of short attempts; it never retries a non-transient error.
func retryableBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Second
	return bo
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sub := range []string{"database is locked", "SQLITE_BUSY", "database table is locked"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

// withBusyRetry retries fn while it fails with a transient SQLITE_BUSY
// condition, using a bounded exponential backoff.
func withBusyRetry(ctx context.Context, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !isBusyErr(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(retryableBackoff(), ctx))
}

// BeginWrite starts a write transaction. The single-writer discipline is
// enforced at two layers: in-process, engine.Store serializes writers with
// a mutex before ever calling BeginWrite; across processes, busy_timeout
// plus withBusyRetry absorb the brief contention window while one process
// holds SQLite's reserved lock.
func (db *DB) BeginWrite(ctx context.Context) (tx *sql.Tx, err error) {
	err = withBusyRetry(ctx, func() error {
		tx, err = db.sql.BeginTx(ctx, nil)
		return err
	})
	return tx, err
}

// BeginRead starts a read-only transaction.
func (db *DB) BeginRead(ctx context.Context) (*sql.Tx, error) {
	return db.sql.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
}
