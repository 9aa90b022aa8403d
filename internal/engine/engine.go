// Package engine implements the reconciliation engine of spec §4.3: the
// write path, merge protocol, application-version gate integration, and
// the query surface of spec §4.5. It is the only package that understands
// CRDT semantics; internal/sqlitestore below it is a plain relational
// store, and internal/vector is pure math.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crucible-db/crucible/internal/appversion"
	"github.com/crucible-db/crucible/internal/record"
	"github.com/crucible-db/crucible/internal/sqlitestore"
)

// Store is one open replica: a SQLite file plus the local session's
// cached author row. A Store is safe for concurrent use by multiple
// goroutines; writers serialize on an internal lock while readers
// (including another Store's Merge pulling from this one) proceed
// concurrently.
type Store struct {
	db  *sqlitestore.DB
	log *slog.Logger

	mu sync.RWMutex // guards localAuthor and serializes writers

	localAuthor record.Author
	expected    appversion.Expected

	obsMu          sync.Mutex
	changeObservers map[int]chan ChangeEvent
	readObservers   map[int]*readObserver
	nextObserverID  int
}

// Options configures Open.
type Options struct {
	// Path is the SQLite file path (or an in-memory DSN for tests).
	Path string

	// AppID is the application identifier this caller expects the file
	// to carry. See internal/appversion.
	AppID appversion.Expected

	// AuthorName is a human-readable hint stored on the fresh author row
	// created for this open. Purely informational.
	AuthorName string

	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Open opens (creating if necessary) the database at opts.Path, runs
// schema migrations, enforces the application-version gate, and creates
// a brand-new author record for this session (per spec §9's per-open
// author identity model: each open gets a fresh id rather than reusing a
// stable per-device identifier).
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	db, err := sqlitestore.Open(ctx, sqlitestore.Options{Path: opts.Path, Logger: opts.Logger})
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:              db,
		log:             opts.Logger,
		expected:        opts.AppID,
		changeObservers: make(map[int]chan ChangeEvent),
		readObservers:   make(map[int]*readObserver),
	}

	if err := s.openGateAndCreateAuthor(ctx, opts.AuthorName); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) openGateAndCreateAuthor(ctx context.Context, authorName string) error {
	tx, err := s.db.BeginWrite(ctx)
	if err != nil {
		return fmt.Errorf("begin open transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored, ok, err := sqlitestore.GetAppIdentifier(ctx, tx)
	if err != nil {
		return err
	}
	var storedPtr *record.AppIdentifier
	if ok {
		storedPtr = &stored
	}

	toStamp, needsStamp, err := appversion.CheckOpen(ctx, tx, storedPtr, s.expected)
	if err != nil {
		return err
	}
	if needsStamp {
		if err := sqlitestore.StampAppIdentifier(ctx, tx, toStamp); err != nil {
			return err
		}
	}

	author := record.Author{ID: uuid.New(), Name: authorName, USN: 0, Timestamp: time.Now().UTC()}
	if err := sqlitestore.UpsertAuthor(ctx, tx, author); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit open transaction: %w", err)
	}

	s.mu.Lock()
	s.localAuthor = author
	s.mu.Unlock()
	return nil
}

// Close releases the underlying database handle and any observer
// channels.
func (s *Store) Close() error {
	s.obsMu.Lock()
	for id, ch := range s.changeObservers {
		close(ch)
		delete(s.changeObservers, id)
	}
	for id, ro := range s.readObservers {
		close(ro.events)
		delete(s.readObservers, id)
	}
	s.obsMu.Unlock()
	return s.db.Close()
}

// LocalAuthor returns the current session's author record (id, name, and
// the largest usn it has produced so far).
func (s *Store) LocalAuthor() record.Author {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localAuthor
}
