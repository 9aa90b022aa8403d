package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/crucible-db/crucible/internal/record"
	"github.com/crucible-db/crucible/internal/sqlitestore"
)

// ChangeEvent is delivered to a ChangeObserver after a write or merge
// commits: the set of (scope, key) pairs whose multi-value register
// changed. ChangeObserver is the "cold" observation path: subscribers
// that fall behind have events dropped rather than blocking writers.
type ChangeEvent struct {
	Keys []record.Key
	At   time.Time
}

// ReadEvent is delivered to a ReadObserver once at subscription time (the
// current matched set) and again every time a committed write or merge
// touches one of the keys it watches. ReadObserver is the "hot" path: a
// subscriber never needs to call Read itself to stay current.
type ReadEvent struct {
	Key    record.Key
	Result record.VersionList
}

type readObserver struct {
	keys   map[record.Key]bool
	events chan ReadEvent
}

const observerBufferSize = 64

// ChangeObserver subscribes to every committed write and merge. The
// returned function unsubscribes and closes the channel.
func (s *Store) ChangeObserver() (<-chan ChangeEvent, func()) {
	ch := make(chan ChangeEvent, observerBufferSize)

	s.obsMu.Lock()
	id := s.nextObserverID
	s.nextObserverID++
	s.changeObservers[id] = ch
	s.obsMu.Unlock()

	cancel := func() {
		s.obsMu.Lock()
		if existing, ok := s.changeObservers[id]; ok {
			delete(s.changeObservers, id)
			close(existing)
		}
		s.obsMu.Unlock()
	}
	return ch, cancel
}

// ReadObserver subscribes to keys: the subscriber immediately receives
// the current matched set for each key, then receives a fresh matched set
// for a key every time a committed write or merge touches it. The
// returned function unsubscribes and closes the channel.
func (s *Store) ReadObserver(ctx context.Context, keys ...record.Key) (<-chan ReadEvent, func(), error) {
	watch := make(map[record.Key]bool, len(keys))
	for _, k := range keys {
		watch[k] = true
	}
	ro := &readObserver{keys: watch, events: make(chan ReadEvent, observerBufferSize)}

	s.obsMu.Lock()
	id := s.nextObserverID
	s.nextObserverID++
	s.readObservers[id] = ro
	s.obsMu.Unlock()

	cancel := func() {
		s.obsMu.Lock()
		if existing, ok := s.readObservers[id]; ok {
			delete(s.readObservers, id)
			close(existing.events)
		}
		s.obsMu.Unlock()
	}

	for _, k := range keys {
		versions, err := s.readSnapshot(ctx, k)
		if err != nil {
			cancel()
			return nil, nil, err
		}
		select {
		case ro.events <- ReadEvent{Key: k, Result: versions}:
		default:
			s.log.Warn("dropping initial read-observer snapshot for slow subscriber", "scope", k.Scope, "key", k.Name)
		}
	}

	return ro.events, cancel, nil
}

// readSnapshot reads the current matched set for key, independent of the
// public Read API so ReadObserver's subscribe-time and post-commit
// snapshots never depend on a caller actually calling Read. It takes no
// Store lock: notifyChange calls it while a writer still holds s.mu.
func (s *Store) readSnapshot(ctx context.Context, key record.Key) (record.VersionList, error) {
	tx, err := s.db.BeginRead(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin read-observer snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	entries, err := sqlitestore.EntriesForKey(ctx, tx, key.Scope, key.Name)
	if err != nil {
		return nil, err
	}
	versions := make(record.VersionList, len(entries))
	for i, e := range entries {
		versions[i] = record.Version{AuthorID: e.AuthorID, Timestamp: e.Timestamp, Value: e.Value}
	}
	return versions, nil
}

// notifyChange runs after every committed write or merge: it fans the
// changed keys out to the cold ChangeObserver subscribers, then re-reads
// and re-yields the full matched set to every hot ReadObserver watching
// one of those keys.
func (s *Store) notifyChange(ctx context.Context, keys []record.Key) {
	if len(keys) == 0 {
		return
	}

	event := ChangeEvent{Keys: keys, At: time.Now().UTC()}
	s.obsMu.Lock()
	for _, ch := range s.changeObservers {
		select {
		case ch <- event:
		default:
			s.log.Warn("dropping change event for slow subscriber")
		}
	}
	s.obsMu.Unlock()

	s.refreshReadObservers(ctx, keys)
}

// refreshReadObservers re-reads and re-dispatches the matched set for
// every key in keys that at least one ReadObserver is currently watching.
func (s *Store) refreshReadObservers(ctx context.Context, keys []record.Key) {
	s.obsMu.Lock()
	watched := make(map[record.Key]bool)
	for _, ro := range s.readObservers {
		for _, k := range keys {
			if ro.keys[k] {
				watched[k] = true
			}
		}
	}
	s.obsMu.Unlock()

	for k := range watched {
		versions, err := s.readSnapshot(ctx, k)
		if err != nil {
			s.log.Warn("read observer refresh failed", "scope", k.Scope, "key", k.Name, "error", err)
			continue
		}
		s.dispatchReadEvent(k, versions)
	}
}

func (s *Store) dispatchReadEvent(key record.Key, result record.VersionList) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for _, ro := range s.readObservers {
		if !ro.keys[key] {
			continue
		}
		select {
		case ro.events <- ReadEvent{Key: key, Result: result}:
		default:
			s.log.Warn("dropping read event for slow subscriber", "scope", key.Scope, "key", key.Name)
		}
	}
}
