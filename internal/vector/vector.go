// Package vector implements the per-author update-sequence-number version
// vector described in spec §4.2: dominance, need-lists, and union.
package vector

import "github.com/google/uuid"

// Vector maps an author id to the largest usn this replica has observed
// from that author. Author equality is by id only.
type Vector map[uuid.UUID]uint64

// New returns an empty Vector.
func New() Vector { return make(Vector) }

// Get returns the usn recorded for author, or 0 if it isn't present.
func (v Vector) Get(author uuid.UUID) uint64 { return v[author] }

// Set records usn for author, overwriting whatever was there.
func (v Vector) Set(author uuid.UUID, usn uint64) { v[author] = usn }

// Clone returns an independent copy of v.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for a, u := range v {
		out[a] = u
	}
	return out
}

// Dominates reports whether v dominates other: for every (author, usn) in
// other, v has (author, usn') with usn' >= usn. A vector dominates itself.
func (v Vector) Dominates(other Vector) bool {
	for author, usn := range other {
		if v[author] < usn {
			return false
		}
	}
	return true
}

// NeedEntry is one element of a need-list: an author whose usn in the
// remote vector exceeds what the local vector has recorded (or that the
// local vector doesn't have at all).
type NeedEntry struct {
	Author uuid.UUID
	// LocalUSN is the usn this vector already has for Author. HasLocal is
	// false when Author is entirely absent locally (spec's "none").
	LocalUSN uint64
	HasLocal bool
}

// NeedList returns, for every author in other whose usn there exceeds
// v[author] (or who is entirely missing from v), the author and whatever
// usn v already has for it. Used by merge to select which records to pull
// from a remote replica.
func (v Vector) NeedList(other Vector) []NeedEntry {
	var needs []NeedEntry
	for author, remoteUSN := range other {
		localUSN, ok := v[author]
		if !ok {
			needs = append(needs, NeedEntry{Author: author, HasLocal: false})
			continue
		}
		if remoteUSN > localUSN {
			needs = append(needs, NeedEntry{Author: author, LocalUSN: localUSN, HasLocal: true})
		}
	}
	return needs
}

// Union destructively merges other into v: v[a] := max(v[a], other[a]) for
// every author a in other.
func (v Vector) Union(other Vector) {
	for author, usn := range other {
		if usn > v[author] {
			v[author] = usn
		}
	}
}

// Equal reports whether v and other record the same usn for every author
// either one mentions.
func Equal(a, b Vector) bool {
	if len(a) != len(b) {
		return false
	}
	for author, usn := range a {
		if b[author] != usn {
			return false
		}
	}
	return true
}
