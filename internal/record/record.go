// Package record defines the domain types shared by the storage,
// version-vector, and reconciliation-engine layers: entries, authors,
// tombstones, and the application identifier of spec §3.
package record

import (
	"time"

	"github.com/google/uuid"
)

// ValueType selects which payload slot of a Value is populated.
type ValueType int

const (
	// TypeNull marks a logical deletion of a (scope, key) from an author.
	TypeNull ValueType = iota
	TypeText
	TypeJSON
	TypeBlob
)

func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeText:
		return "text"
	case TypeJSON:
		return "json"
	case TypeBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// Value is the tagged payload carried by an Entry.
type Value struct {
	Type ValueType

	Text string // populated when Type == TypeText
	JSON string // populated when Type == TypeJSON, syntactically valid JSON

	BlobMIME string // populated when Type == TypeBlob
	Blob     []byte // populated when Type == TypeBlob
}

// NewTextValue builds a text-typed Value.
func NewTextValue(text string) Value { return Value{Type: TypeText, Text: text} }

// NewJSONValue builds a json-typed Value. It does not validate the
// payload; the engine's write path does, rejecting invalid JSON with
// ErrInvalidJSON before anything is persisted.
func NewJSONValue(json string) Value { return Value{Type: TypeJSON, JSON: json} }

// NewBlobValue builds a blob-typed Value.
func NewBlobValue(mime string, data []byte) Value {
	return Value{Type: TypeBlob, BlobMIME: mime, Blob: data}
}

// NewNullValue builds a null-typed (deletion marker) Value.
func NewNullValue() Value { return Value{Type: TypeNull} }

// Entry is a tuple (scope, key, author_id, usn, timestamp, type, payload).
// (Scope, Key, AuthorID) is the primary identity: the multi-value-register
// slot for that author.
type Entry struct {
	Scope     string
	Key       string
	AuthorID  uuid.UUID
	USN       uint64
	Timestamp time.Time
	Value     Value
}

// IsDeletion reports whether this entry is a null-typed deletion marker.
func (e Entry) IsDeletion() bool { return e.Value.Type == TypeNull }

// Author is a tuple (id, name, usn, timestamp): a stable identifier of a
// write session, the largest usn it has produced, and when it was last
// touched. The set of author rows forms a replica's version vector.
type Author struct {
	ID        uuid.UUID
	Name      string
	USN       uint64
	Timestamp time.Time
}

// Tombstone is a promise that the entry identified by (Scope, Key,
// AuthorID, USN) has been superseded by a write from (DeletingAuthorID,
// DeletingUSN). The deleting fields are not part of any primary key:
// multiple different deleters may each witness the same prior entry.
type Tombstone struct {
	Scope            string
	Key              string
	AuthorID         uuid.UUID
	USN              uint64
	DeletingAuthorID uuid.UUID
	DeletingUSN      uint64
}

// AppIdentifier is the file format stamp: at most one row exists in a
// database at any time.
type AppIdentifier struct {
	ID          string
	Major       int
	Minor       int
	Description string
}

// Version is one element of a read result: a single author's current
// value for a (scope, key), detached from the store (an owned snapshot).
type Version struct {
	AuthorID  uuid.UUID
	Timestamp time.Time
	Value     Value
}

// Key identifies a (scope, key) pair in the key space. Scope partitions
// the key space: the same Name in two different Scopes is two unrelated
// entries.
type Key struct {
	Scope string
	Name  string
}
