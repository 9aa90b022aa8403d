// Package crucibleerr defines the sentinel error taxonomy shared across the
// storage, versioning, and engine layers. Every error kind is a distinct
// sentinel with no implicit conversion between kinds; callers use
// errors.Is against these values.
package crucibleerr

import "errors"

var (
	// ErrSchemaTooNew means the database file records schema migrations
	// this build does not know how to apply.
	ErrSchemaTooNew = errors.New("schema too new: database was written by a newer build")

	// ErrApplicationDataTooNew means the stored application identifier's
	// major version exceeds the caller's expected major version.
	ErrApplicationDataTooNew = errors.New("application data too new for expected application version")

	// ErrIncompatibleApplications means the stored application identifier
	// does not match the caller's expected application id.
	ErrIncompatibleApplications = errors.New("stored application identifier is incompatible with expected application")

	// ErrMergeSourceIncompatible means a merge source's application
	// identifier is incompatible with the destination's expected identifier.
	ErrMergeSourceIncompatible = errors.New("merge source application identifier is incompatible")

	// ErrMergeSourceRequiresUpgrade means a merge source carries a newer,
	// compatible application version that must be upgraded to locally
	// before the merge can proceed.
	ErrMergeSourceRequiresUpgrade = errors.New("merge source requires an upgrade before it can be merged")

	// ErrVersionConflict means a single-value accessor was called on a
	// read result carrying more than one version.
	ErrVersionConflict = errors.New("version conflict: multiple versions present")

	// ErrInvalidJSON means a write with type json carried a payload that
	// does not parse as syntactically valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON payload")

	// ErrAuthorTableInconsistency means a post-write or post-merge check
	// found an author whose recorded usn does not dominate the usns of
	// its own entries.
	ErrAuthorTableInconsistency = errors.New("author table inconsistency detected")

	// ErrNotFound is returned by lower-level storage lookups for rows
	// that do not exist; the engine layer turns this into empty results
	// rather than surfacing it directly in most paths.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned by any engine or storage operation invoked
	// after Close has been called.
	ErrClosed = errors.New("store is closed")
)
