package record

import "github.com/crucible-db/crucible/internal/crucibleerr"

// VersionList is the read result for a (scope, key): every entry row
// matching that pair, projected as (author_id, timestamp, value). An empty
// list means "never written"; a single null-typed element means "deleted";
// more than one element means "conflict, caller must resolve".
type VersionList []Version

// IsDeleted reports whether the result is exactly one row whose type is
// null. It fails with ErrVersionConflict if there is more than one version.
func (vl VersionList) IsDeleted() (bool, error) {
	if len(vl) > 1 {
		return false, crucibleerr.ErrVersionConflict
	}
	if len(vl) == 0 {
		return false, nil
	}
	return vl[0].Value.Type == TypeNull, nil
}

// Text returns the sole text payload. Empty result -> "", nil. A single
// version whose type is not text -> "", nil. More than one version ->
// ErrVersionConflict.
func (vl VersionList) Text() (string, error) {
	if len(vl) > 1 {
		return "", crucibleerr.ErrVersionConflict
	}
	if len(vl) == 0 {
		return "", nil
	}
	if vl[0].Value.Type != TypeText {
		return "", nil
	}
	return vl[0].Value.Text, nil
}

// JSON returns the sole JSON payload, under the same rules as Text.
func (vl VersionList) JSON() (string, error) {
	if len(vl) > 1 {
		return "", crucibleerr.ErrVersionConflict
	}
	if len(vl) == 0 {
		return "", nil
	}
	if vl[0].Value.Type != TypeJSON {
		return "", nil
	}
	return vl[0].Value.JSON, nil
}

// Blob returns the sole blob payload (mime type and bytes), under the same
// rules as Text.
func (vl VersionList) Blob() (string, []byte, error) {
	if len(vl) > 1 {
		return "", nil, crucibleerr.ErrVersionConflict
	}
	if len(vl) == 0 {
		return "", nil, nil
	}
	if vl[0].Value.Type != TypeBlob {
		return "", nil, nil
	}
	return vl[0].Value.BlobMIME, vl[0].Value.Blob, nil
}

// AuthorValuePairs projects the list down to (author, value) pairs, so
// two replicas' read results can be compared independent of timestamps.
func (vl VersionList) AuthorValuePairs() map[string]Value {
	out := make(map[string]Value, len(vl))
	for _, v := range vl {
		out[v.AuthorID.String()] = v.Value
	}
	return out
}
