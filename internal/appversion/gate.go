// Package appversion implements the application-version gate of spec §4.4:
// every open and every merge compares the caller's expected application
// identifier against the one stamped in the file.
package appversion

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/crucible-db/crucible/internal/crucibleerr"
	"github.com/crucible-db/crucible/internal/record"
)

// UpgradeFunc runs inside the same transaction that will stamp the new
// application identifier. If it returns an error, the stamp never
// happens and the transaction is expected to roll back.
type UpgradeFunc func(ctx context.Context, tx *sql.Tx, stored *record.AppIdentifier) error

// Expected is the caller-supplied application identifier an open or
// merge is gated against.
type Expected struct {
	ID          string
	Major       int
	Minor       int
	Description string
	// Upgrade runs when the stored identifier is absent or older
	// (same id, lower major.minor) than Expected. May be nil, in which
	// case no callback runs and an absent or older identifier is simply
	// restamped with Expected.
	Upgrade UpgradeFunc
}

func (e Expected) appID() record.AppIdentifier {
	return record.AppIdentifier{ID: e.ID, Major: e.Major, Minor: e.Minor, Description: e.Description}
}

func lessVersion(majorA, minorA, majorB, minorB int) bool {
	if majorA != majorB {
		return majorA < majorB
	}
	return minorA < minorB
}

// CheckOpen enforces the table of spec §4.4 against stored (nil if the
// file has never been stamped). On success it returns the identifier that
// should now be persisted (unchanged from stored if no stamp is needed),
// and whether a stamp is required.
func CheckOpen(ctx context.Context, tx *sql.Tx, stored *record.AppIdentifier, expected Expected) (toStamp record.AppIdentifier, needsStamp bool, err error) {
	if stored == nil {
		if expected.Upgrade != nil {
			if err := expected.Upgrade(ctx, tx, nil); err != nil {
				return record.AppIdentifier{}, false, fmt.Errorf("upgrade callback: %w", err)
			}
		}
		return expected.appID(), true, nil
	}

	if stored.ID != expected.ID {
		return record.AppIdentifier{}, false, fmt.Errorf("%w: stored %q, expected %q", crucibleerr.ErrIncompatibleApplications, stored.ID, expected.ID)
	}

	if stored.Major > expected.Major {
		return record.AppIdentifier{}, false, fmt.Errorf("%w: stored %d.%d, expected %d.%d",
			crucibleerr.ErrApplicationDataTooNew, stored.Major, stored.Minor, expected.Major, expected.Minor)
	}

	if lessVersion(stored.Major, stored.Minor, expected.Major, expected.Minor) {
		if expected.Upgrade != nil {
			if err := expected.Upgrade(ctx, tx, stored); err != nil {
				return record.AppIdentifier{}, false, fmt.Errorf("upgrade callback: %w", err)
			}
		}
		return expected.appID(), true, nil
	}

	// stored >= expected and compatible: open as-is, no stamp needed.
	return *stored, false, nil
}

// CheckMerge enforces spec §4.4's merge-time gate against a source
// replica's stored identifier, given the same Expected used to open the
// destination. It never invokes Upgrade: a merge source that is ahead of
// the local expected version (same major, newer minor) is rejected with
// ErrMergeSourceRequiresUpgrade until the destination has been reopened
// with a newer Expected — merging never implicitly upgrades anything.
func CheckMerge(source *record.AppIdentifier, expected Expected) error {
	if source == nil {
		return nil
	}
	if source.ID != expected.ID {
		return fmt.Errorf("%w: source %q, expected %q", crucibleerr.ErrMergeSourceIncompatible, source.ID, expected.ID)
	}
	if source.Major > expected.Major {
		// A major version jump beyond what this build understands is not
		// something an upgrade callback can bridge from the merge path.
		return fmt.Errorf("%w: source %d.%d, expected %d.%d",
			crucibleerr.ErrMergeSourceIncompatible, source.Major, source.Minor, expected.Major, expected.Minor)
	}
	if lessVersion(expected.Major, expected.Minor, source.Major, source.Minor) {
		// Source is ahead within a bridgeable range (same major, newer
		// minor): the caller can upgrade the destination first, then retry.
		return fmt.Errorf("%w: source %d.%d, expected %d.%d",
			crucibleerr.ErrMergeSourceRequiresUpgrade, source.Major, source.Minor, expected.Major, expected.Minor)
	}
	return nil
}
