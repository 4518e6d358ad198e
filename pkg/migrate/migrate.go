package migrate

import (
	"fmt"

	savetypes "github.com/cbodonnell/quicksave/pkg/save/types"
)

// CorruptSaveError means a snapshot cannot be brought to the current
// schema version. The input snapshot is left untouched so the caller
// can surface a recovery path instead of discarding progress.
type CorruptSaveError struct {
	Version int
	Reason  string
}

func (e *CorruptSaveError) Error() string {
	return fmt.Sprintf("corrupt save at version %d: %s", e.Version, e.Reason)
}

func IsCorruptSave(err error) bool {
	_, ok := err.(*CorruptSaveError)
	return ok
}

// step upgrades a snapshot from exactly one version to the next.
// Steps are self-contained and idempotent given their input version.
type step func(snapshot *savetypes.SaveSnapshot) (*savetypes.SaveSnapshot, error)

// steps maps a schema version to the step that upgrades it by one.
var steps = map[int]step{
	1: migrateV1toV2,
	2: migrateV2toV3,
}

// Migrate upgrades a snapshot to the current schema version by
// chaining per-version steps. It never returns a partially migrated
// snapshot: the result is at exactly the current version or the call
// fails with a CorruptSaveError and the input is unmodified.
func Migrate(snapshot *savetypes.SaveSnapshot) (*savetypes.SaveSnapshot, error) {
	if snapshot.Version == savetypes.CurrentVersion {
		return snapshot.Copy(), nil
	}
	if snapshot.Version > savetypes.CurrentVersion {
		return nil, &CorruptSaveError{
			Version: snapshot.Version,
			Reason:  fmt.Sprintf("newer than this build's schema version %d", savetypes.CurrentVersion),
		}
	}

	current := snapshot.Copy()
	for current.Version < savetypes.CurrentVersion {
		step, ok := steps[current.Version]
		if !ok {
			return nil, &CorruptSaveError{
				Version: current.Version,
				Reason:  "no migration step for this version",
			}
		}
		next, err := step(current)
		if err != nil {
			return nil, &CorruptSaveError{
				Version: current.Version,
				Reason:  fmt.Sprintf("migration step failed: %v", err),
			}
		}
		if next.Version != current.Version+1 {
			return nil, &CorruptSaveError{
				Version: current.Version,
				Reason:  fmt.Sprintf("migration step produced version %d", next.Version),
			}
		}
		current = next
	}

	return current, nil
}
