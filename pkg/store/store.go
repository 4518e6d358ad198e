package store

import (
	"context"
	"errors"
	"fmt"

	savetypes "github.com/cbodonnell/quicksave/pkg/save/types"
)

// SnapshotStore is the durable on-device save. It is the source of
// truth for the last known good state across sessions, including when
// the remote is unreachable.
type SnapshotStore interface {
	Close(ctx context.Context) error
	// Save overwrites any previously stored snapshot.
	Save(ctx context.Context, snapshot *savetypes.SaveSnapshot) error
	// Load returns (nil, nil) when no snapshot has been saved yet.
	Load(ctx context.Context) (*savetypes.SaveSnapshot, error)
	// Clear removes the stored snapshot.
	Clear(ctx context.Context) error
}

// LocalStoreError is a device-storage failure (quota, corruption).
// It is distinct from a sync failure: the remote path is still
// attempted when the local write is unavailable.
type LocalStoreError struct {
	Err error
}

func (e *LocalStoreError) Error() string {
	return fmt.Sprintf("local store: %v", e.Err)
}

func (e *LocalStoreError) Unwrap() error {
	return e.Err
}

func IsLocalStoreError(err error) bool {
	var localStoreErr *LocalStoreError
	return errors.As(err, &localStoreErr)
}
