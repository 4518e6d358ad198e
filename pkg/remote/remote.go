package remote

import (
	"context"

	"github.com/cbodonnell/quicksave/pkg/auth"
	savetypes "github.com/cbodonnell/quicksave/pkg/save/types"
)

// SaveClient is the remote save store: exactly one row per user,
// keyed by identity. Writes are row-granularity upserts, never
// field-level merges. Every operation returns an explicit error from
// the taxonomy in this package instead of panicking across the
// boundary.
type SaveClient interface {
	Close(ctx context.Context) error
	// Push upserts the user's save row.
	Push(ctx context.Context, user auth.UserIdentity, snapshot *savetypes.SaveSnapshot) error
	// Pull fetches the full save row. Returns a NotFoundError when
	// the user has never saved, so callers can tell "nothing exists
	// yet" apart from "the call failed".
	Pull(ctx context.Context, user auth.UserIdentity) (*savetypes.SaveSnapshot, error)
	// Info fetches save metadata only, for staleness comparison.
	// Returns (nil, nil) when no save exists.
	Info(ctx context.Context, user auth.UserIdentity) (*savetypes.RemoteSaveInfo, error)
	// Delete removes the user's save row.
	Delete(ctx context.Context, user auth.UserIdentity) error
	// IsReachable is a best-effort connectivity probe. It is a
	// heuristic for gating retries, never ground truth.
	IsReachable(ctx context.Context) bool
}
