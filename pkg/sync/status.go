package sync

type Status int

const (
	StatusIdle Status = iota
	StatusSyncing
	StatusSynced
	StatusOffline
	StatusError
	StatusRetrying
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSyncing:
		return "syncing"
	case StatusSynced:
		return "synced"
	case StatusOffline:
		return "offline"
	case StatusError:
		return "error"
	case StatusRetrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// SyncState is the orchestrator's externally visible state. It is
// owned exclusively by the orchestrator and handed to readers as a
// copy. It lives only for the session: a restart begins at idle.
type SyncState struct {
	Status Status
	// LastError is the error behind an error or retrying status
	LastError error
	// Message is a human-readable rendering of the current status
	Message string
	// LastSyncedAt is the last successful reconciliation in epoch
	// milliseconds, zero if none this session
	LastSyncedAt int64
	RetryCount   int
}
