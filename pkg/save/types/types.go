package types

import "encoding/json"

// CurrentVersion is the save schema version written by this build.
// Snapshots at older versions are upgraded by the migrate package
// before they are applied; snapshots at newer versions are rejected.
const CurrentVersion = 3

// ConfigOverrides holds the tunable settings active at save time.
// The payload is opaque to the sync engine.
type ConfigOverrides map[string]json.RawMessage

func (o ConfigOverrides) Copy() ConfigOverrides {
	if o == nil {
		return nil
	}
	out := make(ConfigOverrides, len(o))
	for k, v := range o {
		raw := make(json.RawMessage, len(v))
		copy(raw, v)
		out[k] = raw
	}
	return out
}

// SaveSnapshot is a serializable projection of the live game state.
// Snapshots are immutable once constructed: a new save produces a new
// value that supersedes the previous one.
type SaveSnapshot struct {
	// Version is the schema version of GameState
	Version int `json:"version"`
	// SavedAt is the save time in epoch milliseconds and is the sole
	// tie-breaker for which copy of a save is newer
	SavedAt int64 `json:"savedAt"`
	// GameState is the opaque serialized world state
	GameState json.RawMessage `json:"gameState"`
	// ConfigOverrides are the tunable settings active at save time
	ConfigOverrides ConfigOverrides `json:"configOverrides,omitempty"`
}

func (s *SaveSnapshot) Copy() *SaveSnapshot {
	if s == nil {
		return nil
	}
	gameState := make(json.RawMessage, len(s.GameState))
	copy(gameState, s.GameState)
	return &SaveSnapshot{
		Version:         s.Version,
		SavedAt:         s.SavedAt,
		GameState:       gameState,
		ConfigOverrides: s.ConfigOverrides.Copy(),
	}
}

// RemoteSaveInfo is a metadata-only projection of a remote snapshot,
// used for staleness comparison without transferring the full payload.
type RemoteSaveInfo struct {
	SavedAt int64 `json:"savedAt"`
	Version int   `json:"version"`
}
