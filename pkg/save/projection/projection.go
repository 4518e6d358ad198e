package projection

import (
	"context"
	"encoding/json"
	"fmt"

	gametypes "github.com/cbodonnell/quicksave/pkg/game/types"
	savetypes "github.com/cbodonnell/quicksave/pkg/save/types"
	"github.com/cbodonnell/quicksave/pkg/state"
)

// world is the persisted shape of the live game state at the current
// schema version. Derived fields (cached bounds, active effects) are
// dropped here and recomputed by the engine on load.
type world struct {
	Timestamp       int64                             `json:"timestamp"`
	ElapsedPlaytime int64                             `json:"elapsedPlaytime"`
	Players         map[uint32]*gametypes.PlayerState `json:"players"`
}

// OverridesSource provides the tunable settings active at save time.
type OverridesSource interface {
	CurrentOverrides() savetypes.ConfigOverrides
}

// Extract builds a snapshot from the live game state. It is pure and
// deterministic given its inputs and never mutates the live state.
func Extract(live *gametypes.GameState, overrides savetypes.ConfigOverrides, savedAt int64) (*savetypes.SaveSnapshot, error) {
	w := &world{
		Timestamp:       live.Timestamp,
		ElapsedPlaytime: live.ElapsedPlaytime,
		Players:         make(map[uint32]*gametypes.PlayerState, len(live.Players)),
	}
	for id, player := range live.Players {
		w.Players[id] = player.Copy()
	}

	gameState, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal game state: %v", err)
	}

	return &savetypes.SaveSnapshot{
		Version:         savetypes.CurrentVersion,
		SavedAt:         savedAt,
		GameState:       gameState,
		ConfigOverrides: overrides.Copy(),
	}, nil
}

// Apply reconstructs a live game state from a snapshot. The snapshot
// must already be at the current schema version: older saves go
// through the migrator first.
func Apply(snapshot *savetypes.SaveSnapshot) (*gametypes.GameState, error) {
	if snapshot.Version != savetypes.CurrentVersion {
		return nil, fmt.Errorf("cannot apply snapshot at version %d, want %d", snapshot.Version, savetypes.CurrentVersion)
	}

	w := &world{}
	if err := json.Unmarshal(snapshot.GameState, w); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game state: %v", err)
	}

	live := gametypes.NewGameState()
	live.Timestamp = w.Timestamp
	live.ElapsedPlaytime = w.ElapsedPlaytime
	for id, player := range w.Players {
		live.AddPlayer(id, player)
	}

	return live, nil
}

// LiveBinding applies pulled snapshots to the shared state manager.
type LiveBinding struct {
	stateManager state.StateManager
}

func NewLiveBinding(stateManager state.StateManager) *LiveBinding {
	return &LiveBinding{
		stateManager: stateManager,
	}
}

func (b *LiveBinding) ApplySnapshot(ctx context.Context, snapshot *savetypes.SaveSnapshot) error {
	live, err := Apply(snapshot)
	if err != nil {
		return fmt.Errorf("failed to apply snapshot: %v", err)
	}
	if err := b.stateManager.Set(ctx, live); err != nil {
		return fmt.Errorf("failed to set game state: %v", err)
	}
	return nil
}
