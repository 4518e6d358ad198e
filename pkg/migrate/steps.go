package migrate

import (
	"encoding/json"
	"fmt"

	savetypes "github.com/cbodonnell/quicksave/pkg/save/types"
)

// migrateV1toV2 nests the flat player x/y coordinates into a position
// object and renames hp to hitpoints.
func migrateV1toV2(snapshot *savetypes.SaveSnapshot) (*savetypes.SaveSnapshot, error) {
	w := map[string]interface{}{}
	if err := json.Unmarshal(snapshot.GameState, &w); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game state: %v", err)
	}

	players, _ := w["players"].(map[string]interface{})
	for _, p := range players {
		player, ok := p.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("player entry is not an object")
		}
		if hp, ok := player["hp"]; ok {
			player["hitpoints"] = hp
			delete(player, "hp")
		}
		if _, ok := player["position"]; !ok {
			player["position"] = map[string]interface{}{
				"x": player["x"],
				"y": player["y"],
			}
			delete(player, "x")
			delete(player, "y")
		}
	}

	gameState, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal game state: %v", err)
	}

	return &savetypes.SaveSnapshot{
		Version:         2,
		SavedAt:         snapshot.SavedAt,
		GameState:       gameState,
		ConfigOverrides: snapshot.ConfigOverrides.Copy(),
	}, nil
}

// migrateV2toV3 renames playtime to elapsedPlaytime and moves the
// settings block out of the game state into the snapshot's config
// overrides, where it has lived since version 3.
func migrateV2toV3(snapshot *savetypes.SaveSnapshot) (*savetypes.SaveSnapshot, error) {
	w := map[string]interface{}{}
	if err := json.Unmarshal(snapshot.GameState, &w); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game state: %v", err)
	}

	if playtime, ok := w["playtime"]; ok {
		w["elapsedPlaytime"] = playtime
		delete(w, "playtime")
	} else if _, ok := w["elapsedPlaytime"]; !ok {
		w["elapsedPlaytime"] = 0
	}

	overrides := snapshot.ConfigOverrides.Copy()
	if settings, ok := w["settings"].(map[string]interface{}); ok {
		if overrides == nil {
			overrides = make(savetypes.ConfigOverrides, len(settings))
		}
		for key, value := range settings {
			raw, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal setting %s: %v", key, err)
			}
			overrides[key] = raw
		}
		delete(w, "settings")
	}

	gameState, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal game state: %v", err)
	}

	return &savetypes.SaveSnapshot{
		Version:         3,
		SavedAt:         snapshot.SavedAt,
		GameState:       gameState,
		ConfigOverrides: overrides,
	}, nil
}
