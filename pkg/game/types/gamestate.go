package types

// GameState is the live world owned by the host engine. The sync
// engine only ever touches it through the save projection.
type GameState struct {
	// Timestamp is the time at which the game state was last updated
	Timestamp int64
	// Players maps player IDs to player states
	Players map[uint32]*PlayerState
	// ElapsedPlaytime is total play time in milliseconds
	ElapsedPlaytime int64
	// ActiveEffects are ephemeral particle effects. They are derived
	// presentation state and are never persisted.
	ActiveEffects []Effect
}

func NewGameState() *GameState {
	return &GameState{
		Players: make(map[uint32]*PlayerState),
	}
}

func (g *GameState) Copy() *GameState {
	newGameState := &GameState{
		Timestamp:       g.Timestamp,
		Players:         make(map[uint32]*PlayerState),
		ElapsedPlaytime: g.ElapsedPlaytime,
	}
	for id, player := range g.Players {
		newGameState.Players[id] = player.Copy()
	}
	newGameState.ActiveEffects = append(newGameState.ActiveEffects, g.ActiveEffects...)
	return newGameState
}

func (g *GameState) AddPlayer(id uint32, state *PlayerState) {
	g.Players[id] = state
}

func (g *GameState) RemovePlayer(id uint32) {
	delete(g.Players, id)
}

// Effect is a short-lived visual effect (hit sparks, dust, pickups).
type Effect struct {
	Kind string
	X    float64
	Y    float64
	TTL  int64
}
