package types

type PlayerState struct {
	Name      string         `json:"name"`
	Position  Position       `json:"position"`
	Hitpoints int16          `json:"hitpoints"`
	Inventory map[string]int `json:"inventory,omitempty"`
	// CachedBounds is derived collision geometry. It is recomputed by
	// the engine on load and never persisted.
	CachedBounds *Bounds `json:"-"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Bounds struct {
	X float64
	Y float64
	W float64
	H float64
}

// Equal returns true if the player state is equal to the other player state
func (p *PlayerState) Equal(other *PlayerState) bool {
	if p.Name != other.Name ||
		p.Position.X != other.Position.X ||
		p.Position.Y != other.Position.Y ||
		p.Hitpoints != other.Hitpoints ||
		len(p.Inventory) != len(other.Inventory) {
		return false
	}
	for item, count := range p.Inventory {
		if other.Inventory[item] != count {
			return false
		}
	}
	return true
}

// Copy returns a copy of the player state with an empty bounds reference
func (p *PlayerState) Copy() *PlayerState {
	copy := &PlayerState{
		Name:      p.Name,
		Position:  p.Position,
		Hitpoints: p.Hitpoints,
	}
	if p.Inventory != nil {
		copy.Inventory = make(map[string]int, len(p.Inventory))
		for item, count := range p.Inventory {
			copy.Inventory[item] = count
		}
	}
	return copy
}
