package state

import (
	"sync"

	savetypes "github.com/cbodonnell/quicksave/pkg/save/types"
)

// SettingsManager holds the tunable settings the player has changed
// from their defaults. Saved alongside the world so a restored save
// brings its settings with it.
type SettingsManager struct {
	lock      sync.RWMutex
	overrides savetypes.ConfigOverrides
}

func NewSettingsManager() *SettingsManager {
	return &SettingsManager{
		overrides: make(savetypes.ConfigOverrides),
	}
}

func (m *SettingsManager) CurrentOverrides() savetypes.ConfigOverrides {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.overrides.Copy()
}

func (m *SettingsManager) SetOverrides(overrides savetypes.ConfigOverrides) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.overrides = overrides.Copy()
}
