package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	gametypes "github.com/cbodonnell/quicksave/pkg/game/types"
	"github.com/cbodonnell/quicksave/pkg/queue"
	savetypes "github.com/cbodonnell/quicksave/pkg/save/types"
	"github.com/cbodonnell/quicksave/pkg/state"
	"github.com/cbodonnell/quicksave/pkg/store"
	"github.com/cbodonnell/quicksave/pkg/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotStore struct {
	lock     sync.Mutex
	snapshot *savetypes.SaveSnapshot
	saveErr  error
	saves    int
}

func (s *fakeSnapshotStore) Close(ctx context.Context) error {
	return nil
}

func (s *fakeSnapshotStore) Save(ctx context.Context, snapshot *savetypes.SaveSnapshot) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snapshot = snapshot.Copy()
	return nil
}

func (s *fakeSnapshotStore) Load(ctx context.Context) (*savetypes.SaveSnapshot, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.snapshot.Copy(), nil
}

func (s *fakeSnapshotStore) Clear(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.snapshot = nil
	return nil
}

func (s *fakeSnapshotStore) saveCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.saves
}

type fakeSyncTrigger struct {
	lock      sync.Mutex
	triggered []*savetypes.SaveSnapshot
}

func (f *fakeSyncTrigger) Trigger(snapshot *savetypes.SaveSnapshot) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.triggered = append(f.triggered, snapshot)
}

func (f *fakeSyncTrigger) triggerCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.triggered)
}

func testWorker(local store.SnapshotStore, trigger SyncTrigger, eventQueue queue.Queue) *AutosaveWorker {
	stateManager := state.NewInMemoryStateManager()
	live := gametypes.NewGameState()
	live.AddPlayer(1, &gametypes.PlayerState{
		Name:      "player-1",
		Position:  gametypes.Position{X: 10, Y: 20},
		Hitpoints: 100,
	})
	if err := stateManager.Set(context.Background(), live); err != nil {
		panic(err)
	}

	settings := state.NewSettingsManager()
	settings.SetOverrides(savetypes.ConfigOverrides{
		"musicVolume": json.RawMessage(`0.5`),
	})

	return NewAutosaveWorker(NewAutosaveWorkerOptions{
		StateManager: stateManager,
		Overrides:    settings,
		LocalStore:   local,
		SyncTrigger:  trigger,
		EventQueue:   eventQueue,
		Supervisor:   supervisor.NewSupervisor(supervisor.NewSupervisorOptions{}),
		Interval:     time.Hour,
	})
}

func TestSaveNowPersistsAndTriggers(t *testing.T) {
	local := &fakeSnapshotStore{}
	trigger := &fakeSyncTrigger{}
	worker := testWorker(local, trigger, queue.NewInMemoryQueue(1))

	err := worker.SaveNow(context.Background())
	require.NoError(t, err)

	stored, err := local.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, savetypes.CurrentVersion, stored.Version)
	assert.NotZero(t, stored.SavedAt)
	assert.JSONEq(t, `0.5`, string(stored.ConfigOverrides["musicVolume"]))

	require.Equal(t, 1, trigger.triggerCount())
	assert.Equal(t, stored.SavedAt, trigger.triggered[0].SavedAt)
}

func TestSaveNowTriggersDespiteLocalStoreFailure(t *testing.T) {
	local := &fakeSnapshotStore{
		saveErr: &store.LocalStoreError{Err: fmt.Errorf("disk full")},
	}
	trigger := &fakeSyncTrigger{}
	worker := testWorker(local, trigger, queue.NewInMemoryQueue(1))

	err := worker.SaveNow(context.Background())
	require.Error(t, err)
	assert.True(t, store.IsLocalStoreError(err))

	// the in-memory snapshot still reaches the orchestrator
	assert.Equal(t, 1, trigger.triggerCount())
}

func TestStateChangedEventsCoalesce(t *testing.T) {
	local := &fakeSnapshotStore{}
	trigger := &fakeSyncTrigger{}
	eventQueue := queue.NewInMemoryQueue(16)
	worker := testWorker(local, trigger, eventQueue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	for i := 0; i < 5; i++ {
		eventQueue.Enqueue(StateChangedEvent{Timestamp: int64(i)})
	}

	require.Eventually(t, func() bool {
		return local.saveCount() >= 1
	}, time.Second, time.Millisecond)

	// every save that happened was handed to the orchestrator, and a
	// burst never produces more saves than events
	assert.LessOrEqual(t, local.saveCount(), 5)
	assert.GreaterOrEqual(t, trigger.triggerCount(), 1)
}
