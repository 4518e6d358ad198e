package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/cbodonnell/quicksave/pkg/log"
	"github.com/cbodonnell/quicksave/pkg/queue"
	"github.com/cbodonnell/quicksave/pkg/save/projection"
	savetypes "github.com/cbodonnell/quicksave/pkg/save/types"
	"github.com/cbodonnell/quicksave/pkg/state"
	"github.com/cbodonnell/quicksave/pkg/store"
	"github.com/cbodonnell/quicksave/pkg/supervisor"
)

// StateChangedEvent is enqueued by the host engine whenever the world
// changes in a way worth saving.
type StateChangedEvent struct {
	Timestamp int64
}

// SyncTrigger is the slice of the orchestrator the worker needs.
type SyncTrigger interface {
	Trigger(snapshot *savetypes.SaveSnapshot)
}

// AutosaveWorker builds a snapshot on every autosave tick and on
// engine state-changed events, persists it locally, and hands it to
// the sync orchestrator. All local writes funnel through here, which
// keeps the local store single-writer.
type AutosaveWorker struct {
	stateManager state.StateManager
	overrides    projection.OverridesSource
	local        store.SnapshotStore
	sync         SyncTrigger
	eventQueue   queue.Queue
	supervisor   *supervisor.Supervisor
	interval     time.Duration
	saveNow      chan struct{}
}

type NewAutosaveWorkerOptions struct {
	StateManager state.StateManager
	Overrides    projection.OverridesSource
	LocalStore   store.SnapshotStore
	SyncTrigger  SyncTrigger
	EventQueue   queue.Queue
	Supervisor   *supervisor.Supervisor
	Interval     time.Duration
}

// NewAutosaveWorker creates a new AutosaveWorker. The worker saves on
// a fixed interval and coalesces bursts of state-changed events into
// a single save.
func NewAutosaveWorker(opts NewAutosaveWorkerOptions) *AutosaveWorker {
	return &AutosaveWorker{
		stateManager: opts.StateManager,
		overrides:    opts.Overrides,
		local:        opts.LocalStore,
		sync:         opts.SyncTrigger,
		eventQueue:   opts.EventQueue,
		supervisor:   opts.Supervisor,
		interval:     opts.Interval,
		saveNow:      make(chan struct{}, 1),
	}
}

func (w *AutosaveWorker) Start(ctx context.Context) {
	go w.drainEvents(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.saveNow:
			w.save(ctx)
		case <-ticker.C:
			w.save(ctx)
		}
	}
}

func (w *AutosaveWorker) drainEvents(ctx context.Context) {
	for {
		item := w.eventQueue.Dequeue()
		if ctx.Err() != nil {
			return
		}
		if _, ok := item.(StateChangedEvent); !ok {
			log.Warn("Unexpected message type on state-changed queue: %T", item)
			continue
		}
		select {
		case w.saveNow <- struct{}{}:
		default:
		}
	}
}

func (w *AutosaveWorker) save(ctx context.Context) {
	if err := w.supervisor.Run(func() error {
		return w.SaveNow(ctx)
	}); err != nil {
		log.Error("Failed to save: %v", err)
	}
}

// SaveNow builds and persists a snapshot immediately, then triggers a
// remote reconciliation. A failing local store is returned to the
// caller but does not stop the remote path: the orchestrator still
// receives the in-memory snapshot.
func (w *AutosaveWorker) SaveNow(ctx context.Context) error {
	live, err := w.stateManager.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get game state: %v", err)
	}

	snapshot, err := projection.Extract(live, w.overrides.CurrentOverrides(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to extract snapshot: %v", err)
	}

	saveErr := w.local.Save(ctx, snapshot)
	if saveErr != nil {
		log.Error("Failed to save snapshot locally: %v", saveErr)
	}

	w.sync.Trigger(snapshot)

	return saveErr
}
