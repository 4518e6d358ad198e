package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cbodonnell/quicksave/pkg/auth"
	"github.com/cbodonnell/quicksave/pkg/log"
	"github.com/cbodonnell/quicksave/pkg/migrate"
	"github.com/cbodonnell/quicksave/pkg/remote"
	savetypes "github.com/cbodonnell/quicksave/pkg/save/types"
	"github.com/cbodonnell/quicksave/pkg/store"
)

const (
	DefaultProbeInterval = 15 * time.Second

	subscriberBufferSize = 16
)

// LiveApplier applies a pulled snapshot to the live game state.
type LiveApplier interface {
	ApplySnapshot(ctx context.Context, snapshot *savetypes.SaveSnapshot) error
}

type passResult int

const (
	// passComplete means the pass reached a terminal status
	passComplete passResult = iota
	// passRetryScheduled means a retry timer is pending
	passRetryScheduled
	// passSuspended means the machine went offline mid-pass
	passSuspended
)

// Orchestrator reconciles the local save with the remote save store.
// It is the sole owner of the session's SyncState. A reconciliation
// pass is one uninterruptible unit of work: triggers that arrive
// while a pass is in flight only mark the machine dirty, so at most
// one set of network calls is ever in flight and the completion of an
// in-flight pass is immediately followed by one more pass using the
// latest snapshot.
type Orchestrator struct {
	remote     remote.SaveClient
	local      store.SnapshotStore
	identity   auth.IdentityProvider
	applier    LiveApplier
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	probeEvery time.Duration

	lock        sync.Mutex
	state       SyncState
	running     bool
	dirty       bool
	pending     *savetypes.SaveSnapshot
	online      bool
	disabled    bool
	retryTimer  *time.Timer
	subscribers []chan SyncState
	runCtx      context.Context
}

type NewOrchestratorOptions struct {
	RemoteClient     remote.SaveClient
	LocalStore       store.SnapshotStore
	IdentityProvider auth.IdentityProvider
	Applier          LiveApplier
	MaxRetries       int
	BaseRetryDelay   time.Duration
	MaxRetryDelay    time.Duration
	ProbeInterval    time.Duration
}

func NewOrchestrator(opts NewOrchestratorOptions) *Orchestrator {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BaseRetryDelay == 0 {
		opts.BaseRetryDelay = DefaultBaseRetryDelay
	}
	if opts.MaxRetryDelay == 0 {
		opts.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if opts.ProbeInterval == 0 {
		opts.ProbeInterval = DefaultProbeInterval
	}

	return &Orchestrator{
		remote:     opts.RemoteClient,
		local:      opts.LocalStore,
		identity:   opts.IdentityProvider,
		applier:    opts.Applier,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseRetryDelay,
		maxDelay:   opts.MaxRetryDelay,
		probeEvery: opts.ProbeInterval,
		state: SyncState{
			Status: StatusIdle,
		},
		online: true,
		runCtx: context.Background(),
	}
}

// Start launches the reachability watcher. The orchestrator itself
// has no run loop: passes are started by triggers.
func (o *Orchestrator) Start(ctx context.Context) {
	o.lock.Lock()
	o.runCtx = ctx
	o.lock.Unlock()

	go o.watchReachability(ctx)
}

func (o *Orchestrator) watchReachability(ctx context.Context) {
	ticker := time.NewTicker(o.probeEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.SetOnline(o.remote.IsReachable(ctx))
		}
	}
}

// State returns a copy of the current sync state.
func (o *Orchestrator) State() SyncState {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.state
}

// Subscribe returns a channel receiving a state copy on every
// transition. Slow subscribers miss intermediate states rather than
// blocking the machine.
func (o *Orchestrator) Subscribe() <-chan SyncState {
	ch := make(chan SyncState, subscriberBufferSize)
	o.lock.Lock()
	o.subscribers = append(o.subscribers, ch)
	o.lock.Unlock()
	return ch
}

// Trigger schedules a reconciliation with the given snapshot as the
// latest local save. A nil snapshot re-reconciles with whatever is
// already pending or stored. While a pass is in flight the trigger
// only marks the machine dirty; while a retry is pending the trigger
// supersedes it and reconciles immediately.
func (o *Orchestrator) Trigger(snapshot *savetypes.SaveSnapshot) {
	o.lock.Lock()
	if snapshot != nil {
		o.pending = snapshot
	}
	if o.disabled {
		o.lock.Unlock()
		return
	}
	if !o.online {
		o.dirty = true
		o.lock.Unlock()
		return
	}
	if o.running {
		o.dirty = true
		o.lock.Unlock()
		return
	}
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
	o.running = true
	ctx := o.runCtx
	o.lock.Unlock()

	go o.runPasses(ctx)
}

// SetOnline feeds the reachability heuristic: the periodic probe and
// any platform online/offline signal both land here. Going offline
// suspends network attempts and cancels any pending retry; coming
// back online resumes reconciliation.
func (o *Orchestrator) SetOnline(online bool) {
	o.lock.Lock()
	wasOnline := o.online
	o.online = online
	if !online && o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
	disabled := o.disabled
	status := o.state.Status
	o.lock.Unlock()

	if disabled || online == wasOnline {
		return
	}

	if !online {
		if status != StatusError {
			o.transition(func(s *SyncState) {
				s.Status = StatusOffline
				s.Message = "offline, progress is saved locally"
			})
		}
		return
	}

	if status == StatusOffline {
		o.lock.Lock()
		if o.running {
			o.dirty = true
			o.lock.Unlock()
			return
		}
		o.running = true
		ctx := o.runCtx
		o.lock.Unlock()
		go o.runPasses(ctx)
	}
}

// Reset returns the machine to idle and forgets the pending snapshot.
// Used by explicit reset flows after local and remote saves have been
// cleared.
func (o *Orchestrator) Reset() {
	o.lock.Lock()
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
	o.dirty = false
	o.pending = nil
	o.lock.Unlock()

	o.transition(func(s *SyncState) {
		*s = SyncState{Status: StatusIdle}
	})
}

// RemoteInfo is the cheap freshness query surfaced to the UI layer:
// metadata only, no payload transfer.
func (o *Orchestrator) RemoteInfo(ctx context.Context) (*savetypes.RemoteSaveInfo, error) {
	user, err := o.identity.CurrentUser(ctx)
	if err != nil {
		return nil, &remote.AuthError{Reason: err.Error()}
	}
	if user == nil {
		return nil, &remote.AuthError{Reason: "no signed-in user"}
	}
	return o.remote.Info(ctx, *user)
}

func (o *Orchestrator) runPasses(ctx context.Context) {
	for {
		result := o.reconcileOnce(ctx)

		o.lock.Lock()
		if result == passComplete && o.dirty && !o.disabled && o.state.Status == StatusSynced {
			o.dirty = false
			o.lock.Unlock()
			continue
		}
		o.running = false
		o.lock.Unlock()
		return
	}
}

// reconcileOnce is a single reconciliation pass: compare freshness
// via remote metadata, then either pull the remote save into the live
// state or push the local one.
func (o *Orchestrator) reconcileOnce(ctx context.Context) passResult {
	o.transition(func(s *SyncState) {
		s.Status = StatusSyncing
		s.Message = "syncing"
	})

	user, err := o.identity.CurrentUser(ctx)
	if err != nil {
		return o.handleRemoteError(ctx, &remote.AuthError{Reason: err.Error()})
	}
	if user == nil {
		return o.handleRemoteError(ctx, &remote.AuthError{Reason: "no signed-in user"})
	}

	localSnapshot := o.latestLocalSnapshot(ctx)

	info, err := o.remote.Info(ctx, *user)
	if err != nil {
		return o.handleRemoteError(ctx, err)
	}

	// pull only when the remote is strictly newer: an equal savedAt
	// prefers the local copy and saves the round trip
	if info != nil && (localSnapshot == nil || info.SavedAt > localSnapshot.SavedAt) {
		result, handled := o.pullPhase(ctx, *user)
		if handled {
			return result
		}
		localSnapshot = o.latestLocalSnapshot(ctx)
	}

	return o.pushPhase(ctx, *user, localSnapshot)
}

// latestLocalSnapshot prefers the freshest triggered snapshot over
// the stored one. A failing local store is logged and skipped: the
// remote path is still worth attempting.
func (o *Orchestrator) latestLocalSnapshot(ctx context.Context) *savetypes.SaveSnapshot {
	o.lock.Lock()
	pending := o.pending
	o.lock.Unlock()
	if pending != nil {
		return pending
	}

	snapshot, err := o.local.Load(ctx)
	if err != nil {
		log.Error("Failed to load local snapshot: %v", err)
		return nil
	}
	return snapshot
}

// pullPhase fetches and applies the remote save. handled is false
// when the pass should fall through to a push instead: the remote row
// vanished between info and pull, or the pulled copy turned out stale.
func (o *Orchestrator) pullPhase(ctx context.Context, user auth.UserIdentity) (result passResult, handled bool) {
	remoteSnapshot, err := o.remote.Pull(ctx, user)
	if err != nil {
		if remote.IsNotFound(err) {
			return passComplete, false
		}
		return o.handleRemoteError(ctx, err), true
	}

	migrated, err := migrate.Migrate(remoteSnapshot)
	if err != nil {
		// fails closed: the last known good local copy stays untouched
		o.transition(func(s *SyncState) {
			s.Status = StatusError
			s.LastError = err
			s.Message = "remote save could not be read"
		})
		return passComplete, true
	}

	// re-check freshness right before applying: a local save may have
	// landed while the pull was in flight, and a stale pull must not
	// clobber it
	latest := o.latestLocalSnapshot(ctx)
	if latest != nil && migrated.SavedAt <= latest.SavedAt {
		log.Debug("Discarding stale pull (remote savedAt %d, local savedAt %d)", migrated.SavedAt, latest.SavedAt)
		return passComplete, false
	}

	if err := o.applier.ApplySnapshot(ctx, migrated); err != nil {
		return o.handleRemoteError(ctx, err), true
	}
	if err := o.local.Save(ctx, migrated); err != nil {
		log.Error("Failed to persist pulled snapshot locally: %v", err)
	}

	o.lock.Lock()
	if o.pending == nil || o.pending.SavedAt < migrated.SavedAt {
		o.pending = migrated
	}
	o.lock.Unlock()

	o.succeed()
	return passComplete, true
}

func (o *Orchestrator) pushPhase(ctx context.Context, user auth.UserIdentity, localSnapshot *savetypes.SaveSnapshot) passResult {
	if localSnapshot == nil {
		// new user with no local save and no remote row
		o.succeed()
		return passComplete
	}

	if localSnapshot.Version != savetypes.CurrentVersion {
		migrated, err := migrate.Migrate(localSnapshot)
		if err != nil {
			o.transition(func(s *SyncState) {
				s.Status = StatusError
				s.LastError = err
				s.Message = "local save could not be upgraded"
			})
			return passComplete
		}
		localSnapshot = migrated
	}

	if err := o.remote.Push(ctx, user, localSnapshot); err != nil {
		return o.handleRemoteError(ctx, err)
	}

	o.succeed()
	return passComplete
}

func (o *Orchestrator) succeed() {
	o.transition(func(s *SyncState) {
		s.Status = StatusSynced
		s.LastError = nil
		s.Message = ""
		s.LastSyncedAt = time.Now().UnixMilli()
		s.RetryCount = 0
	})
}

// handleRemoteError classifies a failure into the state machine's
// defined transitions. Configuration and auth failures stop without
// retrying; anything else is treated as transient and retried with
// capped backoff, unless the machine has gone offline.
func (o *Orchestrator) handleRemoteError(ctx context.Context, err error) passResult {
	switch {
	case remote.IsConfigurationError(err):
		o.lock.Lock()
		o.disabled = true
		o.lock.Unlock()
		o.transition(func(s *SyncState) {
			s.Status = StatusError
			s.LastError = err
			s.Message = "cloud saves are not available"
		})
		return passComplete
	case remote.IsAuthError(err):
		o.transition(func(s *SyncState) {
			s.Status = StatusError
			s.LastError = err
			s.Message = "sign in to sync your save"
		})
		return passComplete
	}

	if !remote.IsNetworkError(err) {
		err = &remote.NetworkError{Err: err}
	}

	o.lock.Lock()
	online := o.online
	o.lock.Unlock()
	if !online {
		o.transition(func(s *SyncState) {
			s.Status = StatusOffline
			s.Message = "offline, progress is saved locally"
		})
		return passSuspended
	}

	retryCount := o.State().RetryCount + 1
	if retryCount > o.maxRetries {
		o.transition(func(s *SyncState) {
			s.Status = StatusError
			s.LastError = err
			s.Message = fmt.Sprintf("sync failed after %d attempts", o.maxRetries)
		})
		return passComplete
	}

	delay := backoffDelay(retryCount-1, o.baseDelay, o.maxDelay)
	lastErr := err
	o.transition(func(s *SyncState) {
		s.Status = StatusRetrying
		s.LastError = lastErr
		s.RetryCount = retryCount
		s.Message = fmt.Sprintf("retrying (attempt %d of %d)", retryCount, o.maxRetries)
	})

	o.lock.Lock()
	o.retryTimer = time.AfterFunc(delay, func() {
		o.onRetryElapsed(ctx)
	})
	o.lock.Unlock()

	return passRetryScheduled
}

func (o *Orchestrator) onRetryElapsed(ctx context.Context) {
	o.lock.Lock()
	o.retryTimer = nil
	if o.state.Status != StatusRetrying || o.running {
		o.lock.Unlock()
		return
	}
	o.lock.Unlock()

	if !o.remote.IsReachable(ctx) {
		o.SetOnline(false)
		return
	}

	o.lock.Lock()
	if o.running {
		o.lock.Unlock()
		return
	}
	o.running = true
	o.lock.Unlock()

	go o.runPasses(ctx)
}

// transition mutates the owned state under the lock and publishes a
// copy to subscribers.
func (o *Orchestrator) transition(mutate func(s *SyncState)) {
	o.lock.Lock()
	mutate(&o.state)
	stateCopy := o.state
	subscribers := make([]chan SyncState, len(o.subscribers))
	copy(subscribers, o.subscribers)
	o.lock.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- stateCopy:
		default:
		}
	}
}
