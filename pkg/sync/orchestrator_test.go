package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cbodonnell/quicksave/pkg/auth"
	"github.com/cbodonnell/quicksave/pkg/remote"
	savetypes "github.com/cbodonnell/quicksave/pkg/save/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSaveClient struct {
	lock      sync.Mutex
	snapshot  *savetypes.SaveSnapshot
	infoErr   error
	pullErr   error
	pushErr   error
	reachable bool
	pushes    int
	pulls     int
	// pushStarted and pushRelease, when set, make Push block until
	// released so tests can race triggers against an in-flight pass
	pushStarted chan struct{}
	pushRelease chan struct{}
	pullStarted chan struct{}
	pullRelease chan struct{}
}

func newFakeSaveClient() *fakeSaveClient {
	return &fakeSaveClient{
		reachable: true,
	}
}

func (c *fakeSaveClient) Close(ctx context.Context) error {
	return nil
}

func (c *fakeSaveClient) Push(ctx context.Context, user auth.UserIdentity, snapshot *savetypes.SaveSnapshot) error {
	c.lock.Lock()
	started := c.pushStarted
	release := c.pushRelease
	c.lock.Unlock()
	if started != nil {
		started <- struct{}{}
		<-release
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	c.pushes++
	if c.pushErr != nil {
		return c.pushErr
	}
	c.snapshot = snapshot.Copy()
	return nil
}

func (c *fakeSaveClient) Pull(ctx context.Context, user auth.UserIdentity) (*savetypes.SaveSnapshot, error) {
	c.lock.Lock()
	started := c.pullStarted
	release := c.pullRelease
	c.lock.Unlock()
	if started != nil {
		started <- struct{}{}
		<-release
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	c.pulls++
	if c.pullErr != nil {
		return nil, c.pullErr
	}
	if c.snapshot == nil {
		return nil, &remote.NotFoundError{}
	}
	return c.snapshot.Copy(), nil
}

func (c *fakeSaveClient) Info(ctx context.Context, user auth.UserIdentity) (*savetypes.RemoteSaveInfo, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.infoErr != nil {
		return nil, c.infoErr
	}
	if c.snapshot == nil {
		return nil, nil
	}
	return &savetypes.RemoteSaveInfo{
		SavedAt: c.snapshot.SavedAt,
		Version: c.snapshot.Version,
	}, nil
}

func (c *fakeSaveClient) Delete(ctx context.Context, user auth.UserIdentity) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.snapshot = nil
	return nil
}

func (c *fakeSaveClient) IsReachable(ctx context.Context) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.reachable
}

func (c *fakeSaveClient) pushCount() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.pushes
}

func (c *fakeSaveClient) pullCount() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.pulls
}

func (c *fakeSaveClient) remoteSnapshot() *savetypes.SaveSnapshot {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.snapshot.Copy()
}

type fakeSnapshotStore struct {
	lock     sync.Mutex
	snapshot *savetypes.SaveSnapshot
	loadErr  error
	saveErr  error
}

func (s *fakeSnapshotStore) Close(ctx context.Context) error {
	return nil
}

func (s *fakeSnapshotStore) Save(ctx context.Context, snapshot *savetypes.SaveSnapshot) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snapshot = snapshot.Copy()
	return nil
}

func (s *fakeSnapshotStore) Load(ctx context.Context) (*savetypes.SaveSnapshot, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.snapshot.Copy(), nil
}

func (s *fakeSnapshotStore) Clear(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.snapshot = nil
	return nil
}

func (s *fakeSnapshotStore) stored() *savetypes.SaveSnapshot {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.snapshot.Copy()
}

type fakeApplier struct {
	lock    sync.Mutex
	applied []*savetypes.SaveSnapshot
}

func (a *fakeApplier) ApplySnapshot(ctx context.Context, snapshot *savetypes.SaveSnapshot) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.applied = append(a.applied, snapshot.Copy())
	return nil
}

func (a *fakeApplier) appliedCount() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return len(a.applied)
}

func testSnapshot(savedAt int64) *savetypes.SaveSnapshot {
	return &savetypes.SaveSnapshot{
		Version:   savetypes.CurrentVersion,
		SavedAt:   savedAt,
		GameState: json.RawMessage(`{"timestamp": 1, "elapsedPlaytime": 0, "players": {}}`),
	}
}

func testOrchestrator(client *fakeSaveClient, local *fakeSnapshotStore, applier *fakeApplier) *Orchestrator {
	return NewOrchestrator(NewOrchestratorOptions{
		RemoteClient:     client,
		LocalStore:       local,
		IdentityProvider: auth.NewStaticIdentityProvider("test-user"),
		Applier:          applier,
		MaxRetries:       3,
		BaseRetryDelay:   time.Millisecond,
		MaxRetryDelay:    5 * time.Millisecond,
	})
}

func (o *Orchestrator) isRunning() bool {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.running
}

func TestReconcilePullsNewerRemote(t *testing.T) {
	client := newFakeSaveClient()
	client.snapshot = testSnapshot(200)
	local := &fakeSnapshotStore{snapshot: testSnapshot(100)}
	applier := &fakeApplier{}
	o := testOrchestrator(client, local, applier)

	result := o.reconcileOnce(context.Background())

	assert.Equal(t, passComplete, result)
	assert.Equal(t, StatusSynced, o.State().Status)
	require.Equal(t, 1, applier.appliedCount())
	assert.Equal(t, int64(200), applier.applied[0].SavedAt)
	assert.Equal(t, int64(200), local.stored().SavedAt)
	assert.Equal(t, 0, client.pushCount())
}

func TestReconcilePushesWhenRemoteOlder(t *testing.T) {
	client := newFakeSaveClient()
	client.snapshot = testSnapshot(100)
	local := &fakeSnapshotStore{snapshot: testSnapshot(200)}
	applier := &fakeApplier{}
	o := testOrchestrator(client, local, applier)

	o.reconcileOnce(context.Background())

	assert.Equal(t, StatusSynced, o.State().Status)
	assert.Equal(t, 0, applier.appliedCount())
	assert.Equal(t, 1, client.pushCount())
	assert.Equal(t, int64(200), client.remoteSnapshot().SavedAt)
}

func TestReconcilePrefersLocalOnTie(t *testing.T) {
	client := newFakeSaveClient()
	client.snapshot = testSnapshot(150)
	local := &fakeSnapshotStore{snapshot: testSnapshot(150)}
	applier := &fakeApplier{}
	o := testOrchestrator(client, local, applier)

	o.reconcileOnce(context.Background())

	assert.Equal(t, StatusSynced, o.State().Status)
	assert.Equal(t, 0, client.pullCount())
	assert.Equal(t, 1, client.pushCount())
}

func TestReconcilePushesWhenNoRemoteSave(t *testing.T) {
	client := newFakeSaveClient()
	local := &fakeSnapshotStore{snapshot: testSnapshot(100)}
	applier := &fakeApplier{}
	o := testOrchestrator(client, local, applier)

	o.reconcileOnce(context.Background())

	assert.Equal(t, StatusSynced, o.State().Status)
	assert.Equal(t, 0, client.pullCount())
	assert.Equal(t, 1, client.pushCount())
}

func TestReconcileSucceedsWithNothingToSync(t *testing.T) {
	client := newFakeSaveClient()
	local := &fakeSnapshotStore{}
	applier := &fakeApplier{}
	o := testOrchestrator(client, local, applier)

	o.reconcileOnce(context.Background())

	assert.Equal(t, StatusSynced, o.State().Status)
	assert.Equal(t, 0, client.pushCount())
	assert.Equal(t, 0, client.pullCount())
}

func TestReconcileDiscardsStalePull(t *testing.T) {
	client := newFakeSaveClient()
	client.snapshot = testSnapshot(200)
	client.pullStarted = make(chan struct{}, 1)
	client.pullRelease = make(chan struct{})
	local := &fakeSnapshotStore{snapshot: testSnapshot(100)}
	applier := &fakeApplier{}
	o := testOrchestrator(client, local, applier)

	done := make(chan passResult, 1)
	go func() {
		done <- o.reconcileOnce(context.Background())
	}()

	// a fresher local save lands while the pull is in flight
	<-client.pullStarted
	o.lock.Lock()
	o.pending = testSnapshot(300)
	o.lock.Unlock()
	close(client.pullRelease)

	require.Equal(t, passComplete, <-done)
	assert.Equal(t, StatusSynced, o.State().Status)
	assert.Equal(t, 0, applier.appliedCount())
	assert.Equal(t, 1, client.pushCount())
	assert.Equal(t, int64(300), client.remoteSnapshot().SavedAt)
}

func TestCoalescingTriggers(t *testing.T) {
	client := newFakeSaveClient()
	client.pushStarted = make(chan struct{})
	client.pushRelease = make(chan struct{}, 2)
	local := &fakeSnapshotStore{}
	applier := &fakeApplier{}
	o := testOrchestrator(client, local, applier)

	o.Trigger(testSnapshot(100))
	<-client.pushStarted

	// two triggers land while the first push is in flight
	o.Trigger(testSnapshot(110))
	o.Trigger(testSnapshot(120))

	client.pushRelease <- struct{}{}
	<-client.pushStarted
	client.pushRelease <- struct{}{}

	require.Eventually(t, func() bool {
		return o.State().Status == StatusSynced && !o.isRunning()
	}, time.Second, time.Millisecond)

	// exactly one additional write beyond the first, with the latest
	// snapshot
	assert.Equal(t, 2, client.pushCount())
	assert.Equal(t, int64(120), client.remoteSnapshot().SavedAt)
}

func TestAuthErrorStopsWithoutRetry(t *testing.T) {
	client := newFakeSaveClient()
	local := &fakeSnapshotStore{snapshot: testSnapshot(100)}
	applier := &fakeApplier{}
	o := NewOrchestrator(NewOrchestratorOptions{
		RemoteClient:     client,
		LocalStore:       local,
		IdentityProvider: auth.NewStaticIdentityProvider(""),
		Applier:          applier,
	})

	result := o.reconcileOnce(context.Background())

	assert.Equal(t, passComplete, result)
	state := o.State()
	assert.Equal(t, StatusError, state.Status)
	assert.True(t, remote.IsAuthError(state.LastError))
	assert.Equal(t, 0, state.RetryCount)
}

func TestConfigurationErrorDisablesSync(t *testing.T) {
	local := &fakeSnapshotStore{snapshot: testSnapshot(100)}
	applier := &fakeApplier{}
	o := NewOrchestrator(NewOrchestratorOptions{
		RemoteClient:     remote.NewDisabledSaveClient(),
		LocalStore:       local,
		IdentityProvider: auth.NewStaticIdentityProvider("test-user"),
		Applier:          applier,
	})

	o.reconcileOnce(context.Background())

	state := o.State()
	assert.Equal(t, StatusError, state.Status)
	assert.True(t, remote.IsConfigurationError(state.LastError))

	// further triggers are ignored for the session
	o.Trigger(testSnapshot(200))
	assert.False(t, o.isRunning())
}

func TestTransientFailureRetriesThenErrors(t *testing.T) {
	client := newFakeSaveClient()
	client.pushErr = &remote.NetworkError{Err: fmt.Errorf("connection reset")}
	local := &fakeSnapshotStore{snapshot: testSnapshot(100)}
	applier := &fakeApplier{}
	o := testOrchestrator(client, local, applier)

	o.Trigger(nil)

	require.Eventually(t, func() bool {
		return o.State().Status == StatusError
	}, time.Second, time.Millisecond)

	state := o.State()
	assert.True(t, remote.IsNetworkError(state.LastError))
	// the first attempt plus one per allowed retry
	assert.Equal(t, o.maxRetries+1, client.pushCount())
}

func TestUnknownFailureNormalizedToNetworkError(t *testing.T) {
	client := newFakeSaveClient()
	client.infoErr = fmt.Errorf("something unexpected")
	local := &fakeSnapshotStore{snapshot: testSnapshot(100)}
	applier := &fakeApplier{}
	// a long retry delay keeps the scheduled retry from firing while
	// the test inspects the retrying state
	o := NewOrchestrator(NewOrchestratorOptions{
		RemoteClient:     client,
		LocalStore:       local,
		IdentityProvider: auth.NewStaticIdentityProvider("test-user"),
		Applier:          applier,
		BaseRetryDelay:   time.Hour,
		MaxRetryDelay:    time.Hour,
	})

	result := o.reconcileOnce(context.Background())

	assert.Equal(t, passRetryScheduled, result)
	state := o.State()
	assert.Equal(t, StatusRetrying, state.Status)
	assert.True(t, remote.IsNetworkError(state.LastError))
	assert.Equal(t, 1, state.RetryCount)
}

func TestCorruptRemoteSaveFailsClosed(t *testing.T) {
	client := newFakeSaveClient()
	client.snapshot = &savetypes.SaveSnapshot{
		Version:   savetypes.CurrentVersion + 1,
		SavedAt:   200,
		GameState: json.RawMessage(`{}`),
	}
	local := &fakeSnapshotStore{snapshot: testSnapshot(100)}
	applier := &fakeApplier{}
	o := testOrchestrator(client, local, applier)

	o.reconcileOnce(context.Background())

	assert.Equal(t, StatusError, o.State().Status)
	assert.Equal(t, 0, applier.appliedCount())
	// the last known good local copy is untouched
	assert.Equal(t, int64(100), local.stored().SavedAt)
}

func TestOfflineTransitionHaltsRetries(t *testing.T) {
	client := newFakeSaveClient()
	client.pushErr = &remote.NetworkError{Err: fmt.Errorf("connection reset")}
	local := &fakeSnapshotStore{snapshot: testSnapshot(100)}
	applier := &fakeApplier{}
	o := NewOrchestrator(NewOrchestratorOptions{
		RemoteClient:     client,
		LocalStore:       local,
		IdentityProvider: auth.NewStaticIdentityProvider("test-user"),
		Applier:          applier,
		MaxRetries:       10,
		BaseRetryDelay:   time.Hour,
		MaxRetryDelay:    time.Hour,
	})

	result := o.reconcileOnce(context.Background())
	require.Equal(t, passRetryScheduled, result)
	require.Equal(t, StatusRetrying, o.State().Status)

	o.SetOnline(false)

	assert.Equal(t, StatusOffline, o.State().Status)
	o.lock.Lock()
	assert.Nil(t, o.retryTimer)
	o.lock.Unlock()

	// no network attempts while offline
	pushesBefore := client.pushCount()
	o.Trigger(testSnapshot(150))
	assert.False(t, o.isRunning())
	assert.Equal(t, pushesBefore, client.pushCount())

	// reachability regained resumes reconciliation
	client.lock.Lock()
	client.pushErr = nil
	client.lock.Unlock()
	o.SetOnline(true)

	require.Eventually(t, func() bool {
		return o.State().Status == StatusSynced
	}, time.Second, time.Millisecond)
	assert.Equal(t, int64(150), client.remoteSnapshot().SavedAt)
}

func TestResetReturnsToIdle(t *testing.T) {
	client := newFakeSaveClient()
	local := &fakeSnapshotStore{snapshot: testSnapshot(100)}
	applier := &fakeApplier{}
	o := testOrchestrator(client, local, applier)

	o.reconcileOnce(context.Background())
	require.Equal(t, StatusSynced, o.State().Status)

	o.Reset()

	state := o.State()
	assert.Equal(t, StatusIdle, state.Status)
	assert.Zero(t, state.LastSyncedAt)
	assert.Zero(t, state.RetryCount)
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	client := newFakeSaveClient()
	local := &fakeSnapshotStore{snapshot: testSnapshot(100)}
	applier := &fakeApplier{}
	o := testOrchestrator(client, local, applier)

	updates := o.Subscribe()

	o.reconcileOnce(context.Background())

	var statuses []Status
	for len(updates) > 0 {
		statuses = append(statuses, (<-updates).Status)
	}
	assert.Equal(t, []Status{StatusSyncing, StatusSynced}, statuses)
}
