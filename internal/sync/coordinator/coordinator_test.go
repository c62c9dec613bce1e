package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	gosync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgsync "github.com/syncline/syncline/internal/sync"
	"github.com/syncline/syncline/internal/sync/run"
)

// fakeGate is an in-memory GlobalSwitch.
type fakeGate struct {
	enabled bool
	err     error
}

func (g *fakeGate) WorkersEnabled(_ context.Context) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	return g.enabled, nil
}

func (g *fakeGate) SetWorkersEnabled(_ context.Context, enabled bool) (*pkgsync.GlobalConfig, error) {
	g.enabled = enabled
	return &pkgsync.GlobalConfig{WorkersEnabled: enabled, UpdatedAt: time.Now()}, nil
}

func (g *fakeGate) Get(_ context.Context) (*pkgsync.GlobalConfig, error) {
	return &pkgsync.GlobalConfig{WorkersEnabled: g.enabled}, nil
}

// fakeStates is an in-memory state.Service.
type fakeStates struct {
	mu     gosync.Mutex
	states map[string]*pkgsync.SyncState
}

func newFakeStates(states ...*pkgsync.SyncState) *fakeStates {
	f := &fakeStates{states: make(map[string]*pkgsync.SyncState)}
	for _, st := range states {
		f.states[st.AccountID+"/"+st.APIFamily] = st
	}
	return f
}

func (f *fakeStates) GetOrCreate(_ context.Context, accountID, apiFamily string) (*pkgsync.SyncState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := accountID + "/" + apiFamily
	if st, ok := f.states[key]; ok {
		return st, nil
	}
	st := &pkgsync.SyncState{AccountID: accountID, APIFamily: apiFamily, Enabled: true}
	f.states[key] = st
	return st, nil
}

func (f *fakeStates) Get(_ context.Context, accountID, apiFamily string) (*pkgsync.SyncState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[accountID+"/"+apiFamily]
	if !ok {
		return nil, errors.New("not found")
	}
	return st, nil
}

func (f *fakeStates) List(_ context.Context) ([]*pkgsync.SyncState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*pkgsync.SyncState, 0, len(f.states))
	for _, st := range f.states {
		out = append(out, st)
	}
	return out, nil
}

func (f *fakeStates) ListEnabled(ctx context.Context) ([]*pkgsync.SyncState, error) {
	all, _ := f.List(ctx)
	out := all[:0]
	for _, st := range all {
		if st.Enabled {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeStates) SetEnabled(_ context.Context, accountID, apiFamily string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[accountID+"/"+apiFamily]
	if !ok {
		return errors.New("not found")
	}
	st.Enabled = enabled
	return nil
}

// fakeRuns is an in-memory run.Manager that records terminal transitions.
type fakeRuns struct {
	mu        gosync.Mutex
	denyStart bool
	startErr  error
	cancelled map[uuid.UUID]bool

	// respectCtx makes every call fail on a cancelled context, the way a
	// real database client would.
	respectCtx bool

	started    []uuid.UUID
	completed  map[uuid.UUID]*run.CursorUpdate
	failed     map[uuid.UUID]string
	heartbeats int
	logs       []pkgsync.LogEvent
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{
		cancelled: make(map[uuid.UUID]bool),
		completed: make(map[uuid.UUID]*run.CursorUpdate),
		failed:    make(map[uuid.UUID]string),
	}
}

func (f *fakeRuns) ctxErr(ctx context.Context) error {
	if f.respectCtx {
		return ctx.Err()
	}
	return nil
}

func (f *fakeRuns) StartRun(ctx context.Context, _, _ string) (uuid.UUID, bool, error) {
	if err := f.ctxErr(ctx); err != nil {
		return uuid.Nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return uuid.Nil, false, f.startErr
	}
	if f.denyStart {
		return uuid.Nil, false, nil
	}
	id := uuid.New()
	f.started = append(f.started, id)
	return id, true, nil
}

func (f *fakeRuns) Heartbeat(ctx context.Context, _ uuid.UUID) error {
	if err := f.ctxErr(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *fakeRuns) Complete(ctx context.Context, runID uuid.UUID, _ map[string]any, update *run.CursorUpdate) error {
	if err := f.ctxErr(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelled[runID] {
		return run.ErrRunNotActive
	}
	f.completed[runID] = update
	return nil
}

func (f *fakeRuns) Fail(ctx context.Context, runID uuid.UUID, _ map[string]any, errMsg string) error {
	if err := f.ctxErr(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelled[runID] {
		return run.ErrRunNotActive
	}
	f.failed[runID] = errMsg
	return nil
}

func (f *fakeRuns) Cancel(_ context.Context, runID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled[runID] = true
	return nil
}

func (f *fakeRuns) IsCancelled(ctx context.Context, runID uuid.UUID) (bool, error) {
	if err := f.ctxErr(ctx); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled[runID], nil
}

func (f *fakeRuns) AppendLog(ctx context.Context, _ uuid.UUID, event pkgsync.LogEvent, _ map[string]any) error {
	if err := f.ctxErr(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, event)
	return nil
}

func (f *fakeRuns) GetRun(_ context.Context, _ uuid.UUID) (*pkgsync.Run, error) {
	return nil, run.ErrRunNotFound
}

func (f *fakeRuns) ListRuns(_ context.Context, _, _ string, _ int) ([]*pkgsync.Run, error) {
	return nil, nil
}

func (f *fakeRuns) ListLogs(_ context.Context, _ uuid.UUID) ([]*pkgsync.LogEntry, error) {
	return nil, nil
}

func (f *fakeRuns) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

// fakeExecutor serves a fixed sequence of pages.
type fakeExecutor struct {
	family   string
	pages    []*pkgsync.Page
	fetchErr error
	applyErr error

	mu      gosync.Mutex
	applied int
	// cancelAfterFetch cancels the run after this many fetches (0 = never)
	cancelAfterFetch int
	runs             *fakeRuns
	fetches          int
}

func (e *fakeExecutor) Family() string { return e.family }

func (e *fakeExecutor) LoadCursor(st *pkgsync.SyncState) string { return st.CursorValue }

func (e *fakeExecutor) FetchPage(_ context.Context, _, _, pageToken string) (*pkgsync.Page, error) {
	if e.fetchErr != nil {
		return nil, e.fetchErr
	}

	idx := 0
	if pageToken != "" {
		idx, _ = strconv.Atoi(pageToken)
	}
	if idx >= len(e.pages) {
		return &pkgsync.Page{}, nil
	}

	page := *e.pages[idx]
	if idx < len(e.pages)-1 {
		page.NextPageToken = strconv.Itoa(idx + 1)
	}

	e.mu.Lock()
	e.fetches++
	fetches := e.fetches
	e.mu.Unlock()
	if e.cancelAfterFetch > 0 && fetches >= e.cancelAfterFetch && e.runs != nil {
		e.runs.mu.Lock()
		for _, id := range e.runs.started {
			e.runs.cancelled[id] = true
		}
		e.runs.mu.Unlock()
	}

	return &page, nil
}

func (e *fakeExecutor) Apply(_ context.Context, _ string, items []json.RawMessage) error {
	if e.applyErr != nil {
		return e.applyErr
	}
	e.mu.Lock()
	e.applied += len(items)
	e.mu.Unlock()
	return nil
}

type allowAllCreds struct{}

func (allowAllCreds) IsAuthenticated(context.Context, string) bool { return true }

type denyAllCreds struct{}

func (denyAllCreds) IsAuthenticated(context.Context, string) bool { return false }

func rawItems(n int) []json.RawMessage {
	items := make([]json.RawMessage, n)
	for i := range items {
		items[i] = json.RawMessage(fmt.Sprintf(`{"id":%d}`, i))
	}
	return items
}

func testConfig() Config {
	return Config{
		PollInterval:      time.Minute,
		HeartbeatInterval: 10 * time.Millisecond,
		OverlapWindow:     5 * time.Minute,
		MaxConcurrentRuns: 4,
	}
}

func newTestCoordinator(t *testing.T, cfg Config, gate *fakeGate, states *fakeStates, runs *fakeRuns, executors ...pkgsync.Executor) *defaultCoordinator {
	t.Helper()
	registry, err := pkgsync.NewRegistry(executors...)
	require.NoError(t, err)
	c := New(cfg, gate, states, runs, registry, allowAllCreds{})
	return c.(*defaultCoordinator)
}

func TestTick_GlobalSwitchOff(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	states := newFakeStates(&pkgsync.SyncState{AccountID: "acme", APIFamily: "crm", Enabled: true})
	executor := &fakeExecutor{family: "crm", pages: []*pkgsync.Page{{Items: rawItems(3)}}}

	c := newTestCoordinator(t, testConfig(), &fakeGate{enabled: false}, states, runs, executor)
	c.tick(context.Background())
	c.inflight.Wait()

	assert.Zero(t, runs.startCount(), "no run should start while workers are disabled")
}

func TestTick_GlobalSwitchErrorFailsClosed(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	states := newFakeStates(&pkgsync.SyncState{AccountID: "acme", APIFamily: "crm", Enabled: true})
	executor := &fakeExecutor{family: "crm", pages: []*pkgsync.Page{{Items: rawItems(3)}}}

	gate := &fakeGate{enabled: true, err: errors.New("connection refused")}
	c := newTestCoordinator(t, testConfig(), gate, states, runs, executor)
	c.tick(context.Background())
	c.inflight.Wait()

	assert.Zero(t, runs.startCount(), "a switch read failure must not dispatch work")
}

func TestTick_CompletesAndAdvancesCursor(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	states := newFakeStates(&pkgsync.SyncState{AccountID: "acme", APIFamily: "crm", Enabled: true})
	executor := &fakeExecutor{
		family: "crm",
		pages: []*pkgsync.Page{
			{Items: rawItems(2), CandidateCursor: "2025-03-01T10:00:00Z"},
			{Items: rawItems(3), CandidateCursor: "2025-03-01T12:00:00Z"},
		},
	}

	c := newTestCoordinator(t, testConfig(), &fakeGate{enabled: true}, states, runs, executor)
	c.tick(context.Background())
	c.inflight.Wait()

	require.Equal(t, 1, runs.startCount())
	runID := runs.started[0]

	update, ok := runs.completed[runID]
	require.True(t, ok, "run should have completed")
	require.NotNil(t, update)

	// Max candidate minus the 5m overlap window.
	assert.Equal(t, "2025-03-01T11:55:00Z", update.CursorValue)
	assert.True(t, update.BackfillCompleted)
	assert.Equal(t, 5, executor.applied)
	assert.Empty(t, runs.failed)

	// start, two pages, done
	assert.Equal(t, []pkgsync.LogEvent{
		pkgsync.LogEventStart,
		pkgsync.LogEventPage,
		pkgsync.LogEventPage,
		pkgsync.LogEventDone,
	}, runs.logs)
}

func TestTick_FetchErrorFailsRunAndKeepsCursor(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	states := newFakeStates(&pkgsync.SyncState{
		AccountID:   "acme",
		APIFamily:   "crm",
		Enabled:     true,
		CursorValue: "2025-02-28T00:00:00Z",
	})
	executor := &fakeExecutor{family: "crm", fetchErr: errors.New("upstream 500")}

	c := newTestCoordinator(t, testConfig(), &fakeGate{enabled: true}, states, runs, executor)
	c.tick(context.Background())
	c.inflight.Wait()

	require.Equal(t, 1, runs.startCount())
	runID := runs.started[0]

	assert.Contains(t, runs.failed[runID], "upstream 500")
	_, completed := runs.completed[runID]
	assert.False(t, completed, "failed run must not complete")

	st, err := states.Get(context.Background(), "acme", "crm")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-28T00:00:00Z", st.CursorValue, "cursor must survive a failed run")
}

func TestTick_PageCapDefersBackfill(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	states := newFakeStates(&pkgsync.SyncState{AccountID: "acme", APIFamily: "crm", Enabled: true})
	executor := &fakeExecutor{
		family: "crm",
		pages: []*pkgsync.Page{
			{Items: rawItems(10), CandidateCursor: "2025-03-01T10:00:00Z"},
			{Items: rawItems(10), CandidateCursor: "2025-03-01T11:00:00Z"},
			{Items: rawItems(10), CandidateCursor: "2025-03-01T12:00:00Z"},
		},
	}

	cfg := testConfig()
	cfg.MaxPagesPerRun = 2
	c := newTestCoordinator(t, cfg, &fakeGate{enabled: true}, states, runs, executor)
	c.tick(context.Background())
	c.inflight.Wait()

	require.Equal(t, 1, runs.startCount())
	update := runs.completed[runs.started[0]]
	require.NotNil(t, update)
	assert.False(t, update.BackfillCompleted, "a capped run has not finished its backfill")
	assert.Equal(t, "2025-03-01T10:55:00Z", update.CursorValue)
	assert.Equal(t, 20, executor.applied, "only the capped pages should be applied")
}

func TestTick_LockContentionIsNotAnError(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	runs.denyStart = true
	states := newFakeStates(&pkgsync.SyncState{AccountID: "acme", APIFamily: "crm", Enabled: true})
	executor := &fakeExecutor{family: "crm", pages: []*pkgsync.Page{{Items: rawItems(1)}}}

	c := newTestCoordinator(t, testConfig(), &fakeGate{enabled: true}, states, runs, executor)
	c.tick(context.Background())
	c.inflight.Wait()

	assert.Zero(t, executor.applied, "a denied lock must not execute")
	assert.Empty(t, runs.failed)
	assert.Empty(t, runs.completed)
}

func TestTick_SkipsUnauthenticatedAccounts(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	states := newFakeStates(&pkgsync.SyncState{AccountID: "acme", APIFamily: "crm", Enabled: true})
	executor := &fakeExecutor{family: "crm", pages: []*pkgsync.Page{{Items: rawItems(1)}}}
	registry, err := pkgsync.NewRegistry(executor)
	require.NoError(t, err)

	c := New(testConfig(), &fakeGate{enabled: true}, states, runs, registry, denyAllCreds{}).(*defaultCoordinator)
	c.tick(context.Background())
	c.inflight.Wait()

	assert.Zero(t, runs.startCount(), "unauthenticated keys are skipped without creating runs")
}

func TestTick_SkipsFamiliesWithoutExecutor(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	states := newFakeStates(
		&pkgsync.SyncState{AccountID: "acme", APIFamily: "crm", Enabled: true},
		&pkgsync.SyncState{AccountID: "acme", APIFamily: "billing", Enabled: true},
	)
	executor := &fakeExecutor{family: "crm", pages: []*pkgsync.Page{{Items: rawItems(1)}}}

	c := newTestCoordinator(t, testConfig(), &fakeGate{enabled: true}, states, runs, executor)
	c.tick(context.Background())
	c.inflight.Wait()

	assert.Equal(t, 1, runs.startCount(), "only the family with an executor runs")
}

func TestExecuteRun_CancellationStopsAtPageBoundary(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	states := newFakeStates(&pkgsync.SyncState{AccountID: "acme", APIFamily: "crm", Enabled: true})
	executor := &fakeExecutor{
		family: "crm",
		pages: []*pkgsync.Page{
			{Items: rawItems(5), CandidateCursor: "2025-03-01T10:00:00Z"},
			{Items: rawItems(5), CandidateCursor: "2025-03-01T11:00:00Z"},
			{Items: rawItems(5), CandidateCursor: "2025-03-01T12:00:00Z"},
		},
		cancelAfterFetch: 1,
		runs:             runs,
	}

	c := newTestCoordinator(t, testConfig(), &fakeGate{enabled: true}, states, runs, executor)
	c.tick(context.Background())
	c.inflight.Wait()

	require.Equal(t, 1, runs.startCount())
	runID := runs.started[0]

	assert.Equal(t, 5, executor.applied, "only the first page should have been applied")
	_, completed := runs.completed[runID]
	assert.False(t, completed, "a cancelled run must not complete")
	assert.Empty(t, runs.failed, "operator cancellation is not a failure")

	st, err := states.Get(context.Background(), "acme", "crm")
	require.NoError(t, err)
	assert.Empty(t, st.CursorValue, "the cursor must not advance after cancellation")
}

func TestExecuteRun_PanicIsRecordedAsFailure(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	states := newFakeStates(&pkgsync.SyncState{AccountID: "acme", APIFamily: "crm", Enabled: true})
	executor := &panickyExecutor{}

	c := newTestCoordinator(t, testConfig(), &fakeGate{enabled: true}, states, runs, executor)
	c.tick(context.Background())
	c.inflight.Wait()

	require.Equal(t, 1, runs.startCount())
	assert.Contains(t, runs.failed[runs.started[0]], "panic")
}

type panickyExecutor struct{}

func (*panickyExecutor) Family() string                          { return "crm" }
func (*panickyExecutor) LoadCursor(*pkgsync.SyncState) string    { return "" }
func (*panickyExecutor) Apply(context.Context, string, []json.RawMessage) error { return nil }

func (*panickyExecutor) FetchPage(context.Context, string, string, string) (*pkgsync.Page, error) {
	panic("boom")
}

// ctxCancelExecutor cancels the run's context while serving the first page,
// the way a coordinator shutdown interrupts an in-flight run.
type ctxCancelExecutor struct {
	fakeExecutor
	cancel context.CancelFunc
}

func (e *ctxCancelExecutor) FetchPage(ctx context.Context, accountID, cursor, pageToken string) (*pkgsync.Page, error) {
	e.cancel()
	return e.fakeExecutor.FetchPage(ctx, accountID, cursor, pageToken)
}

func TestExecuteRun_CancelledContextStillFinishesRun(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	runs.respectCtx = true
	states := newFakeStates(&pkgsync.SyncState{AccountID: "acme", APIFamily: "crm", Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	executor := &ctxCancelExecutor{
		fakeExecutor: fakeExecutor{
			family: "crm",
			pages: []*pkgsync.Page{
				{Items: rawItems(3), CandidateCursor: "2025-03-01T10:00:00Z"},
				{Items: rawItems(3), CandidateCursor: "2025-03-01T11:00:00Z"},
			},
		},
		cancel: cancel,
	}

	c := newTestCoordinator(t, testConfig(), &fakeGate{enabled: true}, states, runs, executor)
	c.tick(ctx)
	c.inflight.Wait()

	require.Equal(t, 1, runs.startCount())
	runID := runs.started[0]

	// The dead context must not strand the row in running: the failure is
	// recorded on a context that survives the cancellation.
	assert.Contains(t, runs.failed[runID], "context canceled")
	_, completed := runs.completed[runID]
	assert.False(t, completed, "an interrupted run must not complete")
	assert.Contains(t, runs.logs, pkgsync.LogEventError)
}

// blockingExecutor parks in FetchPage until released.
type blockingExecutor struct {
	fakeExecutor
	release chan struct{}
}

func (e *blockingExecutor) FetchPage(ctx context.Context, accountID, cursor, pageToken string) (*pkgsync.Page, error) {
	<-e.release
	return e.fakeExecutor.FetchPage(ctx, accountID, cursor, pageToken)
}

func TestTriggerSync(t *testing.T) {
	t.Parallel()

	t.Run("respects global switch", func(t *testing.T) {
		t.Parallel()

		runs := newFakeRuns()
		states := newFakeStates()
		executor := &fakeExecutor{family: "crm", pages: []*pkgsync.Page{{Items: rawItems(1)}}}

		c := newTestCoordinator(t, testConfig(), &fakeGate{enabled: false}, states, runs, executor)
		err := c.TriggerSync(context.Background(), "acme", "crm")

		var skipped *ErrSyncSkipped
		require.ErrorAs(t, err, &skipped)
		assert.Zero(t, runs.startCount())
	})

	t.Run("rejects unknown families", func(t *testing.T) {
		t.Parallel()

		runs := newFakeRuns()
		c := newTestCoordinator(t, testConfig(), &fakeGate{enabled: true}, newFakeStates(), runs,
			&fakeExecutor{family: "crm", pages: []*pkgsync.Page{{}}})

		err := c.TriggerSync(context.Background(), "acme", "nonexistent")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no executor registered")
	})

	t.Run("skips disabled keys", func(t *testing.T) {
		t.Parallel()

		runs := newFakeRuns()
		states := newFakeStates(&pkgsync.SyncState{AccountID: "acme", APIFamily: "crm", Enabled: false})
		executor := &fakeExecutor{family: "crm", pages: []*pkgsync.Page{{Items: rawItems(1)}}}

		c := newTestCoordinator(t, testConfig(), &fakeGate{enabled: true}, states, runs, executor)
		err := c.TriggerSync(context.Background(), "acme", "crm")

		var skipped *ErrSyncSkipped
		require.ErrorAs(t, err, &skipped)
		assert.Zero(t, runs.startCount())
	})

	t.Run("executes the granted run in the background", func(t *testing.T) {
		t.Parallel()

		runs := newFakeRuns()
		states := newFakeStates()
		executor := &fakeExecutor{
			family: "crm",
			pages:  []*pkgsync.Page{{Items: rawItems(4), CandidateCursor: "2025-03-01T10:00:00Z"}},
		}

		c := newTestCoordinator(t, testConfig(), &fakeGate{enabled: true}, states, runs, executor)
		err := c.TriggerSync(context.Background(), "acme", "crm")
		require.NoError(t, err)
		c.inflight.Wait()

		require.Equal(t, 1, runs.startCount())
		update := runs.completed[runs.started[0]]
		require.NotNil(t, update)
		assert.Equal(t, "2025-03-01T09:55:00Z", update.CursorValue)
		assert.Equal(t, 4, executor.applied)
	})

	t.Run("returns before the run finishes", func(t *testing.T) {
		t.Parallel()

		runs := newFakeRuns()
		runs.respectCtx = true
		states := newFakeStates()
		release := make(chan struct{})
		executor := &blockingExecutor{
			fakeExecutor: fakeExecutor{
				family: "crm",
				pages:  []*pkgsync.Page{{Items: rawItems(2), CandidateCursor: "2025-03-01T10:00:00Z"}},
			},
			release: release,
		}

		c := newTestCoordinator(t, testConfig(), &fakeGate{enabled: true}, states, runs, executor)

		reqCtx, cancelReq := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- c.TriggerSync(reqCtx, "acme", "crm") }()

		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("TriggerSync did not return while the run was still fetching")
		}
		require.Equal(t, 1, runs.startCount())
		assert.Empty(t, runs.completed, "the run is still in flight")

		// The request going away must not abort or wedge the run.
		cancelReq()
		close(release)
		c.inflight.Wait()

		update := runs.completed[runs.started[0]]
		require.NotNil(t, update)
		assert.Equal(t, "2025-03-01T09:55:00Z", update.CursorValue)
		assert.Empty(t, runs.failed)
	})

	t.Run("reports lock contention", func(t *testing.T) {
		t.Parallel()

		runs := newFakeRuns()
		runs.denyStart = true
		states := newFakeStates()
		executor := &fakeExecutor{family: "crm", pages: []*pkgsync.Page{{Items: rawItems(1)}}}

		c := newTestCoordinator(t, testConfig(), &fakeGate{enabled: true}, states, runs, executor)
		err := c.TriggerSync(context.Background(), "acme", "crm")

		var skipped *ErrSyncSkipped
		require.ErrorAs(t, err, &skipped)
		assert.Contains(t, skipped.Reason, "already in flight")
	})
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	states := newFakeStates(&pkgsync.SyncState{AccountID: "acme", APIFamily: "crm", Enabled: true})
	executor := &fakeExecutor{
		family: "crm",
		pages:  []*pkgsync.Page{{Items: rawItems(2), CandidateCursor: "2025-03-01T10:00:00Z"}},
	}

	cfg := testConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.PollJitter = 0
	c := newTestCoordinator(t, cfg, &fakeGate{enabled: true}, states, runs, executor)

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	// Let the initial tick run.
	require.Eventually(t, func() bool {
		return runs.startCount() >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Stop())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestConcurrencyLimit(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	var states []*pkgsync.SyncState
	var executors []pkgsync.Executor
	for i := 0; i < 6; i++ {
		family := fmt.Sprintf("family-%d", i)
		states = append(states, &pkgsync.SyncState{AccountID: "acme", APIFamily: family, Enabled: true})
		executors = append(executors, &fakeExecutor{
			family: family,
			pages:  []*pkgsync.Page{{Items: rawItems(1), CandidateCursor: "2025-03-01T10:00:00Z"}},
		})
	}

	cfg := testConfig()
	cfg.MaxConcurrentRuns = 2
	c := newTestCoordinator(t, cfg, &fakeGate{enabled: true}, newFakeStates(states...), runs, executors...)
	c.tick(context.Background())
	c.inflight.Wait()

	assert.Equal(t, 6, runs.startCount(), "every key eventually runs")
	assert.Len(t, runs.completed, 6)
}
