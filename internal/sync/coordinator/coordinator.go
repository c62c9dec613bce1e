package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	gosync "sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/syncline/syncline/internal/heartbeat"
	"github.com/syncline/syncline/internal/otel"
	pkgsync "github.com/syncline/syncline/internal/sync"
	"github.com/syncline/syncline/internal/sync/run"
	"github.com/syncline/syncline/internal/sync/state"
	"github.com/syncline/syncline/internal/telemetry"
)

// workerName identifies the coordinator in the liveness table.
const workerName = "sync-coordinator"

// Coordinator manages background sync scheduling and execution for all
// configured (account, api_family) keys.
type Coordinator interface {
	// Start begins background sync coordination.
	// Blocks until the context is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully stops the coordinator and waits for in-flight runs.
	Stop() error

	// TriggerSync runs one key immediately, equivalent to a scheduler tick
	// for that key alone. It respects the global switch, the per-key enable
	// flag, and the run lock, and returns once the lock decision is made;
	// the granted run executes in the background.
	TriggerSync(ctx context.Context, accountID, apiFamily string) error
}

// ErrSyncSkipped is returned by TriggerSync when the key could not run:
// workers disabled, key disabled, unauthenticated account, or lock held.
type ErrSyncSkipped struct {
	Reason string
}

func (e *ErrSyncSkipped) Error() string {
	return fmt.Sprintf("sync skipped: %s", e.Reason)
}

// Seeder populates the sync state registry at startup. Implemented by the
// serve command using the configured accounts x families.
type Seeder func(ctx context.Context, states state.Service) error

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	cfg       Config
	gate      state.GlobalSwitch
	states    state.Service
	runs      run.Manager
	executors *pkgsync.Registry
	creds     pkgsync.CredentialChecker
	seeder    Seeder

	// Lifecycle management
	mu         gosync.Mutex
	runCtx     context.Context
	cancelFunc context.CancelFunc
	done       chan struct{}
	inflight   gosync.WaitGroup
	sem        chan struct{}

	// Observability
	metrics  *telemetry.RunMetrics
	recorder heartbeat.Recorder
	tracer   trace.Tracer
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithRunMetrics sets the run metrics for the coordinator
func WithRunMetrics(metrics *telemetry.RunMetrics) Option {
	return func(c *defaultCoordinator) {
		c.metrics = metrics
	}
}

// WithSeeder sets a startup seeder that get-or-creates the configured keys
func WithSeeder(seeder Seeder) Option {
	return func(c *defaultCoordinator) {
		c.seeder = seeder
	}
}

// WithHeartbeatRecorder sets the worker liveness recorder
func WithHeartbeatRecorder(recorder heartbeat.Recorder) Option {
	return func(c *defaultCoordinator) {
		c.recorder = recorder
	}
}

// WithTracer sets the tracer used to span each run
func WithTracer(tracer trace.Tracer) Option {
	return func(c *defaultCoordinator) {
		c.tracer = tracer
	}
}

// startSpan starts a span when tracing is configured, a no-op span otherwise
func (c *defaultCoordinator) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.StartSpan(ctx, c.tracer, name, opts...)
}

// New creates a new coordinator with injected dependencies
func New(
	cfg Config,
	gate state.GlobalSwitch,
	states state.Service,
	runs run.Manager,
	executors *pkgsync.Registry,
	creds pkgsync.CredentialChecker,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		cfg:       cfg,
		gate:      gate,
		states:    states,
		runs:      runs,
		executors: executors,
		creds:     creds,
		done:      make(chan struct{}),
		sem:       make(chan struct{}, cfg.MaxConcurrentRuns),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// pollingInterval returns the base interval with a random jitter applied so
// multiple replicas don't poll the database simultaneously.
func (c *defaultCoordinator) pollingInterval() time.Duration {
	if c.cfg.PollJitter <= 0 {
		return c.cfg.PollInterval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	offset := time.Duration(rand.Int64N(int64(2*c.cfg.PollJitter))) - c.cfg.PollJitter
	return c.cfg.PollInterval + offset
}

// Start begins background sync coordination
func (c *defaultCoordinator) Start(ctx context.Context) error {
	slog.Info("Starting sync coordinator",
		"families", c.executors.Families(),
		"poll_interval", c.cfg.PollInterval)

	coordCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.runCtx = coordCtx
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer func() {
		c.inflight.Wait()
		close(c.done)
		slog.Info("Sync coordinator shut down")
	}()

	if c.seeder != nil {
		if err := c.seeder(coordCtx, c.states); err != nil {
			return fmt.Errorf("failed to seed sync states: %w", err)
		}
	}

	interval := c.pollingInterval()
	slog.Info("Configured coordinator tick interval",
		"base_interval", c.cfg.PollInterval,
		"actual_interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Perform an initial tick before the first interval elapses
	c.tick(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.tick(coordCtx)

			// Recalculate interval with new jitter for the next iteration
			ticker.Reset(c.pollingInterval())
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()
	if cancel != nil {
		slog.Info("Stopping sync coordinator")
		cancel()
		<-c.done
	}
	return nil
}

// detachedContext returns the coordinator's lifecycle context, so a
// triggered run shuts down with the coordinator rather than with the HTTP
// request that started it. Before Start, the caller's context is used with
// its cancellation stripped.
func (c *defaultCoordinator) detachedContext(ctx context.Context) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runCtx != nil {
		return c.runCtx
	}
	return context.WithoutCancel(ctx)
}

// tick performs one scheduling pass over all enabled keys
func (c *defaultCoordinator) tick(ctx context.Context) {
	if c.recorder != nil {
		if err := c.recorder.Started(ctx, workerName, c.cfg.PollInterval); err != nil {
			slog.Warn("Failed to record coordinator heartbeat", "error", err)
		}
	}

	// Re-read the switch every tick; fail closed on storage errors.
	enabled, err := c.gate.WorkersEnabled(ctx)
	if err != nil {
		slog.Error("Error reading global worker switch, treating as disabled", "error", err)
		c.recordTickResult(ctx, err)
		return
	}
	if !enabled {
		slog.Debug("Workers globally disabled, skipping tick")
		c.recordTickResult(ctx, nil)
		return
	}

	states, err := c.states.ListEnabled(ctx)
	if err != nil {
		slog.Error("Error listing enabled sync states", "error", err)
		c.recordTickResult(ctx, err)
		return
	}
	defer c.recordTickResult(ctx, nil)

	for _, st := range states {
		executor, ok := c.executors.Get(st.APIFamily)
		if !ok {
			slog.Debug("No executor registered for family, skipping",
				"api_family", st.APIFamily)
			continue
		}
		if !c.creds.IsAuthenticated(ctx, st.AccountID) {
			slog.Debug("Account not authenticated, skipping",
				"account_id", st.AccountID,
				"api_family", st.APIFamily)
			continue
		}

		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		c.inflight.Add(1)
		go func(st *pkgsync.SyncState, executor pkgsync.Executor) {
			defer c.inflight.Done()
			defer func() { <-c.sem }()
			c.runKey(ctx, st, executor)
		}(st, executor)
	}
}

// recordTickResult closes out the tick's liveness record
func (c *defaultCoordinator) recordTickResult(ctx context.Context, tickErr error) {
	if c.recorder == nil {
		return
	}
	var err error
	if tickErr != nil {
		err = c.recorder.Failed(ctx, workerName, tickErr.Error())
	} else {
		err = c.recorder.Succeeded(ctx, workerName)
	}
	if err != nil {
		slog.Warn("Failed to record coordinator heartbeat", "error", err)
	}
}

// runKey attempts the lock for one key and executes the sync when granted
func (c *defaultCoordinator) runKey(ctx context.Context, st *pkgsync.SyncState, executor pkgsync.Executor) {
	runID, acquired, err := c.runs.StartRun(ctx, st.AccountID, st.APIFamily)
	if err != nil {
		slog.Error("Error starting run",
			"account_id", st.AccountID,
			"api_family", st.APIFamily,
			"error", err)
		return
	}
	if !acquired {
		// Another replica (or a previous slow run) holds the lock.
		slog.Debug("Run lock held elsewhere, skipping tick for key",
			"account_id", st.AccountID,
			"api_family", st.APIFamily)
		return
	}

	c.executeRun(ctx, runID, st, executor)
}

// TriggerSync runs one key immediately
func (c *defaultCoordinator) TriggerSync(ctx context.Context, accountID, apiFamily string) error {
	enabled, err := c.gate.WorkersEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to read global worker switch: %w", err)
	}
	if !enabled {
		return &ErrSyncSkipped{Reason: "workers globally disabled"}
	}

	executor, ok := c.executors.Get(apiFamily)
	if !ok {
		return fmt.Errorf("no executor registered for family %q", apiFamily)
	}
	if !c.creds.IsAuthenticated(ctx, accountID) {
		return &ErrSyncSkipped{Reason: "account not authenticated"}
	}

	st, err := c.states.GetOrCreate(ctx, accountID, apiFamily)
	if err != nil {
		return err
	}
	if !st.Enabled {
		return &ErrSyncSkipped{Reason: "sync disabled for key"}
	}

	runID, acquired, err := c.runs.StartRun(ctx, accountID, apiFamily)
	if err != nil {
		return err
	}
	if !acquired {
		return &ErrSyncSkipped{Reason: "a run is already in flight for this key"}
	}

	// The run outlives the request: a first backfill can take far longer
	// than any request timeout allows.
	runCtx := c.detachedContext(ctx)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.executeRun(runCtx, runID, st, executor)
	}()
	return nil
}
