// Package run implements the worker run lifecycle: the distributed lock,
// heartbeats, terminal transitions, and the append-only run log.
package run

import (
	"context"
	"errors"

	"github.com/google/uuid"

	pkgsync "github.com/syncline/syncline/internal/sync"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// ErrRunNotActive is returned by terminal transitions when the run is no
// longer in the running state - typically because an operator cancelled it
// or a later tick reclaimed it as stale while the worker was still going.
var ErrRunNotActive = errors.New("run is not active")

// CursorUpdate carries the sync-state changes applied atomically with a
// successful finish. A nil CursorUpdate finishes the run without touching
// the cursor (a run that observed no records still completes).
type CursorUpdate struct {
	// CursorType labels the token format, e.g. "timestamp"
	CursorType string

	// CursorValue is the new resumption token, already overlap-adjusted
	CursorValue string

	// BackfillCompleted marks the key as done with its historical pass.
	// Once set it never unsets; the flag is OR-ed with the stored value.
	BackfillCompleted bool
}

// Manager owns the worker_runs table and the mutual-exclusion guarantee:
// at most one running row per (account_id, api_family), across every process
// replica that shares the database.
type Manager interface {
	// StartRun attempts to acquire the run lock for a key. It returns the
	// new run id and acquired=true on success, or acquired=false when a
	// fresh run already holds the lock. Runs whose heartbeat is older than
	// the stale threshold are reclaimed (flipped to stale) in the same
	// transaction before the insert, so a crashed worker never wedges its
	// key permanently.
	StartRun(ctx context.Context, accountID, apiFamily string) (uuid.UUID, bool, error)

	// Heartbeat refreshes the run's liveness timestamp. Returns
	// ErrRunNotActive if the run has been cancelled or reclaimed.
	Heartbeat(ctx context.Context, runID uuid.UUID) error

	// Complete finishes a run successfully and, in the same transaction,
	// advances the key's cursor per the CursorUpdate and clears last_error.
	Complete(ctx context.Context, runID uuid.UUID, summary map[string]any, update *CursorUpdate) error

	// Fail finishes a run with an error. The cursor is left untouched so
	// the same window is retried; the message lands in SyncState.LastError.
	Fail(ctx context.Context, runID uuid.UUID, summary map[string]any, errMsg string) error

	// Cancel marks a running run cancelled (operator action). The worker
	// observes this cooperatively at its next checkpoint.
	Cancel(ctx context.Context, runID uuid.UUID) error

	// IsCancelled reports whether the run has left the running state,
	// used by workers as a page-boundary cancellation checkpoint.
	IsCancelled(ctx context.Context, runID uuid.UUID) (bool, error)

	// AppendLog appends one structured event to the run's log.
	AppendLog(ctx context.Context, runID uuid.UUID, event pkgsync.LogEvent, details map[string]any) error

	// GetRun returns one run by id.
	GetRun(ctx context.Context, runID uuid.UUID) (*pkgsync.Run, error)

	// ListRuns returns the most recent runs for a key, newest first.
	ListRuns(ctx context.Context, accountID, apiFamily string, limit int) ([]*pkgsync.Run, error)

	// ListLogs returns a run's log entries in insertion order.
	ListLogs(ctx context.Context, runID uuid.UUID) ([]*pkgsync.LogEntry, error)
}
