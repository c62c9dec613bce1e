package sync

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of a worker run
type RunStatus string

const (
	// RunStatusRunning means the run currently holds the lock for its key
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted means the run finished successfully
	RunStatusCompleted RunStatus = "completed"

	// RunStatusError means the run finished with an error
	RunStatusError RunStatus = "error"

	// RunStatusCancelled means an operator cancelled the run
	RunStatusCancelled RunStatus = "cancelled"

	// RunStatusStale means a later tick reclaimed the run's lock after its
	// heartbeat went quiet
	RunStatusStale RunStatus = "stale"
)

// Terminal reports whether the status permits no further transitions
func (s RunStatus) Terminal() bool {
	return s != RunStatusRunning
}

// LogEvent classifies entries in the structured run log
type LogEvent string

const (
	// LogEventStart is written when a run acquires its lock
	LogEventStart LogEvent = "start"

	// LogEventPage is written after each fetched and applied page
	LogEventPage LogEvent = "page"

	// LogEventDone is written when a run finishes successfully
	LogEventDone LogEvent = "done"

	// LogEventError is written when a run fails
	LogEventError LogEvent = "error"
)

// SyncState is the per-(account, api_family) cursor and enable-flag record
type SyncState struct {
	AccountID         string     `json:"account_id"`
	APIFamily         string     `json:"api_family"`
	Enabled           bool       `json:"enabled"`
	BackfillCompleted bool       `json:"backfill_completed"`
	CursorType        string     `json:"cursor_type,omitempty"`
	CursorValue       string     `json:"cursor_value,omitempty"`
	LastRunAt         *time.Time `json:"last_run_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
}

// GlobalConfig is the singleton worker configuration
type GlobalConfig struct {
	WorkersEnabled bool           `json:"workers_enabled"`
	Defaults       map[string]any `json:"defaults,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Run is one execution attempt for a key. A run with status "running" is the
// distributed lock for its (account_id, api_family).
type Run struct {
	ID          uuid.UUID      `json:"id"`
	AccountID   string         `json:"account_id"`
	APIFamily   string         `json:"api_family"`
	Status      RunStatus      `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	HeartbeatAt time.Time      `json:"heartbeat_at"`
	Summary     map[string]any `json:"summary,omitempty"`
}

// LogEntry is one append-only record in a run's structured log
type LogEntry struct {
	ID        int64          `json:"id"`
	RunID     uuid.UUID      `json:"run_id"`
	Event     LogEvent       `json:"event_type"`
	CreatedAt time.Time      `json:"created_at"`
	Details   map[string]any `json:"details,omitempty"`
}
