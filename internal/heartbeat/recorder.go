// Package heartbeat records coarse per-worker liveness for operational
// visibility: when each named background worker last started and finished,
// and how its recent iterations went. This is dashboard data, not the
// per-run heartbeat the lock reclamation uses.
package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syncline/syncline/internal/db/sqlc"
)

// Heartbeat is one worker's liveness record.
type Heartbeat struct {
	WorkerName           string     `json:"worker_name"`
	IntervalSeconds      int32      `json:"interval_seconds"`
	LastStartedAt        *time.Time `json:"last_started_at,omitempty"`
	LastFinishedAt       *time.Time `json:"last_finished_at,omitempty"`
	LastStatus           string     `json:"last_status,omitempty"`
	LastErrorMessage     string     `json:"last_error_message,omitempty"`
	ConsecutiveSuccesses int32      `json:"consecutive_successes"`
	ConsecutiveErrors    int32      `json:"consecutive_errors"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Recorder persists worker liveness events.
type Recorder interface {
	// Started records that the named worker began an iteration. The row is
	// created on first use.
	Started(ctx context.Context, workerName string, interval time.Duration) error

	// Succeeded records a finished iteration, resetting the error streak.
	Succeeded(ctx context.Context, workerName string) error

	// Failed records a failed iteration with its error message.
	Failed(ctx context.Context, workerName string, errMsg string) error

	// Get returns one worker's record.
	Get(ctx context.Context, workerName string) (*Heartbeat, error)

	// List returns all worker records, ordered by name.
	List(ctx context.Context) ([]*Heartbeat, error)
}

type dbRecorder struct {
	queries *sqlc.Queries
}

// NewDBRecorder creates a database-backed heartbeat recorder.
func NewDBRecorder(pool *pgxpool.Pool) Recorder {
	return &dbRecorder{queries: sqlc.New(pool)}
}

func (r *dbRecorder) Started(ctx context.Context, workerName string, interval time.Duration) error {
	if workerName == "" {
		return fmt.Errorf("worker name is required")
	}
	return r.queries.UpsertHeartbeatStart(ctx, sqlc.UpsertHeartbeatStartParams{
		WorkerName:      workerName,
		IntervalSeconds: int32(interval / time.Second),
	})
}

func (r *dbRecorder) Succeeded(ctx context.Context, workerName string) error {
	affected, err := r.queries.RecordHeartbeatSuccess(ctx, workerName)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no heartbeat row for worker %q; Started was never called", workerName)
	}
	return nil
}

func (r *dbRecorder) Failed(ctx context.Context, workerName string, errMsg string) error {
	affected, err := r.queries.RecordHeartbeatFailure(ctx, sqlc.RecordHeartbeatFailureParams{
		WorkerName:       workerName,
		LastErrorMessage: &errMsg,
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no heartbeat row for worker %q; Started was never called", workerName)
	}
	return nil
}

func (r *dbRecorder) Get(ctx context.Context, workerName string) (*Heartbeat, error) {
	row, err := r.queries.GetHeartbeat(ctx, workerName)
	if err != nil {
		return nil, err
	}
	return dbHeartbeatToDomain(row), nil
}

func (r *dbRecorder) List(ctx context.Context) ([]*Heartbeat, error) {
	rows, err := r.queries.ListHeartbeats(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Heartbeat, 0, len(rows))
	for _, row := range rows {
		out = append(out, dbHeartbeatToDomain(row))
	}
	return out, nil
}

func dbHeartbeatToDomain(row sqlc.BackgroundWorkerHeartbeat) *Heartbeat {
	hb := &Heartbeat{
		WorkerName:           row.WorkerName,
		IntervalSeconds:      row.IntervalSeconds,
		LastStartedAt:        row.LastStartedAt,
		LastFinishedAt:       row.LastFinishedAt,
		ConsecutiveSuccesses: row.ConsecutiveSuccesses,
		ConsecutiveErrors:    row.ConsecutiveErrors,
		UpdatedAt:            row.UpdatedAt,
	}
	if row.LastStatus != nil {
		hb.LastStatus = *row.LastStatus
	}
	if row.LastErrorMessage != nil {
		hb.LastErrorMessage = *row.LastErrorMessage
	}
	return hb
}
