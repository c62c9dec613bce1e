package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syncline/syncline/internal/db/sqlc"
	pkgsync "github.com/syncline/syncline/internal/sync"
)

type dbManager struct {
	pool           *pgxpool.Pool
	staleThreshold time.Duration
}

// NewDBManager creates a database-backed run manager. staleThreshold is the
// maximum heartbeat age before a running row may be reclaimed by a later
// StartRun on the same key.
func NewDBManager(pool *pgxpool.Pool, staleThreshold time.Duration) Manager {
	return &dbManager{
		pool:           pool,
		staleThreshold: staleThreshold,
	}
}

func (m *dbManager) StartRun(ctx context.Context, accountID, apiFamily string) (uuid.UUID, bool, error) {
	if accountID == "" || apiFamily == "" {
		return uuid.Nil, false, fmt.Errorf("account id and api family are required")
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	queries := sqlc.New(m.pool).WithTx(tx)

	// Reclaim any running row whose heartbeat went quiet. This is the
	// self-healing path for crashed workers: no external supervisor needed.
	cutoff := time.Now().Add(-m.staleThreshold)
	reclaimed, err := queries.MarkStaleRuns(ctx, sqlc.MarkStaleRunsParams{
		AccountID:   accountID,
		ApiFamily:   apiFamily,
		HeartbeatAt: cutoff,
	})
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to reclaim stale runs: %w", err)
	}
	if reclaimed > 0 {
		slog.Warn("Reclaimed stale run",
			"account_id", accountID,
			"api_family", apiFamily,
			"heartbeat_cutoff", cutoff)
	}

	// The partial unique index on (account_id, api_family) WHERE
	// status='running' makes this insert the lock acquisition: exactly one
	// concurrent caller gets a row back, the rest hit the conflict.
	runID, err := queries.InsertRunningRun(ctx, sqlc.InsertRunningRunParams{
		AccountID: accountID,
		ApiFamily: apiFamily,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// A fresh run holds the lock. Not an error; skip this tick.
			return uuid.Nil, false, tx.Commit(ctx)
		}
		return uuid.Nil, false, fmt.Errorf("failed to insert run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to commit run start: %w", err)
	}
	return runID, true, nil
}

func (m *dbManager) Heartbeat(ctx context.Context, runID uuid.UUID) error {
	affected, err := sqlc.New(m.pool).UpdateRunHeartbeat(ctx, runID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotActive
	}
	return nil
}

func (m *dbManager) Complete(ctx context.Context, runID uuid.UUID, summary map[string]any, update *CursorUpdate) error {
	return m.finish(ctx, runID, sqlc.RunStatusCompleted, summary, func(ctx context.Context, queries *sqlc.Queries, r sqlc.WorkerRun) error {
		params := sqlc.RecordRunSuccessParams{
			AccountID: r.AccountID,
			ApiFamily: r.ApiFamily,
		}
		if update != nil {
			if update.CursorValue != "" {
				params.CursorValue = &update.CursorValue
			}
			if update.CursorType != "" {
				params.CursorType = &update.CursorType
			}
			params.BackfillCompleted = update.BackfillCompleted
		}
		return queries.RecordRunSuccess(ctx, params)
	})
}

func (m *dbManager) Fail(ctx context.Context, runID uuid.UUID, summary map[string]any, errMsg string) error {
	return m.finish(ctx, runID, sqlc.RunStatusError, summary, func(ctx context.Context, queries *sqlc.Queries, r sqlc.WorkerRun) error {
		return queries.RecordRunFailure(ctx, sqlc.RecordRunFailureParams{
			AccountID: r.AccountID,
			ApiFamily: r.ApiFamily,
			LastError: &errMsg,
		})
	})
}

func (m *dbManager) Cancel(ctx context.Context, runID uuid.UUID) error {
	return m.finish(ctx, runID, sqlc.RunStatusCancelled, nil, nil)
}

// finish performs a terminal transition and the accompanying sync-state
// update as one transaction. The FinishRun update is conditioned on
// status='running', so a run can only be finished once: the losing caller
// gets ErrRunNotActive.
func (m *dbManager) finish(
	ctx context.Context,
	runID uuid.UUID,
	status sqlc.RunStatus,
	summary map[string]any,
	updateState func(context.Context, *sqlc.Queries, sqlc.WorkerRun) error,
) error {
	summaryJSON, err := encodeSummary(summary)
	if err != nil {
		return err
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	queries := sqlc.New(m.pool).WithTx(tx)

	r, err := queries.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRunNotFound
		}
		return err
	}

	affected, err := queries.FinishRun(ctx, sqlc.FinishRunParams{
		ID:      runID,
		Status:  status,
		Summary: summaryJSON,
	})
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if affected == 0 {
		// Already terminal - cancelled by an operator or reclaimed as
		// stale. The cursor must not advance in that case.
		return ErrRunNotActive
	}

	if updateState != nil {
		if err := updateState(ctx, queries, r); err != nil {
			return fmt.Errorf("failed to update sync state: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (m *dbManager) IsCancelled(ctx context.Context, runID uuid.UUID) (bool, error) {
	status, err := sqlc.New(m.pool).GetRunStatus(ctx, runID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrRunNotFound
		}
		return false, err
	}
	return status != sqlc.RunStatusRunning, nil
}

func (m *dbManager) AppendLog(ctx context.Context, runID uuid.UUID, event pkgsync.LogEvent, details map[string]any) error {
	detailsJSON, err := encodeSummary(details)
	if err != nil {
		return err
	}
	_, err = sqlc.New(m.pool).InsertRunLog(ctx, sqlc.InsertRunLogParams{
		RunID:     runID,
		EventType: sqlc.LogEvent(event),
		Details:   detailsJSON,
	})
	return err
}

func (m *dbManager) GetRun(ctx context.Context, runID uuid.UUID) (*pkgsync.Run, error) {
	row, err := sqlc.New(m.pool).GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return dbRunToDomain(row)
}

func (m *dbManager) ListRuns(ctx context.Context, accountID, apiFamily string, limit int) ([]*pkgsync.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := sqlc.New(m.pool).ListRunsByKey(ctx, sqlc.ListRunsByKeyParams{
		AccountID: accountID,
		ApiFamily: apiFamily,
		Limit:     int32(limit),
	})
	if err != nil {
		return nil, err
	}

	runs := make([]*pkgsync.Run, 0, len(rows))
	for _, row := range rows {
		r, err := dbRunToDomain(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}

func (m *dbManager) ListLogs(ctx context.Context, runID uuid.UUID) ([]*pkgsync.LogEntry, error) {
	rows, err := sqlc.New(m.pool).ListRunLogs(ctx, runID)
	if err != nil {
		return nil, err
	}

	entries := make([]*pkgsync.LogEntry, 0, len(rows))
	for _, row := range rows {
		entry := &pkgsync.LogEntry{
			ID:        row.ID,
			RunID:     row.RunID,
			Event:     pkgsync.LogEvent(row.EventType),
			CreatedAt: row.CreatedAt,
		}
		if len(row.Details) > 0 {
			if err := json.Unmarshal(row.Details, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to decode log details: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func dbRunToDomain(row sqlc.WorkerRun) (*pkgsync.Run, error) {
	r := &pkgsync.Run{
		ID:          row.ID,
		AccountID:   row.AccountID,
		APIFamily:   row.ApiFamily,
		Status:      pkgsync.RunStatus(row.Status),
		StartedAt:   row.StartedAt,
		FinishedAt:  row.FinishedAt,
		HeartbeatAt: row.HeartbeatAt,
	}
	if len(row.Summary) > 0 {
		if err := json.Unmarshal(row.Summary, &r.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode run summary: %w", err)
		}
	}
	return r, nil
}

func encodeSummary(summary map[string]any) ([]byte, error) {
	if summary == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}
	return data, nil
}
