package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syncline/syncline/internal/db/sqlc"
	pkgsync "github.com/syncline/syncline/internal/sync"
)

// ErrSyncStateNotFound is returned when a sync state can't be found.
var ErrSyncStateNotFound = errors.New("sync state not found")

type dbStateService struct {
	pool *pgxpool.Pool
}

// NewDBService creates a new database-backed sync state service
func NewDBService(pool *pgxpool.Pool) Service {
	return &dbStateService{pool: pool}
}

func (d *dbStateService) GetOrCreate(ctx context.Context, accountID, apiFamily string) (*pkgsync.SyncState, error) {
	if accountID == "" || apiFamily == "" {
		return nil, fmt.Errorf("account id and api family are required")
	}

	queries := sqlc.New(d.pool)

	// The unique constraint on (account_id, api_family) makes this safe under
	// concurrency: at most one insert wins and everyone reads the same row.
	err := queries.InsertSyncState(ctx, sqlc.InsertSyncStateParams{
		AccountID: accountID,
		ApiFamily: apiFamily,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sync state: %w", err)
	}

	row, err := queries.GetSyncState(ctx, sqlc.GetSyncStateParams{
		AccountID: accountID,
		ApiFamily: apiFamily,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}

	return dbSyncStateToDomain(row), nil
}

func (d *dbStateService) Get(ctx context.Context, accountID, apiFamily string) (*pkgsync.SyncState, error) {
	row, err := sqlc.New(d.pool).GetSyncState(ctx, sqlc.GetSyncStateParams{
		AccountID: accountID,
		ApiFamily: apiFamily,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSyncStateNotFound
		}
		return nil, err
	}
	return dbSyncStateToDomain(row), nil
}

func (d *dbStateService) List(ctx context.Context) ([]*pkgsync.SyncState, error) {
	rows, err := sqlc.New(d.pool).ListSyncStates(ctx)
	if err != nil {
		return nil, err
	}
	return dbSyncStatesToDomain(rows), nil
}

func (d *dbStateService) ListEnabled(ctx context.Context) ([]*pkgsync.SyncState, error) {
	rows, err := sqlc.New(d.pool).ListEnabledSyncStates(ctx)
	if err != nil {
		return nil, err
	}
	return dbSyncStatesToDomain(rows), nil
}

func (d *dbStateService) SetEnabled(ctx context.Context, accountID, apiFamily string, enabled bool) error {
	affected, err := sqlc.New(d.pool).SetSyncStateEnabled(ctx, sqlc.SetSyncStateEnabledParams{
		AccountID: accountID,
		ApiFamily: apiFamily,
		Enabled:   enabled,
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSyncStateNotFound
	}
	return nil
}

func dbSyncStatesToDomain(rows []sqlc.SyncState) []*pkgsync.SyncState {
	result := make([]*pkgsync.SyncState, 0, len(rows))
	for _, row := range rows {
		result = append(result, dbSyncStateToDomain(row))
	}
	return result
}

// dbSyncStateToDomain converts a database SyncState to the domain type
func dbSyncStateToDomain(row sqlc.SyncState) *pkgsync.SyncState {
	st := &pkgsync.SyncState{
		AccountID:         row.AccountID,
		APIFamily:         row.ApiFamily,
		Enabled:           row.Enabled,
		BackfillCompleted: row.BackfillCompleted,
		LastRunAt:         row.LastRunAt,
	}
	if row.CursorType != nil {
		st.CursorType = *row.CursorType
	}
	if row.CursorValue != nil {
		st.CursorValue = *row.CursorValue
	}
	if row.LastError != nil {
		st.LastError = *row.LastError
	}
	return st
}

type dbGlobalSwitch struct {
	pool *pgxpool.Pool
}

// NewDBGlobalSwitch creates a database-backed global worker switch
func NewDBGlobalSwitch(pool *pgxpool.Pool) GlobalSwitch {
	return &dbGlobalSwitch{pool: pool}
}

func (d *dbGlobalSwitch) WorkersEnabled(ctx context.Context) (bool, error) {
	cfg, err := d.Get(ctx)
	if err != nil {
		// Fail closed: a storage outage must not produce runaway workers.
		return false, err
	}
	return cfg.WorkersEnabled, nil
}

func (d *dbGlobalSwitch) SetWorkersEnabled(ctx context.Context, enabled bool) (*pkgsync.GlobalConfig, error) {
	queries := sqlc.New(d.pool)

	if err := queries.EnsureGlobalConfig(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure global config: %w", err)
	}

	row, err := queries.SetWorkersEnabled(ctx, enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to set workers enabled: %w", err)
	}
	return dbGlobalConfigToDomain(row)
}

func (d *dbGlobalSwitch) Get(ctx context.Context) (*pkgsync.GlobalConfig, error) {
	queries := sqlc.New(d.pool)

	row, err := queries.GetGlobalConfig(ctx)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		// Lazy singleton creation on first access
		if err := queries.EnsureGlobalConfig(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure global config: %w", err)
		}
		row, err = queries.GetGlobalConfig(ctx)
		if err != nil {
			return nil, err
		}
	}
	return dbGlobalConfigToDomain(row)
}

func dbGlobalConfigToDomain(row sqlc.GlobalWorkerConfig) (*pkgsync.GlobalConfig, error) {
	cfg := &pkgsync.GlobalConfig{
		WorkersEnabled: row.WorkersEnabled,
		UpdatedAt:      row.UpdatedAt,
	}
	if len(row.Defaults) > 0 {
		if err := json.Unmarshal(row.Defaults, &cfg.Defaults); err != nil {
			return nil, fmt.Errorf("failed to decode global defaults: %w", err)
		}
	}
	return cfg, nil
}
