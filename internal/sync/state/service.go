// Package state contains persistence for per-key sync state and the global
// worker switch.
package state

import (
	"context"

	pkgsync "github.com/syncline/syncline/internal/sync"
)

// Service provides access to the per-(account, api_family) sync state
// registry.
type Service interface {
	// GetOrCreate returns the sync state for the key, creating it with
	// defaults (enabled, backfill pending, no cursor) on first reference.
	// Concurrent calls for the same key never create duplicate rows.
	GetOrCreate(ctx context.Context, accountID, apiFamily string) (*pkgsync.SyncState, error)

	// Get returns the sync state for the key, or ErrSyncStateNotFound.
	Get(ctx context.Context, accountID, apiFamily string) (*pkgsync.SyncState, error)

	// List returns all sync states.
	List(ctx context.Context) ([]*pkgsync.SyncState, error)

	// ListEnabled returns the sync states eligible for scheduling.
	ListEnabled(ctx context.Context) ([]*pkgsync.SyncState, error)

	// SetEnabled toggles scheduling for one key.
	SetEnabled(ctx context.Context, accountID, apiFamily string, enabled bool) error
}

// GlobalSwitch is the singleton on/off flag consulted before any work is
// dispatched. Implementations must not cache: the scheduler re-reads the
// switch on every tick so a toggle takes effect without restarting anything.
type GlobalSwitch interface {
	// WorkersEnabled reports whether workers may run. Storage failures fail
	// closed: the error is returned alongside enabled=false so a scheduler
	// outage never produces runaway workers.
	WorkersEnabled(ctx context.Context) (bool, error)

	// SetWorkersEnabled flips the switch and returns the updated config.
	SetWorkersEnabled(ctx context.Context, enabled bool) (*pkgsync.GlobalConfig, error)

	// Get returns the current global config.
	Get(ctx context.Context) (*pkgsync.GlobalConfig, error)
}
