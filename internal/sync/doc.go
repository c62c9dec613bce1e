// Package sync defines the orchestration contracts for per-account
// incremental data synchronization.
//
// The hard problem this package and its subpackages solve is not the HTTP
// fetching itself but the coordination around it: deciding for every
// (account, api_family) pair whether a worker may run right now, guaranteeing
// at most one execution is in flight at a time even across process replicas,
// tracking a resumable cursor so incremental fetches never reprocess the
// whole history, and recovering automatically when a worker crashes without
// a heartbeat.
//
// # Package layout
//
//   - sync (this package): shared domain types (SyncState, Run, LogEntry),
//     the Executor interface every data family implements, cursor arithmetic,
//     and the credential gate.
//   - sync/state: persistence of per-key sync state and the global worker
//     switch, backed by PostgreSQL.
//   - sync/run: the run lifecycle manager - the distributed lock, heartbeats,
//     terminal transitions, and the append-only run log.
//   - sync/coordinator: the scheduling loop that ties the above together.
//
// # The lock
//
// Mutual exclusion is expressed as a partial unique index on worker_runs
// (account_id, api_family) WHERE status = 'running'. Acquiring the lock is a
// single INSERT ... ON CONFLICT DO NOTHING; releasing it is the terminal
// status transition. Because the lock lives in the database, replicas that
// share nothing but the database still cooperate correctly.
//
// # The cursor protocol
//
// Executors report a candidate cursor per fetched page. The core keeps the
// maximum across the run and persists it, minus a configurable overlap
// window, only when the run completes successfully. A crash mid-run
// therefore reprocesses the whole window on the next attempt, which is safe
// because Executor.Apply is required to be idempotent.
package sync
