// Package coordinator provides the background scheduling loop that drives
// per-account incremental syncs.
//
// On every tick the coordinator:
//
//  1. Re-reads the global worker switch (no caching; a toggle takes effect
//     on the very next tick, and storage failures fail closed).
//  2. Enumerates the enabled (account, api_family) sync states.
//  3. Skips keys whose account fails the credential check or whose family
//     has no registered executor.
//  4. Attempts to acquire the run lock via run.Manager.StartRun. A refused
//     lock is normal contention, not an error.
//  5. On grant, executes the family's Executor inside a guarded block that
//     always finishes the run - success, failure, or panic - while a side
//     goroutine refreshes the heartbeat and cancellation is checked at
//     every page boundary.
//
// Keys are independent: granted keys run concurrently, bounded by a
// semaphore, and no ordering is promised across keys. Within one key pages
// are fetched and applied strictly in sequence, and the cursor advances only
// at end-of-run (observed maximum minus the overlap window).
//
// The polling interval carries a random jitter so that multiple replicas
// don't hammer the database in lockstep; the database lock, not the jitter,
// is what guarantees mutual exclusion.
package coordinator
