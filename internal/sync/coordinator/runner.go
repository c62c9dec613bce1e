package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/syncline/syncline/internal/otel"
	pkgsync "github.com/syncline/syncline/internal/sync"
	"github.com/syncline/syncline/internal/sync/run"
)

// errRunCancelled stops the page loop when an operator cancelled the run.
// The run row is already terminal at that point, so no transition follows.
var errRunCancelled = errors.New("run cancelled by operator")

// executeRun drives one granted run to a terminal state. Whatever happens in
// the executor - error, panic, cancellation - the run row always leaves the
// running state, because an abandoned running row would hold the key's lock
// until the stale threshold expires.
func (c *defaultCoordinator) executeRun(ctx context.Context, runID uuid.UUID, st *pkgsync.SyncState, executor pkgsync.Executor) {
	ctx, span := c.startSpan(ctx, "coordinator.executeRun",
		trace.WithAttributes(
			otel.AttrAccountID.String(st.AccountID),
			otel.AttrAPIFamily.String(st.APIFamily),
			otel.AttrRunID.String(runID.String()),
		))
	defer span.End()

	// Terminal transitions and their log entries use a context that survives
	// cancellation. Without it a coordinator shutdown or request timeout would
	// strand the row in running until stale reclamation frees the key.
	finishCtx := context.WithoutCancel(ctx)

	logger := slog.With(
		"run_id", runID,
		"account_id", st.AccountID,
		"api_family", st.APIFamily)

	startedAt := time.Now()
	cursor := executor.LoadCursor(st)

	logger.Info("Run started", "cursor", cursor)
	if err := c.runs.AppendLog(ctx, runID, pkgsync.LogEventStart, map[string]any{
		"cursor": cursor,
	}); err != nil {
		logger.Warn("Failed to append start log", "error", err)
	}

	// Heartbeat in the background for as long as the run is live.
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go c.heartbeatLoop(hbCtx, hbDone, runID, logger)

	finished := false
	succeeded := false
	defer func() {
		stopHeartbeat()
		<-hbDone

		if r := recover(); r != nil {
			logger.Error("Run panicked", "panic", r)
			c.finishFailed(finishCtx, runID, nil, fmt.Sprintf("panic: %v", r), logger)
			finished = true
		}
		if !finished {
			c.finishFailed(finishCtx, runID, nil, "run abandoned without a terminal transition", logger)
		}

		c.metrics.RecordRunDuration(finishCtx, st.AccountID, st.APIFamily, time.Since(startedAt), succeeded)
	}()

	totalItems, pages, observedMax, pageLimited, runErr := c.pageLoop(ctx, runID, st, executor, cursor, logger)

	summary := map[string]any{
		"items_fetched": totalItems,
		"pages":         pages,
		"duration_ms":   time.Since(startedAt).Milliseconds(),
	}

	if errors.Is(runErr, errRunCancelled) {
		// The operator's Cancel already made the row terminal; the cursor
		// stays where the last completed run left it.
		finished = true
		return
	}
	if runErr != nil {
		otel.RecordError(span, runErr)
		c.finishFailed(finishCtx, runID, summary, runErr.Error(), logger)
		finished = true
		return
	}

	span.SetAttributes(
		otel.AttrPageCount.Int(pages),
		otel.AttrItemCount.Int(totalItems),
		otel.AttrCursorSet.Bool(observedMax != ""),
	)

	// The cursor advances only here, and only past what this run actually
	// observed. An empty observedMax leaves the stored cursor untouched.
	var update *run.CursorUpdate
	if observedMax != "" {
		update = &run.CursorUpdate{
			CursorType:        "timestamp",
			CursorValue:       pkgsync.ApplyOverlap(observedMax, c.cfg.OverlapWindow),
			BackfillCompleted: !pageLimited,
		}
	} else if !pageLimited {
		update = &run.CursorUpdate{BackfillCompleted: true}
	}

	if err := c.runs.AppendLog(finishCtx, runID, pkgsync.LogEventDone, summary); err != nil {
		logger.Warn("Failed to append done log", "error", err)
	}
	if err := c.runs.Complete(finishCtx, runID, summary, update); err != nil {
		// Complete refuses when the run was cancelled or reclaimed mid-flight;
		// the cursor stays put either way.
		logger.Warn("Run finished its work but could not complete", "error", err)
	} else {
		succeeded = true
		c.metrics.RecordItemsSynced(finishCtx, st.AccountID, st.APIFamily, int64(totalItems))
		logger.Info("Run completed",
			"items_fetched", totalItems,
			"pages", pages,
			"new_cursor", cursorValue(update))
	}
	finished = true
}

// pageLoop fetches and applies pages in strict sequence until the window is
// exhausted, the page cap is hit, the run is cancelled, or an error occurs.
func (c *defaultCoordinator) pageLoop(
	ctx context.Context,
	runID uuid.UUID,
	st *pkgsync.SyncState,
	executor pkgsync.Executor,
	cursor string,
	logger *slog.Logger,
) (totalItems, pages int, observedMax string, pageLimited bool, err error) {
	pageToken := ""

	for {
		// Cancellation checkpoint: page boundaries only, never mid-apply.
		if ctx.Err() != nil {
			return totalItems, pages, observedMax, pageLimited, ctx.Err()
		}
		cancelled, cErr := c.runs.IsCancelled(ctx, runID)
		if cErr != nil {
			return totalItems, pages, observedMax, pageLimited, fmt.Errorf("failed to check cancellation: %w", cErr)
		}
		if cancelled {
			logger.Info("Run cancelled, stopping at page boundary", "pages_done", pages)
			return totalItems, pages, observedMax, pageLimited, errRunCancelled
		}

		page, fErr := executor.FetchPage(ctx, st.AccountID, cursor, pageToken)
		if fErr != nil {
			return totalItems, pages, observedMax, pageLimited, fmt.Errorf("failed to fetch page %d: %w", pages+1, fErr)
		}

		if len(page.Items) > 0 {
			if aErr := executor.Apply(ctx, st.AccountID, page.Items); aErr != nil {
				return totalItems, pages, observedMax, pageLimited, fmt.Errorf("failed to apply page %d: %w", pages+1, aErr)
			}
		}

		pages++
		totalItems += len(page.Items)
		observedMax = pkgsync.MaxCursor(observedMax, page.CandidateCursor)

		if lErr := c.runs.AppendLog(ctx, runID, pkgsync.LogEventPage, map[string]any{
			"page":             pages,
			"items":            len(page.Items),
			"candidate_cursor": page.CandidateCursor,
		}); lErr != nil {
			logger.Warn("Failed to append page log", "error", lErr)
		}

		if page.NextPageToken == "" {
			return totalItems, pages, observedMax, pageLimited, nil
		}
		if c.cfg.MaxPagesPerRun > 0 && pages >= c.cfg.MaxPagesPerRun {
			// More data remains; the next run resumes from the advanced
			// cursor, and the backfill flag stays unset.
			logger.Info("Page cap reached, deferring remainder to next run",
				"pages", pages, "cap", c.cfg.MaxPagesPerRun)
			return totalItems, pages, observedMax, true, nil
		}
		pageToken = page.NextPageToken
	}
}

// heartbeatLoop refreshes the run's heartbeat until stopped. A heartbeat
// rejection means the run has already been cancelled or reclaimed; the page
// loop will notice at its next checkpoint, so the loop just exits quietly.
func (c *defaultCoordinator) heartbeatLoop(ctx context.Context, done chan<- struct{}, runID uuid.UUID, logger *slog.Logger) {
	defer close(done)

	interval := c.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.runs.Heartbeat(ctx, runID); err != nil {
				logger.Debug("Heartbeat refused, run no longer active", "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// finishFailed records a failure terminally, logging rather than propagating
// secondary errors: by this point the primary error is what matters.
func (c *defaultCoordinator) finishFailed(ctx context.Context, runID uuid.UUID, summary map[string]any, errMsg string, logger *slog.Logger) {
	if err := c.runs.AppendLog(ctx, runID, pkgsync.LogEventError, map[string]any{
		"error": errMsg,
	}); err != nil {
		logger.Warn("Failed to append error log", "error", err)
	}
	if err := c.runs.Fail(ctx, runID, summary, errMsg); err != nil {
		logger.Warn("Failed to record run failure", "error", err)
		return
	}
	logger.Error("Run failed", "error", errMsg)
}

func cursorValue(u *run.CursorUpdate) string {
	if u == nil {
		return ""
	}
	return u.CursorValue
}
