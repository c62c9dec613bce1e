// Package v0 provides the REST API handlers for the sync admin surface.
package v0

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/syncline/syncline/internal/heartbeat"
	"github.com/syncline/syncline/internal/sync/coordinator"
	"github.com/syncline/syncline/internal/sync/run"
	"github.com/syncline/syncline/internal/sync/state"
	"github.com/syncline/syncline/internal/versions"
)

const (
	defaultRunListLimit = 50
	maxRunListLimit     = 500
)

// TriggerFunc runs one key immediately, outside the polling schedule.
type TriggerFunc func(ctx context.Context, accountID, apiFamily string) error

// ReadinessChecker reports whether the service can serve requests.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Services bundles the dependencies the admin API exposes.
type Services struct {
	States     state.Service
	Gate       state.GlobalSwitch
	Runs       run.Manager
	Heartbeats heartbeat.Recorder

	// Trigger is optional; when nil, manual sync requests return 503.
	Trigger TriggerFunc

	// Ready is optional; when nil, readiness always succeeds.
	Ready ReadinessChecker
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// EnabledRequest is the body for the per-key enable toggle
type EnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// WorkersRequest is the body for the global switch toggle
type WorkersRequest struct {
	WorkersEnabled bool `json:"workers_enabled"`
}

// Routes defines the routes for the admin API with dependency injection
type Routes struct {
	services Services
}

// NewRoutes creates a new Routes instance with the provided services
func NewRoutes(services Services) *Routes {
	return &Routes{services: services}
}

// Router creates a new router for the admin API
func Router(services Services) http.Handler {
	routes := NewRoutes(services)

	r := chi.NewRouter()

	// Global worker switch
	r.Get("/workers", routes.getWorkers)
	r.Put("/workers", routes.setWorkers)

	// Per-key sync state
	r.Get("/sync-states", routes.listSyncStates)
	r.Get("/sync-states/{account}/{family}", routes.getSyncState)
	r.Put("/sync-states/{account}/{family}/enabled", routes.setSyncStateEnabled)
	r.Post("/sync-states/{account}/{family}/sync", routes.triggerSync)
	r.Get("/sync-states/{account}/{family}/runs", routes.listRuns)

	// Runs and their logs
	r.Get("/runs/{id}", routes.getRun)
	r.Get("/runs/{id}/logs", routes.listRunLogs)
	r.Post("/runs/{id}/cancel", routes.cancelRun)

	// Worker liveness
	r.Get("/heartbeats", routes.listHeartbeats)

	return r
}

// getWorkers handles GET /api/v0/workers
func (rr *Routes) getWorkers(w http.ResponseWriter, r *http.Request) {
	cfg, err := rr.services.Gate.Get(r.Context())
	if err != nil {
		slog.Error("Failed to get global worker config", "error", err)
		rr.writeErrorResponse(w, "Failed to get worker configuration", http.StatusInternalServerError)
		return
	}
	rr.writeJSONResponse(w, cfg)
}

// setWorkers handles PUT /api/v0/workers
func (rr *Routes) setWorkers(w http.ResponseWriter, r *http.Request) {
	var req WorkersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cfg, err := rr.services.Gate.SetWorkersEnabled(r.Context(), req.WorkersEnabled)
	if err != nil {
		slog.Error("Failed to set global worker switch", "error", err)
		rr.writeErrorResponse(w, "Failed to update worker configuration", http.StatusInternalServerError)
		return
	}

	slog.Info("Global worker switch updated", "workers_enabled", req.WorkersEnabled)
	rr.writeJSONResponse(w, cfg)
}

// listSyncStates handles GET /api/v0/sync-states
func (rr *Routes) listSyncStates(w http.ResponseWriter, r *http.Request) {
	states, err := rr.services.States.List(r.Context())
	if err != nil {
		slog.Error("Failed to list sync states", "error", err)
		rr.writeErrorResponse(w, "Failed to list sync states", http.StatusInternalServerError)
		return
	}
	rr.writeJSONResponse(w, states)
}

// getSyncState handles GET /api/v0/sync-states/{account}/{family}
func (rr *Routes) getSyncState(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	family := chi.URLParam(r, "family")

	st, err := rr.services.States.Get(r.Context(), account, family)
	if err != nil {
		if errors.Is(err, state.ErrSyncStateNotFound) {
			rr.writeErrorResponse(w, "Sync state not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to get sync state", "error", err)
		rr.writeErrorResponse(w, "Failed to get sync state", http.StatusInternalServerError)
		return
	}
	rr.writeJSONResponse(w, st)
}

// setSyncStateEnabled handles PUT /api/v0/sync-states/{account}/{family}/enabled
func (rr *Routes) setSyncStateEnabled(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	family := chi.URLParam(r, "family")

	var req EnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := rr.services.States.SetEnabled(r.Context(), account, family, req.Enabled); err != nil {
		if errors.Is(err, state.ErrSyncStateNotFound) {
			rr.writeErrorResponse(w, "Sync state not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to toggle sync state", "error", err)
		rr.writeErrorResponse(w, "Failed to update sync state", http.StatusInternalServerError)
		return
	}

	slog.Info("Sync state toggled",
		"account_id", account,
		"api_family", family,
		"enabled", req.Enabled)

	st, err := rr.services.States.Get(r.Context(), account, family)
	if err != nil {
		rr.writeErrorResponse(w, "Failed to get sync state", http.StatusInternalServerError)
		return
	}
	rr.writeJSONResponse(w, st)
}

// triggerSync handles POST /api/v0/sync-states/{account}/{family}/sync
func (rr *Routes) triggerSync(w http.ResponseWriter, r *http.Request) {
	if rr.services.Trigger == nil {
		rr.writeErrorResponse(w, "Manual sync is not available", http.StatusServiceUnavailable)
		return
	}

	account := chi.URLParam(r, "account")
	family := chi.URLParam(r, "family")

	err := rr.services.Trigger(r.Context(), account, family)
	if err != nil {
		var skipped *coordinator.ErrSyncSkipped
		if errors.As(err, &skipped) {
			rr.writeErrorResponse(w, skipped.Error(), http.StatusConflict)
			return
		}
		slog.Error("Manual sync failed",
			"account_id", account,
			"api_family", family,
			"error", err)
		rr.writeErrorResponse(w, "Sync failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// listRuns handles GET /api/v0/sync-states/{account}/{family}/runs
func (rr *Routes) listRuns(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	family := chi.URLParam(r, "family")

	limit := defaultRunListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			rr.writeErrorResponse(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		// Cap oversized limits instead of passing them through to the
		// storage layer, where they would overflow its int32 parameter.
		if parsed > maxRunListLimit {
			parsed = maxRunListLimit
		}
		limit = parsed
	}

	runs, err := rr.services.Runs.ListRuns(r.Context(), account, family, limit)
	if err != nil {
		slog.Error("Failed to list runs", "error", err)
		rr.writeErrorResponse(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	rr.writeJSONResponse(w, runs)
}

// getRun handles GET /api/v0/runs/{id}
func (rr *Routes) getRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := rr.parseRunID(w, r)
	if !ok {
		return
	}

	rn, err := rr.services.Runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, run.ErrRunNotFound) {
			rr.writeErrorResponse(w, "Run not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to get run", "error", err)
		rr.writeErrorResponse(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	rr.writeJSONResponse(w, rn)
}

// listRunLogs handles GET /api/v0/runs/{id}/logs
func (rr *Routes) listRunLogs(w http.ResponseWriter, r *http.Request) {
	runID, ok := rr.parseRunID(w, r)
	if !ok {
		return
	}

	logs, err := rr.services.Runs.ListLogs(r.Context(), runID)
	if err != nil {
		slog.Error("Failed to list run logs", "error", err)
		rr.writeErrorResponse(w, "Failed to list run logs", http.StatusInternalServerError)
		return
	}
	rr.writeJSONResponse(w, logs)
}

// cancelRun handles POST /api/v0/runs/{id}/cancel
func (rr *Routes) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := rr.parseRunID(w, r)
	if !ok {
		return
	}

	err := rr.services.Runs.Cancel(r.Context(), runID)
	if err != nil {
		switch {
		case errors.Is(err, run.ErrRunNotFound):
			rr.writeErrorResponse(w, "Run not found", http.StatusNotFound)
		case errors.Is(err, run.ErrRunNotActive):
			rr.writeErrorResponse(w, "Run is not active", http.StatusConflict)
		default:
			slog.Error("Failed to cancel run", "run_id", runID, "error", err)
			rr.writeErrorResponse(w, "Failed to cancel run", http.StatusInternalServerError)
		}
		return
	}

	slog.Info("Run cancelled by operator", "run_id", runID)
	w.WriteHeader(http.StatusAccepted)
}

// listHeartbeats handles GET /api/v0/heartbeats
func (rr *Routes) listHeartbeats(w http.ResponseWriter, r *http.Request) {
	if rr.services.Heartbeats == nil {
		rr.writeJSONResponse(w, []any{})
		return
	}

	beats, err := rr.services.Heartbeats.List(r.Context())
	if err != nil {
		slog.Error("Failed to list heartbeats", "error", err)
		rr.writeErrorResponse(w, "Failed to list heartbeats", http.StatusInternalServerError)
		return
	}
	rr.writeJSONResponse(w, beats)
}

func (rr *Routes) parseRunID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		rr.writeErrorResponse(w, "Invalid run id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return runID, true
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(services Services) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(services))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessHandler handles readiness check requests
func readinessHandler(services Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if services.Ready != nil {
			if err := services.Ready.CheckReadiness(r.Context()); err != nil {
				errorResp := ErrorResponse{
					Error: "Service not ready: " + err.Error(),
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				if encodeErr := json.NewEncoder(w).Encode(errorResp); encodeErr != nil {
					slog.Error("Failed to encode readiness error response", "error", encodeErr)
				}
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(info); err != nil {
		slog.Error("Failed to encode version info", "error", err)
	}
}

// writeJSONResponse writes a JSON response with the given data
func (*Routes) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	errorResp := ErrorResponse{
		Error: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
