// Package httpapi is the thin operational surface of the sync daemon:
// health, metrics, engine status, and the manual one-shot trigger. The
// business HTTP/UI layer lives in a different system entirely.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"concilia/internal/scheduler"
	id "concilia/pkg/domain"
	dErrors "concilia/pkg/domain-errors"
)

// Engine is the slice of the scheduler the handlers need.
type Engine interface {
	Trigger(ctx context.Context, tenantID id.TenantID) (int, error)
	Status() (scheduler.State, error)
	Running() bool
}

// Handler delegates to the scheduler without embedding engine logic.
type Handler struct {
	engine Engine
	logger *slog.Logger
}

func NewHandler(engine Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// NewRouter wires the operational endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/internal/sync/status", h.handleStatus)
	r.Post("/internal/sync/trigger/{tenantID}", h.handleTrigger)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	state, err := h.engine.Status()
	if err != nil {
		h.logger.Error("status read failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running":         h.engine.Running(),
		"last_polled_at":  state.LastPolledAt,
		"total_processed": state.TotalProcessed,
		"total_errors":    state.TotalErrors,
		"last_error":      state.LastError,
	})
}

func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		return
	}

	processed, err := h.engine.Trigger(r.Context(), tenantID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "a poll cycle is already running"})
			return
		}
		h.logger.Error("manual trigger failed",
			"tenant_id", tenantID.String(), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "trigger failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"processed": processed})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
