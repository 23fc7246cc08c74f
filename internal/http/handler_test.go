package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concilia/internal/scheduler"
	id "concilia/pkg/domain"
	dErrors "concilia/pkg/domain-errors"
)

type stubEngine struct {
	state      scheduler.State
	running    bool
	triggerN   int
	triggerErr error
	triggered  []id.TenantID
}

func (e *stubEngine) Trigger(_ context.Context, tenantID id.TenantID) (int, error) {
	e.triggered = append(e.triggered, tenantID)
	return e.triggerN, e.triggerErr
}

func (e *stubEngine) Status() (scheduler.State, error) { return e.state, nil }
func (e *stubEngine) Running() bool                    { return e.running }

func newTestRouter(engine *stubEngine) http.Handler {
	return NewRouter(NewHandler(engine, slog.Default()))
}

func TestHandler_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&stubEngine{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_Status(t *testing.T) {
	engine := &stubEngine{
		running: true,
		state: scheduler.State{
			LastPolledAt:   time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC),
			TotalProcessed: 42,
			TotalErrors:    1,
			LastError:      "store is down",
		},
	}
	rec := httptest.NewRecorder()
	newTestRouter(engine).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/internal/sync/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["running"])
	assert.Equal(t, float64(42), body["total_processed"])
	assert.Equal(t, "store is down", body["last_error"])
}

func TestHandler_TriggerOK(t *testing.T) {
	engine := &stubEngine{triggerN: 3}
	tenantID := uuid.NewString()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/sync/trigger/"+tenantID, nil)
	newTestRouter(engine).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, engine.triggered, 1)
	assert.Equal(t, tenantID, engine.triggered[0].String())
	assert.True(t, strings.Contains(rec.Body.String(), `"processed":3`))
}

func TestHandler_TriggerInvalidTenantID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/sync/trigger/not-a-uuid", nil)
	newTestRouter(&stubEngine{}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_TriggerConflictWhileCycleRunning(t *testing.T) {
	engine := &stubEngine{
		triggerErr: dErrors.New(dErrors.CodeConflict, "a poll cycle is already running"),
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/sync/trigger/"+uuid.NewString(), nil)
	newTestRouter(engine).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
