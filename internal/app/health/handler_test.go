package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"netdiag-orchestrator/config"
	"netdiag-orchestrator/internal/backend"
)

func newTestMux(monitor *backend.Monitor) *chi.Mux {
	h := NewHandler(NewHandlerParams{Monitor: monitor})
	mux := chi.NewMux()
	h.RegisterRoute(mux)
	return mux
}

func TestHandle_Liveness(t *testing.T) {
	monitor := backend.NewMonitorForBase("http://127.0.0.1:1", config.Test, zap.NewNop().Sugar())
	mux := newTestMux(monitor)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleBackendStatus_BeforeFirstProbe(t *testing.T) {
	monitor := backend.NewMonitorForBase("http://127.0.0.1:1", config.Test, zap.NewNop().Sugar())
	mux := newTestMux(monitor)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/backend/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var h backend.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	require.Equal(t, backend.StatusChecking, h.Status)
}

func TestHandleBackendStatus_AfterProbe(t *testing.T) {
	diag := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer diag.Close()

	monitor := backend.NewMonitorForBase(diag.URL, config.Test, zap.NewNop().Sugar())
	monitor.Probe(context.Background())
	mux := newTestMux(monitor)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/backend/status", nil))

	var h backend.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	require.Equal(t, backend.StatusConnected, h.Status)
}
