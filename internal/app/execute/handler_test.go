package execute

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"netdiag-orchestrator/internal/backend"
	"netdiag-orchestrator/internal/execution"
	"netdiag-orchestrator/internal/usage"

	_ "modernc.org/sqlite"
)

func newTestMux(t *testing.T) *chi.Mux {
	t.Helper()

	diag := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success": true, "data": {"records": ["v=spf1 -all"]}, "execution_time_ms": 12}`)
	}))
	t.Cleanup(diag.Close)

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`
CREATE TABLE usage_records (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  tool_id TEXT NOT NULL,
  succeeded INTEGER NOT NULL,
  created_at_ms BIGINT NOT NULL
);
`)
	require.NoError(t, err)

	logger := zap.NewNop().Sugar()
	store := usage.NewStoreWithConn(db, logger)
	tracker := usage.NewTrackerWithClock(store, nil, logger, time.Now)
	registry := execution.NewRegistry(execution.NewRegistryParams{
		Backend: backend.NewHTTPClientForBase(diag.URL, 5*time.Second, logger),
		Tracker: tracker,
		Logger:  logger,
	})

	h := NewHandler(NewHandlerParams{Registry: registry, Logger: logger})
	mux := chi.NewMux()
	h.RegisterRoute(mux)
	return mux
}

func doJSON(t *testing.T, mux *chi.Mux, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.9:51422"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) execution.State {
	t.Helper()
	var st execution.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	return st
}

func pollTerminal(t *testing.T, mux *chi.Mux, path string, headers map[string]string) execution.State {
	t.Helper()
	var st execution.State
	require.Eventually(t, func() bool {
		rec := doJSON(t, mux, http.MethodGet, path, nil, headers)
		st = decodeState(t, rec)
		return st.Phase == execution.PhaseSucceeded || st.Phase == execution.PhaseFailed
	}, 2*time.Second, 20*time.Millisecond)
	return st
}

func TestHandle_UnknownTool(t *testing.T) {
	mux := newTestMux(t)
	rec := doJSON(t, mux, http.MethodPost, "/v1/tools/quantum-probe/execute", map[string]string{"input": "x"}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandle_MissingInput(t *testing.T) {
	mux := newTestMux(t)
	rec := doJSON(t, mux, http.MethodPost, "/v1/tools/dns-lookup/execute", map[string]string{}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandle_BulkToolRejected(t *testing.T) {
	mux := newTestMux(t)
	rec := doJSON(t, mux, http.MethodPost, "/v1/tools/email-validate-bulk/execute",
		map[string]string{"input": "a@b.c"}, map[string]string{"X-User-Id": "u1", "X-User-Plan": "pro"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandle_PaidToolDeniedForAnonymous(t *testing.T) {
	mux := newTestMux(t)
	rec := doJSON(t, mux, http.MethodPost, "/v1/tools/header-analyzer/execute",
		map[string]string{"input": "Received: from example"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	st := decodeState(t, rec)
	require.Equal(t, execution.PhaseFailed, st.Phase)
	require.True(t, st.UpgradeRequired)
}

func TestHandle_SuccessLifecycle(t *testing.T) {
	mux := newTestMux(t)
	headers := map[string]string{"X-User-Id": "u1", "X-User-Plan": "free"}
	rec := doJSON(t, mux, http.MethodPost, "/v1/tools/spf-check/execute",
		map[string]string{"input": "example.com"}, headers)
	require.Equal(t, http.StatusAccepted, rec.Code)

	st := pollTerminal(t, mux, "/v1/tools/spf-check/executions/current", headers)
	require.Equal(t, execution.PhaseSucceeded, st.Phase)
	require.Equal(t, 100, st.ProgressPercent)
	require.NotNil(t, st.ExecutionTimeMs)
}

func TestHandleStatus_NoSessionIsIdle(t *testing.T) {
	mux := newTestMux(t)
	rec := doJSON(t, mux, http.MethodGet, "/v1/tools/ping/executions/current", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, execution.PhaseIdle, decodeState(t, rec).Phase)
}

func TestHandleStatus_IsolatedPerCaller(t *testing.T) {
	mux := newTestMux(t)
	headers := map[string]string{"X-User-Id": "u1", "X-User-Plan": "free"}
	doJSON(t, mux, http.MethodPost, "/v1/tools/dns-lookup/execute", map[string]string{"input": "example.com"}, headers)

	rec := doJSON(t, mux, http.MethodGet, "/v1/tools/dns-lookup/executions/current", nil,
		map[string]string{"X-User-Id": "u2", "X-User-Plan": "free"})
	require.Equal(t, execution.PhaseIdle, decodeState(t, rec).Phase)
}

func TestHandleChallenge_FlowForFreeUser(t *testing.T) {
	mux := newTestMux(t)
	headers := map[string]string{"X-User-Id": "u1", "X-User-Plan": "free"}

	rec := doJSON(t, mux, http.MethodPost, "/v1/tools/email-validate/execute",
		map[string]string{"input": "person@example.com"}, headers)
	require.Equal(t, http.StatusAccepted, rec.Code)

	st := decodeState(t, rec)
	require.Equal(t, execution.PhaseAwaitingChallenge, st.Phase)
	require.NotNil(t, st.Challenge)
	require.NotEmpty(t, st.Challenge.Question)

	answer := solve(t, st.Challenge.Question)
	rec = doJSON(t, mux, http.MethodPost, "/v1/tools/email-validate/challenge",
		map[string]any{"answer": answer}, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	st = pollTerminal(t, mux, "/v1/tools/email-validate/executions/current", headers)
	require.Equal(t, execution.PhaseSucceeded, st.Phase)
}

func TestHandleChallenge_NoPendingChallenge(t *testing.T) {
	mux := newTestMux(t)
	rec := doJSON(t, mux, http.MethodPost, "/v1/tools/dns-lookup/challenge",
		map[string]any{"answer": 4}, map[string]string{"X-User-Id": "u1", "X-User-Plan": "free"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func solve(t *testing.T, question string) int {
	t.Helper()
	parts := strings.Fields(question)
	require.Len(t, parts, 3, "question %q", question)
	a, err := strconv.Atoi(parts[0])
	require.NoError(t, err)
	b, err := strconv.Atoi(parts[2])
	require.NoError(t, err)
	switch parts[1] {
	case "+":
		return a + b
	case "-":
		return a - b
	case "*":
		return a * b
	}
	t.Fatalf("unknown operator %q", parts[1])
	return 0
}
