package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"netdiag-orchestrator/internal/usage"

	_ "modernc.org/sqlite"
)

func newTestMux(t *testing.T) (*chi.Mux, *usage.Tracker) {
	t.Helper()

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
	tracker := usage.NewTrackerWithClock(usage.NewStoreWithConn(db, logger), nil, logger, time.Now)

	h := NewHandler(NewHandlerParams{Tracker: tracker, Logger: logger})
	mux := chi.NewMux()
	h.RegisterRoute(mux)
	return mux, tracker
}

func getStats(t *testing.T, mux *chi.Mux, headers map[string]string) usage.Stats {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/v1/usage/stats", nil)
	req.RemoteAddr = "203.0.113.9:51422"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats usage.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	return stats
}

func TestHandle_EmptyStats(t *testing.T) {
	mux, _ := newTestMux(t)
	stats := getStats(t, mux, map[string]string{"X-User-Id": "u1"})

	require.Zero(t, stats.QueriesTotal)
	require.Zero(t, stats.QueriesToday)
	require.Len(t, stats.DailyUsage, 7)
	require.Empty(t, stats.TopTools)
}

func TestHandle_StatsScopedToCaller(t *testing.T) {
	mux, tracker := newTestMux(t)
	ctx := context.Background()

	tracker.RecordOutcome(ctx, "u1", "dns-lookup", true)
	tracker.RecordOutcome(ctx, "u1", "whois", false)
	tracker.RecordOutcome(ctx, "u2", "ping", true)

	stats := getStats(t, mux, map[string]string{"X-User-Id": "u1"})
	require.Equal(t, 2, stats.QueriesTotal)
	require.Equal(t, 2, stats.ToolsUsedDistinctCount)
	require.Equal(t, 50, stats.SuccessRatePercent)
}

func TestHandle_AnonymousKeyedByAddress(t *testing.T) {
	mux, tracker := newTestMux(t)
	tracker.RecordOutcome(context.Background(), "anon:203.0.113.9", "ping", true)

	stats := getStats(t, mux, nil)
	require.Equal(t, 1, stats.QueriesTotal)
}
