package bulkvalidate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"netdiag-orchestrator/internal/backend"
	"netdiag-orchestrator/internal/usage"

	_ "modernc.org/sqlite"
)

type fakeBackend struct {
	handler func(backend.Request) (backend.Response, error)
}

func (f *fakeBackend) Execute(ctx context.Context, req backend.Request) (backend.Response, error) {
	_ = ctx
	return f.handler(req)
}

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE bulk_results (
  job_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  address TEXT NOT NULL,
  valid INTEGER NOT NULL,
  detail TEXT NULL,
  created_at_ms BIGINT NOT NULL,
  PRIMARY KEY (job_id, address)
);
CREATE TABLE usage_records (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  tool_id TEXT NOT NULL,
  succeeded INTEGER NOT NULL,
  created_at_ms BIGINT NOT NULL
);
`)
	require.NoError(t, err)
	return db
}

func newTestHandler(t *testing.T, fb *fakeBackend) (*ValidateHandler, *ResultStore, *usage.Tracker) {
	t.Helper()

	db := newTestDB(t)
	logger := zap.NewNop().Sugar()
	store := NewResultStoreWithDB(db, logger)
	tracker := usage.NewTrackerWithClock(usage.NewStoreWithConn(db, logger), nil, logger, time.Now)

	return &ValidateHandler{
		backend: fb,
		store:   store,
		tracker: tracker,
		logger:  logger,
	}, store, tracker
}

func envelope(addresses ...string) BulkRequestedEnvelope {
	return BulkRequestedEnvelope{
		EventName: EventName,
		EventID:   "11111111-2222-3333-4444-555555555555",
		TS:        time.Now().UTC(),
		Data: BulkRequestedEventData{
			UserID:    "u1",
			Plan:      "pro",
			Addresses: addresses,
		},
	}
}

func TestHandle_PersistsPerAddressOutcomes(t *testing.T) {
	fb := &fakeBackend{handler: func(req backend.Request) (backend.Response, error) {
		if req.Input == "bad@example.com" {
			return backend.Response{Success: false, Error: "mailbox does not exist"}, nil
		}
		return backend.Response{Success: true}, nil
	}}
	h, store, tracker := newTestHandler(t, fb)

	msg := envelope("good@example.com", "bad@example.com")
	require.NoError(t, h.Handle(context.Background(), msg))

	results, err := store.JobResults(context.Background(), msg.EventID, "u1")
	require.NoError(t, err)
	require.Len(t, results, 2)

	byAddr := map[string]AddressResult{}
	for _, r := range results {
		byAddr[r.Address] = r
	}
	require.Equal(t, 1, byAddr["good@example.com"].Valid)
	require.Equal(t, 0, byAddr["bad@example.com"].Valid)
	require.Equal(t, "mailbox does not exist", byAddr["bad@example.com"].Detail)

	require.Equal(t, 1, tracker.TodayCount(context.Background(), "u1", "email-validate-bulk"))
}

func TestHandle_BackendErrorMarksAddressInvalid(t *testing.T) {
	fb := &fakeBackend{handler: func(req backend.Request) (backend.Response, error) {
		return backend.Response{}, errors.New("connection refused")
	}}
	h, store, _ := newTestHandler(t, fb)

	msg := envelope("a@example.com")
	require.NoError(t, h.Handle(context.Background(), msg))

	results, err := store.JobResults(context.Background(), msg.EventID, "u1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 0, results[0].Valid)
	require.Contains(t, results[0].Detail, "connection refused")
}

func TestHandle_RejectsMalformedJobs(t *testing.T) {
	h, _, _ := newTestHandler(t, &fakeBackend{handler: func(backend.Request) (backend.Response, error) {
		return backend.Response{Success: true}, nil
	}})

	missing := envelope("a@example.com")
	missing.Data.UserID = ""
	require.Error(t, h.Handle(context.Background(), missing))

	empty := envelope()
	require.Error(t, h.Handle(context.Background(), empty))

	wrongName := envelope("a@example.com")
	wrongName.EventName = "diag/other.event"
	require.Error(t, h.Handle(context.Background(), wrongName))

	blanks := envelope("   ", "")
	require.Error(t, h.Handle(context.Background(), blanks))
}

func TestHandle_ResultsScopedToOwner(t *testing.T) {
	fb := &fakeBackend{handler: func(backend.Request) (backend.Response, error) {
		return backend.Response{Success: true}, nil
	}}
	h, store, _ := newTestHandler(t, fb)

	msg := envelope("a@example.com")
	require.NoError(t, h.Handle(context.Background(), msg))

	other, err := store.JobResults(context.Background(), msg.EventID, "u2")
	require.NoError(t, err)
	require.Empty(t, other)
}
