package usage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"netdiag-orchestrator/db"
)

// Record is one terminal tool invocation. Append-only; denied attempts are
// never written.
type Record struct {
	ID          string `db:"id"`
	UserID      string `db:"user_id"`
	ToolID      string `db:"tool_id"`
	Succeeded   int    `db:"succeeded"`
	CreatedAtMS int64  `db:"created_at_ms"`
}

type ToolCount struct {
	ToolID string `db:"tool_id" json:"tool_id"`
	Count  int    `db:"cnt" json:"count"`
}

type totalsRow struct {
	Total     int `db:"total"`
	Succeeded int `db:"succeeded"`
	Distinct  int `db:"distinct_tools"`
}

// Store reads and appends usage records. Backed by Postgres when configured,
// else the local sqlite file, else a disabled connection that fails fast.
type Store struct {
	conn   db.Conn
	logger *zap.SugaredLogger
}

type NewStoreParams struct {
	fx.In

	PG     *sqlx.DB `optional:"true"`
	SQLite db.Conn  `name:"sqlite"`
	Logger *zap.SugaredLogger
}

func NewStore(p NewStoreParams) *Store {
	var conn db.Conn = p.SQLite
	if p.PG != nil {
		conn = p.PG
	}
	return &Store{conn: conn, logger: p.Logger}
}

// NewStoreWithConn is the plain constructor used by tests and the worker.
func NewStoreWithConn(conn db.Conn, logger *zap.SugaredLogger) *Store {
	return &Store{conn: conn, logger: logger}
}

func (s *Store) Append(ctx context.Context, rec Record) error {
	q := s.conn.Rebind(`
INSERT INTO usage_records (id, user_id, tool_id, succeeded, created_at_ms)
VALUES (?, ?, ?, ?, ?)
`)
	if _, err := s.conn.ExecContext(ctx, q, rec.ID, rec.UserID, rec.ToolID, rec.Succeeded, rec.CreatedAtMS); err != nil {
		return fmt.Errorf("append usage record: %w", err)
	}
	return nil
}

// CountSince counts records for the user at or after sinceMS. An empty toolID
// counts across all tools.
func (s *Store) CountSince(ctx context.Context, userID, toolID string, sinceMS int64) (int, error) {
	var n int
	if toolID == "" {
		q := s.conn.Rebind(`SELECT COUNT(*) FROM usage_records WHERE user_id = ? AND created_at_ms >= ?`)
		if err := s.conn.GetContext(ctx, &n, q, userID, sinceMS); err != nil {
			return 0, fmt.Errorf("count usage records: %w", err)
		}
		return n, nil
	}
	q := s.conn.Rebind(`SELECT COUNT(*) FROM usage_records WHERE user_id = ? AND tool_id = ? AND created_at_ms >= ?`)
	if err := s.conn.GetContext(ctx, &n, q, userID, toolID, sinceMS); err != nil {
		return 0, fmt.Errorf("count usage records: %w", err)
	}
	return n, nil
}

func (s *Store) Totals(ctx context.Context, userID string) (total, succeeded, distinctTools int, err error) {
	q := s.conn.Rebind(`
SELECT
  COUNT(*) AS total,
  COALESCE(SUM(succeeded), 0) AS succeeded,
  COUNT(DISTINCT tool_id) AS distinct_tools
FROM usage_records
WHERE user_id = ?
`)
	var row totalsRow
	if err := s.conn.GetContext(ctx, &row, q, userID); err != nil {
		return 0, 0, 0, fmt.Errorf("usage totals: %w", err)
	}
	return row.Total, row.Succeeded, row.Distinct, nil
}

// RecordTimesSince returns raw creation timestamps for day bucketing.
func (s *Store) RecordTimesSince(ctx context.Context, userID string, sinceMS int64) ([]int64, error) {
	q := s.conn.Rebind(`SELECT created_at_ms FROM usage_records WHERE user_id = ? AND created_at_ms >= ? ORDER BY created_at_ms`)
	var out []int64
	if err := s.conn.SelectContext(ctx, &out, q, userID, sinceMS); err != nil {
		return nil, fmt.Errorf("usage record times: %w", err)
	}
	return out, nil
}

// TopTools returns per-tool counts sorted by count descending, ties broken by
// whichever tool was used first.
func (s *Store) TopTools(ctx context.Context, userID string, limit int) ([]ToolCount, error) {
	q := s.conn.Rebind(`
SELECT tool_id, COUNT(*) AS cnt
FROM usage_records
WHERE user_id = ?
GROUP BY tool_id
ORDER BY cnt DESC, MIN(created_at_ms) ASC
LIMIT ?
`)
	var out []ToolCount
	if err := s.conn.SelectContext(ctx, &out, q, userID, limit); err != nil {
		return nil, fmt.Errorf("usage top tools: %w", err)
	}
	return out, nil
}
