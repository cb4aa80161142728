package bulkvalidate

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"netdiag-orchestrator/db"
)

type AddressResult struct {
	JobID       string `db:"job_id" json:"job_id"`
	UserID      string `db:"user_id" json:"-"`
	Address     string `db:"address" json:"address"`
	Valid       int    `db:"valid" json:"valid"`
	Detail      string `db:"detail" json:"detail,omitempty"`
	CreatedAtMS int64  `db:"created_at_ms" json:"created_at_ms"`
}

// ResultStore persists per-address outcomes of a bulk validation job. All
// rows of one job are written in a single transaction so a job is never
// half-visible.
type ResultStore struct {
	db     *sqlx.DB
	logger *zap.SugaredLogger
}

type NewResultStoreParams struct {
	fx.In

	PostgresDB *sqlx.DB `optional:"true"`
	SQLiteDB   *sqlx.DB `name:"sqlite" optional:"true"`
	Logger     *zap.SugaredLogger
}

func NewResultStore(p NewResultStoreParams) *ResultStore {
	target := p.PostgresDB
	if target == nil {
		target = p.SQLiteDB
	}
	return &ResultStore{db: target, logger: p.Logger}
}

// NewResultStoreWithDB is used by tests and the worker's direct wiring.
func NewResultStoreWithDB(database *sqlx.DB, logger *zap.SugaredLogger) *ResultStore {
	return &ResultStore{db: database, logger: logger}
}

func (s *ResultStore) SaveJob(ctx context.Context, results []AddressResult) error {
	if len(results) == 0 {
		return nil
	}
	if s.db == nil {
		return fmt.Errorf("bulk result store disabled: no database configured")
	}

	_, err := db.Tx(ctx, s.db, func(tx *sqlx.Tx) (struct{}, error) {
		const q = `
INSERT INTO bulk_results (job_id, user_id, address, valid, detail, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?)`
		for _, r := range results {
			if _, err := tx.ExecContext(ctx, tx.Rebind(q),
				r.JobID, r.UserID, r.Address, r.Valid, r.Detail, r.CreatedAtMS); err != nil {
				return struct{}{}, fmt.Errorf("insert bulk result %s/%s: %w", r.JobID, r.Address, err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

// JobResults returns the stored rows of one job, scoped to the owner.
func (s *ResultStore) JobResults(ctx context.Context, jobID, userID string) ([]AddressResult, error) {
	if s.db == nil {
		return nil, fmt.Errorf("bulk result store disabled: no database configured")
	}

	const q = `
SELECT job_id, user_id, address, valid, detail, created_at_ms
FROM bulk_results
WHERE job_id = ? AND user_id = ?
ORDER BY address ASC`

	var out []AddressResult
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(q), jobID, userID); err != nil {
		return nil, err
	}
	return out, nil
}

func nowMS() int64 {
	return time.Now().UTC().UnixMilli()
}
