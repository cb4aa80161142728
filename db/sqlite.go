package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"netdiag-orchestrator/config"

	_ "modernc.org/sqlite"
)

var ErrSQLiteDisabled = errors.New("sqlite disabled: set SQLITE_PATH")

// Conn is the minimal query surface shared by the Postgres and sqlite stores.
// Both *sqlx.DB and the disabled placeholder satisfy it.
type Conn interface {
	Rebind(query string) string
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// --- disabled connection (keeps app booting, but fails fast when used) ---

type disabledSQLiteConn struct{}

func (disabledSQLiteConn) Rebind(query string) string { return query }

func (disabledSQLiteConn) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, ErrSQLiteDisabled
}

func (disabledSQLiteConn) GetContext(context.Context, any, string, ...any) error {
	return ErrSQLiteDisabled
}

func (disabledSQLiteConn) SelectContext(context.Context, any, string, ...any) error {
	return ErrSQLiteDisabled
}

// --- Fx output ---

type SQLiteSQLXOut struct {
	fx.Out

	DB   *sqlx.DB `name:"sqlite"`
	Conn Conn     `name:"sqlite"`
}

type NewSQLXSQLiteDBParams struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    *config.Config
	Logger *zap.SugaredLogger
}

// NewSQLXSQLiteDB opens the local sqlite database file named by SQLITE_PATH.
func NewSQLXSQLiteDB(p NewSQLXSQLiteDBParams) (SQLiteSQLXOut, error) {
	path := strings.TrimSpace(p.Cfg.SQLite.Path)
	if path == "" {
		p.Logger.Infow("sqlite_disabled")
		return SQLiteSQLXOut{DB: nil, Conn: disabledSQLiteConn{}}, nil
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return SQLiteSQLXOut{}, err
	}

	// modernc sqlite is in-process; a single writer avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := db.PingContext(pingCtx); err != nil {
				_ = db.Close()
				return err
			}
			p.Logger.Infow("sqlite_enabled", "path", path)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})

	return SQLiteSQLXOut{DB: db, Conn: db}, nil
}
