package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"netdiag-orchestrator/config"
	"netdiag-orchestrator/db"
	"netdiag-orchestrator/db/migrations"
	appfx "netdiag-orchestrator/internal/app/fx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type MigrateCmd string

func main() {
	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		appfx.CoreAppOptions,
		fx.Supply(MigrateCmd(cmd)),
		fx.Invoke(registerMigrateHook),
	)

	startCtx, startCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer startCancel()
	if err := app.Start(startCtx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

type migrateHookParams struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    *config.Config
	Logger *zap.SugaredLogger

	Cmd MigrateCmd
}

func registerMigrateHook(p migrateHookParams) {
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			driver, dsn, dialect, err := migrateTarget(p.Cfg)
			if err != nil {
				return err
			}

			if err := goose.SetDialect(dialect); err != nil {
				return fmt.Errorf("set goose dialect: %w", err)
			}
			goose.SetBaseFS(migrations.FS)

			database, err := sqlx.Open(driver, dsn)
			if err != nil {
				return fmt.Errorf("open %s: %w", dialect, err)
			}
			defer func() {
				_ = database.Close()
			}()

			pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
			defer pingCancel()
			if err := database.PingContext(pingCtx); err != nil {
				return fmt.Errorf("ping %s: %w", dialect, err)
			}

			p.Logger.Infow("goose_run_start", "cmd", string(p.Cmd), "dialect", dialect)
			if err := goose.RunContext(ctx, string(p.Cmd), database.DB, "."); err != nil {
				return fmt.Errorf("goose run %q: %w", p.Cmd, err)
			}
			p.Logger.Infow("goose_run_done", "cmd", string(p.Cmd), "dialect", dialect)
			return nil
		},
	})
}

// migrateTarget prefers Postgres when configured, falling back to the local
// sqlite file. Both stores carry the same schema.
func migrateTarget(cfg *config.Config) (driver, dsn, dialect string, err error) {
	if strings.TrimSpace(cfg.DB.Host) != "" && strings.TrimSpace(cfg.DB.Name) != "" {
		return "pgx", db.PostgresDSN(cfg), "postgres", nil
	}
	if path := strings.TrimSpace(cfg.SQLite.Path); path != "" {
		return "sqlite", path, "sqlite3", nil
	}
	return "", "", "", errors.New("no migration target: set DB_HOST+DB_NAME or SQLITE_PATH")
}
