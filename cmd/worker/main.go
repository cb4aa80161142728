package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	cachefx "netdiag-orchestrator/cache/fx"
	dbfx "netdiag-orchestrator/db/fx"
	bulkvalidatefx "netdiag-orchestrator/internal/app/amqp/bulkvalidate/fx"
	appfx "netdiag-orchestrator/internal/app/fx"
	backendfx "netdiag-orchestrator/internal/backend/fx"
	usagefx "netdiag-orchestrator/internal/usage/fx"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		appfx.CoreAppOptions,
		dbfx.Module,
		dbfx.SQLiteModule,
		cachefx.Module,
		backendfx.Module,
		usagefx.Module,
		bulkvalidatefx.Module,
	)

	app.Run()
}
