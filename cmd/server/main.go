package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	cachefx "netdiag-orchestrator/cache/fx"
	dbfx "netdiag-orchestrator/db/fx"
	"netdiag-orchestrator/internal/app/amqp/bulkvalidate"
	enqueuefx "netdiag-orchestrator/internal/app/amqp/enqueue/fx"
	executefx "netdiag-orchestrator/internal/app/execute/fx"
	appfx "netdiag-orchestrator/internal/app/fx"
	healthfx "netdiag-orchestrator/internal/app/health/fx"
	statsfx "netdiag-orchestrator/internal/app/stats/fx"
	toolsfx "netdiag-orchestrator/internal/app/tools/fx"
	backendfx "netdiag-orchestrator/internal/backend/fx"
	executionfx "netdiag-orchestrator/internal/execution/fx"
	"netdiag-orchestrator/internal/pkg/amqpclient"
	routerfx "netdiag-orchestrator/internal/router/fx"
	serverfx "netdiag-orchestrator/internal/server/fx"
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
		routerfx.CoreRouterOptions,
		serverfx.ServerOptions,
		backendfx.Module,
		usagefx.Module,
		executionfx.Module,
		fx.Provide(
			amqpclient.NewAMQP,
			bulkvalidate.NewResultStore,
		),
		toolsfx.Module,
		executefx.ExecuteAppOptions,
		statsfx.StatsAppOptions,
		healthfx.HealthAppOptions,
		enqueuefx.Module,
	)

	app.Run()
}
