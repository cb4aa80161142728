package fx

import (
	"go.uber.org/fx"

	"netdiag-orchestrator/internal/app/stats"
	"netdiag-orchestrator/internal/router"
)

var StatsAppOptions = fx.Options(
	fx.Provide(
		router.AsRoute(stats.NewHandler),
	),
)
