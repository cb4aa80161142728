package fx

import (
	"go.uber.org/fx"

	"netdiag-orchestrator/internal/app/health"
	"netdiag-orchestrator/internal/router"
)

var HealthAppOptions = fx.Options(
	fx.Provide(
		router.AsRoute(health.NewHandler),
	),
)
