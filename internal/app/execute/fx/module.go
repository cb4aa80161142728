package fx

import (
	"go.uber.org/fx"

	"netdiag-orchestrator/internal/app/execute"
	"netdiag-orchestrator/internal/router"
)

var ExecuteAppOptions = fx.Options(
	fx.Provide(
		router.AsRoute(execute.NewHandler),
	),
)
