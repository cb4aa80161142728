package fx

import (
	"go.uber.org/fx"

	"netdiag-orchestrator/internal/app/tools"
	"netdiag-orchestrator/internal/router"
)

var Module = fx.Options(
	fx.Provide(router.AsRoute(tools.NewListHandler)),
)
