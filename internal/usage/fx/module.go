package fx

import (
	"go.uber.org/fx"

	"netdiag-orchestrator/internal/usage"
)

var Module = fx.Module(
	"usage",
	fx.Provide(
		usage.NewStore,
		usage.NewTracker,
	),
)
