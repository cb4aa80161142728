package fx

import (
	"go.uber.org/fx"

	"netdiag-orchestrator/internal/execution"
)

var Module = fx.Module(
	"execution",
	fx.Provide(execution.NewRegistry),
)
