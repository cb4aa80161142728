package fx

import (
	"go.uber.org/fx"

	"netdiag-orchestrator/internal/server"
)

var ServerOptions = fx.Options(
	fx.Provide(server.NewHTTPServer),
	fx.Invoke(RegisterHTTPServerLifecycle),
)
