package fx

import (
	"go.uber.org/fx"

	"netdiag-orchestrator/internal/app/amqp/enqueue"
	"netdiag-orchestrator/internal/router"
)

var Module = fx.Module(
	"amqp-enqueue",
	fx.Provide(
		router.AsRoute(enqueue.NewHandler),
	),
)
