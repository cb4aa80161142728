package fx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"netdiag-orchestrator/internal/app/amqp/bulkvalidate"
	"netdiag-orchestrator/internal/pkg/amqpclient"
)

var Module = fx.Module(
	"amqp-bulkvalidate",
	fx.Provide(
		amqpclient.NewAMQP,
		bulkvalidate.NewResultStore,
		fx.Annotate(
			bulkvalidate.NewValidateHandler,
			fx.As(new(bulkvalidate.Handler)),
		),
		bulkvalidate.NewConsumer,
	),
	fx.Invoke(registerLifecycleHooks),
)

type hooksParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Consumer  *bulkvalidate.Consumer
	Logger    *zap.SugaredLogger
}

func registerLifecycleHooks(p hooksParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Infow("bulkvalidate_starting")
			return p.Consumer.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Infow("bulkvalidate_stopping")
			return p.Consumer.Stop(ctx)
		},
	})
}
