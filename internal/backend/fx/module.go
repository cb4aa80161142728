package fx

import (
	"context"
	"time"

	"go.uber.org/fx"

	"netdiag-orchestrator/internal/backend"
)

const probeInterval = 60 * time.Second

var Module = fx.Module(
	"backend",
	fx.Provide(
		fx.Annotate(backend.NewHTTPClient, fx.As(new(backend.Client))),
		backend.NewMonitor,
	),
	fx.Invoke(registerMonitorLifecycle),
)

func registerMonitorLifecycle(lc fx.Lifecycle, m *backend.Monitor) {
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, c := context.WithCancel(context.Background())
			cancel = c
			go func() {
				m.Probe(runCtx)
				ticker := time.NewTicker(probeInterval)
				defer ticker.Stop()
				for {
					select {
					case <-runCtx.Done():
						return
					case <-ticker.C:
						m.Probe(runCtx)
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
