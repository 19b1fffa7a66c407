package outbox

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("outbox",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(StartRelay),
)

func StartRelay(lc fx.Lifecycle, relay *Relay, log *zap.Logger) {
	if !relay.Enabled() {
		log.Info("outbox relay disabled, no redis configured")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go relay.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
