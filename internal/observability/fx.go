package observability

import (
	"context"

	"github.com/prepware/creditengine/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability",
	fx.Provide(NewMetrics),
	fx.Invoke(setupTracing),
)

func setupTracing(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) error {
	tracing, err := NewTracing(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tracing.Shutdown(ctx)
		},
	})
	return nil
}
