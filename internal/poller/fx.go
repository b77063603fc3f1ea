package poller

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/costplane/costplane/internal/config"
)

var Module = fx.Module("poller",
	fx.Provide(NewWorker),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, worker *Worker) {
	if !cfg.PollEnabled {
		log.Named("poller").Info("poll worker disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				worker.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
