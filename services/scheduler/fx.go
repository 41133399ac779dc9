package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// Feature packages contribute runners into the "scheduler.runners" group;
// Module starts them all on application start.
var Module = fx.Module("scheduler",
	fx.Provide(provideLocker),
	fx.Invoke(StartRunners),
)

func provideLocker(rdb *redis.Client) Locker {
	return NewRedisLocker(rdb, 5*time.Minute)
}

type startParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Runners   []*Runner `group:"scheduler.runners"`
}

// StartRunners launches every registered runner on application start and
// cancels them together on shutdown.
func StartRunners(p startParams) {
	ctx, cancel := context.WithCancel(context.Background())

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			for _, r := range p.Runners {
				go r.Run(ctx)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
