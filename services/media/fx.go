package media

import (
	"streamcoin-core/services/scheduler"

	"go.uber.org/fx"
)

var Module = fx.Module("media.service",
	fx.Provide(
		NewService,
		fx.Annotate(
			newRunner,
			fx.ResultTags(`group:"scheduler.runners"`),
		),
	),
)

func newRunner(svc *Service, locker scheduler.Locker) *scheduler.Runner {
	return scheduler.NewRunner("media", svc.Interval(), locker, svc.Sweep)
}
