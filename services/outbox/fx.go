package outbox

import (
	"streamcoin-core/services/scheduler"

	"go.uber.org/fx"
)

var Module = fx.Module("outbox.service",
	fx.Provide(
		NewService,
		fx.Annotate(
			newRunner,
			fx.ResultTags(`group:"scheduler.runners"`),
		),
	),
)

func newRunner(svc *Service, locker scheduler.Locker) *scheduler.Runner {
	return scheduler.NewRunner("outbox", svc.Interval(), locker, svc.Sweep)
}
