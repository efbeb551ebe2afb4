package ratiomigration

import (
	"github.com/smallbiznis/rewardly/internal/ratiomigration/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ratiomigration",
	fx.Provide(
		service.NewService,
	),
)
