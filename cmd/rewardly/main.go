package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rewardly/internal/clock"
	"github.com/smallbiznis/rewardly/internal/commission"
	"github.com/smallbiznis/rewardly/internal/config"
	"github.com/smallbiznis/rewardly/internal/events"
	"github.com/smallbiznis/rewardly/internal/migration"
	"github.com/smallbiznis/rewardly/internal/observability"
	"github.com/smallbiznis/rewardly/internal/points"
	"github.com/smallbiznis/rewardly/internal/rateconfig"
	"github.com/smallbiznis/rewardly/internal/ratiomigration"
	"github.com/smallbiznis/rewardly/internal/referral"
	"github.com/smallbiznis/rewardly/internal/scheduler"
	"github.com/smallbiznis/rewardly/internal/seed"
	"github.com/smallbiznis/rewardly/internal/server"
	"github.com/smallbiznis/rewardly/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var version = "dev"

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		clock.Module,
		db.Module,
		fx.Invoke(func(conn *gorm.DB, log *zap.Logger) error {
			if err := migration.Run(context.Background(), conn, log); err != nil {
				return err
			}
			return seed.EnsureDefaultRates(conn)
		}),
		events.Module,
		rateconfig.Module,
		referral.Module,
		points.Module,
		commission.Module,
		ratiomigration.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}
