package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	asynqlib "github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"streamcoin-core/pkg/asynq"
	"streamcoin-core/pkg/config"
	"streamcoin-core/pkg/db"
	"streamcoin-core/pkg/logger"
	"streamcoin-core/pkg/minio"
	"streamcoin-core/pkg/redis"
	"streamcoin-core/pkg/secrets"
	"streamcoin-core/services/media"
	"streamcoin-core/services/moderation"
	"streamcoin-core/services/outbox"
	"streamcoin-core/services/reward"
	"streamcoin-core/services/scheduler"
	"streamcoin-core/services/wallet"
)

func main() {
	opts := []fx.Option{
		secrets.Module,
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		asynq.Client,
		asynq.Server,
		minio.Client,
		fx.Provide(
			provideSnowflakeNode,
			provideAnalyzer,
			provideDeliverer,
		),
		wallet.Module,
		reward.Module,
		scheduler.Module,
		moderation.Module,
		outbox.Module,
		media.Module,
		fx.Invoke(
			autoMigrate,
			registerTaskHandlers,
		),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func provideAnalyzer(cfg *config.Config) moderation.Analyzer {
	return moderation.NewKeywordAnalyzer(cfg.Moderation.Blocklist)
}

func provideDeliverer(cfg *config.Config) outbox.Deliverer {
	return outbox.NewWebhookDeliverer(cfg.Chat.GatewayURL)
}

func autoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&wallet.Wallet{},
		&wallet.WalletEntry{},
		&reward.ExternalRewardEvent{},
		&reward.PendingCoinGrant{},
		&moderation.Job{},
		&outbox.Message{},
		&media.EncodeJob{},
	)
}

type taskHandlerParams struct {
	fx.In
	Mux    *asynqlib.ServeMux
	Reward *reward.Service

	Notifier reward.Notifier `optional:"true"`
}

func registerTaskHandlers(p taskHandlerParams) {
	p.Mux.HandleFunc(reward.TaskCoinsClaimed, p.Reward.HandleCoinsClaimedTask(p.Notifier))
}
