package notification

import (
	"context"

	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/email"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/pubsub"
	"github.com/casebill/casebill/internal/pubsub/kafka"
	"github.com/casebill/casebill/internal/pubsub/memory"
	pubsubRouter "github.com/casebill/casebill/internal/pubsub/router"
	"github.com/casebill/casebill/internal/types"
	"go.uber.org/fx"
)

// Module provides the outbox publisher, the dispatcher and everything they share
var Module = fx.Options(
	fx.Provide(
		providePubSub,
		pubsubRouter.NewRouter,
		email.NewEmailClient,
		provideSender,
		NewPublisher,
		NewHandler,
	),
)

func providePubSub(lc fx.Lifecycle, cfg *config.Configuration, logger *logger.Logger) (pubsub.PubSub, error) {
	var (
		ps  pubsub.PubSub
		err error
	)
	switch cfg.Notification.PubSub {
	case types.KafkaPubSub:
		ps, err = kafka.NewPubSub(cfg, logger)
		if err != nil {
			return nil, err
		}
	default:
		ps = memory.NewPubSub(logger)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return ps.Close()
		},
	})
	return ps, nil
}

func provideSender(client *email.EmailClient, logger *logger.Logger) (email.Sender, error) {
	return email.NewEmail(client, logger)
}
