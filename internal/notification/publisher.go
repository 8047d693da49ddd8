package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/pubsub"
	"github.com/casebill/casebill/internal/types"
)

// Publisher enqueues best-effort side effects. Nothing it does can fail the
// caller: publish errors are logged and dropped.
type Publisher interface {
	Notify(ctx context.Context, n *Notification)
	SendEmail(ctx context.Context, e *Email)
}

type outboxPublisher struct {
	pubSub pubsub.Publisher
	config *config.NotificationConfig
	logger *logger.Logger
}

func NewPublisher(pubSub pubsub.PubSub, cfg *config.Configuration, logger *logger.Logger) Publisher {
	return &outboxPublisher{
		pubSub: pubSub,
		config: &cfg.Notification,
		logger: logger,
	}
}

func (p *outboxPublisher) Notify(ctx context.Context, n *Notification) {
	p.publish(ctx, &Message{Kind: KindNotification, Notification: n})
}

func (p *outboxPublisher) SendEmail(ctx context.Context, e *Email) {
	if e.To == "" {
		p.logger.Warnw("skipping email without recipient", "template", e.Template)
		return
	}
	p.publish(ctx, &Message{Kind: KindEmail, Email: e})
}

func (p *outboxPublisher) publish(ctx context.Context, m *Message) {
	if !p.config.Enabled {
		p.logger.Debugw("notifications disabled, dropping message", "kind", m.Kind)
		return
	}

	m.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NOTIFICATION)
	m.TenantID = types.GetTenantID(ctx)
	m.UserID = types.GetUserID(ctx)
	m.CreatedAt = time.Now().UTC()

	payload, err := json.Marshal(m)
	if err != nil {
		p.logger.Errorw("failed to marshal outbox message", "error", err, "kind", m.Kind)
		return
	}

	msg := message.NewMessage(m.ID, payload)
	msg.Metadata.Set("tenant_id", m.TenantID)
	msg.Metadata.Set("kind", string(m.Kind))

	// the caller's cancellation must not abort an enqueue that already started
	if err := p.pubSub.Publish(context.WithoutCancel(ctx), p.config.Topic, msg); err != nil {
		p.logger.Errorw("failed to publish outbox message",
			"error", err,
			"message_id", m.ID,
			"kind", m.Kind,
			"tenant_id", m.TenantID,
		)
		return
	}

	p.logger.Debugw("published outbox message",
		"message_id", m.ID,
		"kind", m.Kind,
		"tenant_id", m.TenantID,
	)
}
