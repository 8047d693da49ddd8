package notification

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/email"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/pubsub"
	pubsubRouter "github.com/casebill/casebill/internal/pubsub/router"
	"github.com/casebill/casebill/internal/types"
)

// Handler consumes the outbox topic and performs the side effects
type Handler interface {
	RegisterHandler(router *pubsubRouter.Router)
}

type handler struct {
	pubSub pubsub.PubSub
	config *config.NotificationConfig
	sender email.Sender
	logger *logger.Logger
}

func NewHandler(pubSub pubsub.PubSub, cfg *config.Configuration, sender email.Sender, logger *logger.Logger) Handler {
	return &handler{
		pubSub: pubSub,
		config: &cfg.Notification,
		sender: sender,
		logger: logger,
	}
}

func (h *handler) RegisterHandler(router *pubsubRouter.Router) {
	router.AddNoPublishHandler(
		"billing_notification_handler",
		h.config.Topic,
		h.pubSub,
		h.processMessage,
	)
}

func (h *handler) processMessage(msg *message.Message) error {
	var m Message
	if err := json.Unmarshal(msg.Payload, &m); err != nil {
		h.logger.Errorw("failed to unmarshal outbox message",
			"error", err,
			"message_uuid", msg.UUID,
		)
		return nil // retrying cannot fix a bad payload
	}

	ctx := types.SetTenantID(msg.Context(), m.TenantID)
	ctx = types.SetUserID(ctx, m.UserID)

	switch m.Kind {
	case KindEmail:
		if m.Email == nil {
			return nil
		}
		return h.sendEmail(ctx, m.Email)
	case KindNotification:
		if m.Notification == nil {
			return nil
		}
		return h.notifyStaff(ctx, m.Notification)
	default:
		h.logger.Warnw("unknown outbox message kind", "kind", m.Kind, "message_uuid", msg.UUID)
		return nil
	}
}

func (h *handler) sendEmail(ctx context.Context, e *Email) error {
	_, err := h.sender.SendTemplate(ctx, e.To, e.Template, e.Data)
	return err
}

func (h *handler) notifyStaff(ctx context.Context, n *Notification) error {
	fields := []interface{}{
		"type", n.Type,
		"priority", n.Priority,
		"title", n.Title,
		"tenant_id", types.GetTenantID(ctx),
	}
	if n.Priority == types.NotificationPriorityHigh {
		h.logger.Warnw("billing notification", fields...)
	} else {
		h.logger.Infow("billing notification", fields...)
	}

	if h.config.StaffEmail == "" {
		return nil
	}

	data := map[string]string{
		"title":    n.Title,
		"message":  n.Message,
		"priority": string(n.Priority),
	}
	_, err := h.sender.SendTemplate(ctx, h.config.StaffEmail, types.EmailTemplateStaffNotification, data)
	return err
}
