package v1

import (
	"io"
	"net/http"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/gateway"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/service"
	"github.com/casebill/casebill/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// maxWebhookBody bounds the payload read before the signature is checked
const maxWebhookBody = 1 << 16

// WebhookHandler receives card processor notifications
type WebhookHandler struct {
	parser   gateway.WebhookParser
	payments service.PaymentProcessorService
	logger   *logger.Logger
}

func NewWebhookHandler(
	parser gateway.WebhookParser,
	payments service.PaymentProcessorService,
	logger *logger.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		parser:   parser,
		payments: payments,
		logger:   logger,
	}
}

// @Summary Handle Stripe webhook events
// @Description Verifies the Stripe-Signature header and applies payment, refund and dispute events
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe webhook signature"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /webhooks/stripe [post]
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger.Errorw("failed to read request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		h.logger.Errorw("missing Stripe-Signature header")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing Stripe-Signature header"})
		return
	}

	event, err := h.parser.ParseWebhookEvent(body, signature)
	if err != nil {
		h.logger.Warnw("rejected stripe webhook", "error", err)
		status := http.StatusBadRequest
		if ierr.IsInvalidOperation(err) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": "Webhook could not be verified"})
		return
	}
	if event == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Event ignored"})
		return
	}

	// the charge metadata carries the tenant, disputes fall back to the default one
	ctx := types.SetTenantID(c.Request.Context(), lo.Ternary(event.TenantID != "", event.TenantID, types.DefaultTenantID))
	ctx = types.SetUserID(ctx, types.DefaultUserID)

	if err := h.payments.HandleGatewayEvent(ctx, event); err != nil {
		h.logger.Errorw("failed to handle stripe webhook",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		// a non 2xx makes stripe redeliver
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event processed"})
}
