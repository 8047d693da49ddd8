package stripe

import (
	"encoding/json"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/gateway"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	eventPaymentIntentSucceeded = "payment_intent.succeeded"
	eventPaymentIntentFailed    = "payment_intent.payment_failed"
	eventChargeRefunded         = "charge.refunded"
	eventChargeDisputeCreated   = "charge.dispute.created"
)

// ParseWebhookEvent verifies the signature and normalizes the events billing
// reacts to. Other event types return nil without error.
func (c *Client) ParseWebhookEvent(payload []byte, signature string) (*gateway.Event, error) {
	return parseWebhookEvent(payload, signature, c.webhookSecret)
}

func parseWebhookEvent(payload []byte, signature, secret string) (*gateway.Event, error) {
	if secret == "" {
		return nil, ierr.NewError("stripe webhook secret is not configured").
			WithHint("Webhook verification is not configured").
			Mark(ierr.ErrInvalidOperation)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid webhook signature or payload").
			Mark(ierr.ErrValidation)
	}

	out := &gateway.Event{ID: event.ID}
	switch string(event.Type) {
	case eventPaymentIntentSucceeded, eventPaymentIntentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, invalidEventData(err, event.ID)
		}
		out.ChargeID = intent.ID
		out.AmountCents = intent.Amount
		out.TenantID = intent.Metadata["tenant_id"]
		out.Type = gateway.EventPaymentSucceeded
		if string(event.Type) == eventPaymentIntentFailed {
			out.Type = gateway.EventPaymentFailed
			out.FailureReason = "payment failed"
			if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
				out.FailureReason = intent.LastPaymentError.Msg
			}
		}
	case eventChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return nil, invalidEventData(err, event.ID)
		}
		out.Type = gateway.EventChargeRefunded
		out.AmountCents = charge.AmountRefunded
		out.TenantID = charge.Metadata["tenant_id"]
		if charge.PaymentIntent != nil {
			out.ChargeID = charge.PaymentIntent.ID
		}
	case eventChargeDisputeCreated:
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return nil, invalidEventData(err, event.ID)
		}
		out.Type = gateway.EventDisputeCreated
		out.AmountCents = dispute.Amount
		out.DisputeID = dispute.ID
		out.DisputeReason = string(dispute.Reason)
		if dispute.PaymentIntent != nil {
			out.ChargeID = dispute.PaymentIntent.ID
		}
	default:
		return nil, nil
	}
	return out, nil
}

func invalidEventData(err error, eventID string) error {
	return ierr.WithError(err).
		WithHint("Invalid event data in webhook").
		WithReportableDetails(map[string]any{"event_id": eventID}).
		Mark(ierr.ErrValidation)
}
