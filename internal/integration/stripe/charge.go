package stripe

import (
	"context"
	"errors"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/gateway"
	"github.com/stripe/stripe-go/v82"
)

// Charge creates and confirms a PaymentIntent for the token. Card errors
// come back as failed results. Any other failure leaves the outcome unknown.
func (c *Client) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	ctx, cancel, err := c.wait(ctx)
	if err != nil {
		return nil, unknownOutcome(err, "charge")
	}
	defer cancel()

	params := &stripe.PaymentIntentCreateParams{
		Amount:             stripe.Int64(req.AmountCents),
		Currency:           stripe.String(req.Currency),
		PaymentMethod:      stripe.String(req.PaymentMethodToken),
		PaymentMethodTypes: []*string{stripe.String("card")},
		Confirm:            stripe.Bool(true),
		Metadata:           req.Metadata,
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	intent, err := c.api.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		if result, ok := declined(err); ok {
			c.logger.Infow("stripe declined charge",
				"amount_cents", req.AmountCents,
				"reason", result.FailureReason,
				"charge_id", result.ID,
			)
			return result, nil
		}
		c.logger.Errorw("stripe charge failed", "error", err, "amount_cents", req.AmountCents)
		return nil, unknownOutcome(err, "charge")
	}

	return chargeResultFromIntent(intent), nil
}

// Refund refunds part or all of a PaymentIntent
func (c *Client) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	ctx, cancel, err := c.wait(ctx)
	if err != nil {
		return nil, unknownOutcome(err, "refund")
	}
	defer cancel()

	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(req.ChargeID),
		Amount:        stripe.Int64(req.AmountCents),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
		Metadata:      map[string]string{"reason": req.Reason},
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	refund, err := c.api.V1Refunds.Create(ctx, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 {
			return nil, ierr.WithError(err).
				WithHintf("Refund rejected: %s", stripeErr.Msg).
				WithReportableDetails(map[string]any{
					"charge_id": req.ChargeID,
					"code":      stripeErr.Code,
				}).
				Mark(ierr.ErrPaymentGateway)
		}
		return nil, unknownOutcome(err, "refund")
	}

	return &gateway.RefundResult{ID: refund.ID, Status: string(refund.Status)}, nil
}

func chargeResultFromIntent(intent *stripe.PaymentIntent) *gateway.ChargeResult {
	result := &gateway.ChargeResult{
		ID:          intent.ID,
		AmountCents: intent.Amount,
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Status = gateway.ChargeStatusSucceeded
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusCanceled:
		result.Status = gateway.ChargeStatusFailed
		result.FailureReason = "payment method was declined"
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			result.FailureReason = intent.LastPaymentError.Msg
		}
	default:
		// processing, requires_action and requires_capture settle later through webhooks
		result.Status = gateway.ChargeStatusProcessing
	}
	return result
}

// declined maps a Stripe card error to a failed charge
func declined(err error) (*gateway.ChargeResult, bool) {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) || stripeErr.Type != stripe.ErrorTypeCard {
		return nil, false
	}
	result := &gateway.ChargeResult{
		Status:        gateway.ChargeStatusFailed,
		FailureReason: stripeErr.Msg,
	}
	if result.FailureReason == "" {
		result.FailureReason = string(stripeErr.Code)
	}
	if stripeErr.PaymentIntent != nil {
		result.ID = stripeErr.PaymentIntent.ID
		result.AmountCents = stripeErr.PaymentIntent.Amount
	}
	return result, true
}

func unknownOutcome(err error, op string) error {
	return ierr.WithError(err).
		WithHintf("Payment gateway %s outcome is unknown, it will be reconciled", op).
		Mark(ierr.ErrPaymentGateway)
}
