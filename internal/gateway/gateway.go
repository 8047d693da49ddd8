package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChargeStatus is the gateway's verdict on a charge
type ChargeStatus string

const (
	ChargeStatusSucceeded ChargeStatus = "succeeded"
	ChargeStatusFailed    ChargeStatus = "failed"
	// ChargeStatusProcessing means the gateway accepted the charge but has not settled it
	ChargeStatusProcessing ChargeStatus = "processing"
)

// ChargeRequest is a card charge expressed in minor units
type ChargeRequest struct {
	AmountCents        int64
	Currency           string
	PaymentMethodToken string
	CustomerID         string
	IdempotencyKey     string
	Metadata           map[string]string
}

// ChargeResult is what the gateway reported for a charge. A decline is a
// result with ChargeStatusFailed, not an error.
type ChargeResult struct {
	ID            string
	Status        ChargeStatus
	AmountCents   int64
	FailureReason string
}

type RefundRequest struct {
	ChargeID       string
	AmountCents    int64
	Reason         string
	IdempotencyKey string
}

type RefundResult struct {
	ID     string
	Status string
}

// Gateway charges and refunds cards. An error means the outcome is unknown
// and the caller must reconcile later instead of assuming either result.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// WebhookParser verifies a provider webhook and normalizes it. A nil event
// with a nil error means the event type is of no interest to billing.
type WebhookParser interface {
	ParseWebhookEvent(payload []byte, signature string) (*Event, error)
}

// WebhookParserFor returns the gateway's own parser, or one that rejects
// every webhook when the gateway cannot verify them
func WebhookParserFor(g Gateway) WebhookParser {
	if p, ok := g.(WebhookParser); ok {
		return p
	}
	return Unavailable{}
}

// EventType is a gateway notification normalized away from provider naming
type EventType string

const (
	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
	EventChargeRefunded   EventType = "charge_refunded"
	EventDisputeCreated   EventType = "dispute_created"
)

// Event is a verified gateway webhook
type Event struct {
	ID   string
	Type EventType
	// ChargeID is the gateway id stored as the payment's external transaction id
	ChargeID      string
	AmountCents   int64
	FailureReason string
	DisputeID     string
	DisputeReason string
	// TenantID comes from the charge metadata, empty when the provider omits it
	TenantID string
}

var hundred = decimal.NewFromInt(100)

// ToCents converts a decimal amount to minor units, rounding half away from zero
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts minor units back to a decimal amount
func FromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(hundred)
}
