package gateway

import (
	"context"

	ierr "github.com/casebill/casebill/internal/errors"
)

// Unavailable is used when no card processor is configured. Every call is
// rejected before money moves.
type Unavailable struct{}

func (Unavailable) Charge(context.Context, ChargeRequest) (*ChargeResult, error) {
	return nil, errNotConfigured()
}

func (Unavailable) Refund(context.Context, RefundRequest) (*RefundResult, error) {
	return nil, errNotConfigured()
}

func (Unavailable) ParseWebhookEvent([]byte, string) (*Event, error) {
	return nil, errNotConfigured()
}

// IsNotConfigured reports whether err came from the Unavailable gateway
func IsNotConfigured(err error) bool {
	return ierr.IsInvalidOperation(err)
}

func errNotConfigured() error {
	return ierr.NewError("payment gateway is not configured").
		WithHint("Card payments are not enabled for this firm").
		Mark(ierr.ErrInvalidOperation)
}
