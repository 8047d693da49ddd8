package payment

import (
	"context"

	"github.com/casebill/casebill/internal/types"
)

// Repository defines the interface for payment persistence
type Repository interface {
	// Create inserts a payment. A reused idempotency key fails with ErrAlreadyExists.
	Create(ctx context.Context, payment *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	// Update writes the payment if its stored version still equals payment.Version
	Update(ctx context.Context, payment *Payment) error
	List(ctx context.Context, filter *types.PaymentFilter) ([]*Payment, error)
	Count(ctx context.Context, filter *types.PaymentFilter) (int, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Payment, error)
	GetByExternalTransactionID(ctx context.Context, externalID string) (*Payment, error)
}
