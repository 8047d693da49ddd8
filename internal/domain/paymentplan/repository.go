package paymentplan

import (
	"context"

	"github.com/casebill/casebill/internal/types"
)

// Repository defines the interface for payment plan persistence
type Repository interface {
	// Create inserts a plan. A second active plan for the same case fails with ErrAlreadyExists.
	Create(ctx context.Context, plan *PaymentPlan) error
	Get(ctx context.Context, id string) (*PaymentPlan, error)
	// GetActiveByCase returns the active plan of a case or ErrNotFound
	GetActiveByCase(ctx context.Context, caseID string) (*PaymentPlan, error)
	// Update writes the plan if its stored version still equals plan.Version
	Update(ctx context.Context, plan *PaymentPlan) error
	List(ctx context.Context, filter *types.PaymentPlanFilter) ([]*PaymentPlan, error)
	Count(ctx context.Context, filter *types.PaymentPlanFilter) (int, error)
}
