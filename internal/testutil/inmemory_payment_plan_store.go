package testutil

import (
	"context"
	"sync"

	"github.com/casebill/casebill/internal/domain/paymentplan"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
)

// InMemoryPaymentPlanStore implements paymentplan.Repository
type InMemoryPaymentPlanStore struct {
	*InMemoryStore[*paymentplan.PaymentPlan]
	mu sync.Mutex
}

func NewInMemoryPaymentPlanStore() *InMemoryPaymentPlanStore {
	return &InMemoryPaymentPlanStore{
		InMemoryStore: NewInMemoryStore[*paymentplan.PaymentPlan](copyPaymentPlan),
	}
}

func copyPaymentPlan(p *paymentplan.PaymentPlan) *paymentplan.PaymentPlan {
	if p == nil {
		return nil
	}
	out := *p
	out.Schedule = append(paymentplan.Schedule(nil), p.Schedule...)
	out.Metadata = cloneMetadata(p.Metadata)
	return &out
}

func isActiveFor(p *paymentplan.PaymentPlan, tenantID, caseID string) bool {
	return p.TenantID == tenantID && p.CaseID == caseID && p.PlanStatus == types.PaymentPlanStatusActive
}

// Create rejects a second active plan for a case, like the partial unique index
func (s *InMemoryPaymentPlanStore) Create(ctx context.Context, plan *paymentplan.PaymentPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if plan.PlanStatus == types.PaymentPlanStatusActive {
		if _, taken := s.InMemoryStore.Find(ctx, func(p *paymentplan.PaymentPlan) bool {
			return isActiveFor(p, plan.TenantID, plan.CaseID)
		}); taken {
			return ierr.NewError("case already has an active payment plan").
				WithHint("Case already has an active payment plan").
				Mark(ierr.ErrAlreadyExists)
		}
	}
	return s.InMemoryStore.Create(ctx, plan.ID, plan)
}

func (s *InMemoryPaymentPlanStore) Get(ctx context.Context, id string) (*paymentplan.PaymentPlan, error) {
	p, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, p.TenantID) {
		return nil, notFound(id)
	}
	return p, nil
}

func (s *InMemoryPaymentPlanStore) GetActiveByCase(ctx context.Context, caseID string) (*paymentplan.PaymentPlan, error) {
	tenantID := types.GetTenantID(ctx)
	p, ok := s.InMemoryStore.Find(ctx, func(p *paymentplan.PaymentPlan) bool {
		return isActiveFor(p, tenantID, caseID)
	})
	if !ok {
		return nil, notFound(caseID)
	}
	return p, nil
}

// Update writes the plan if the stored version matches and bumps the version
func (s *InMemoryPaymentPlanStore) Update(ctx context.Context, plan *paymentplan.PaymentPlan) error {
	next := copyPaymentPlan(plan)
	next.Version = plan.Version + 1
	err := s.InMemoryStore.CompareAndSwap(ctx, plan.ID, next, func(current *paymentplan.PaymentPlan) error {
		if current.Version != plan.Version {
			return versionConflict(plan.ID, plan.Version)
		}
		return nil
	})
	if err != nil {
		return err
	}
	plan.Version++
	return nil
}

func (s *InMemoryPaymentPlanStore) List(ctx context.Context, filter *types.PaymentPlanFilter) ([]*paymentplan.PaymentPlan, error) {
	return s.InMemoryStore.List(ctx, filter, paymentPlanFilterFn, sortByTime(filter,
		func(p *paymentplan.PaymentPlan) int64 { return p.CreatedAt.UnixNano() },
		func(p *paymentplan.PaymentPlan) string { return p.ID },
	))
}

func (s *InMemoryPaymentPlanStore) Count(ctx context.Context, filter *types.PaymentPlanFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, paymentPlanFilterFn)
}

func paymentPlanFilterFn(ctx context.Context, p *paymentplan.PaymentPlan, filter interface{}) bool {
	if !CheckTenantFilter(ctx, p.TenantID) {
		return false
	}
	f, ok := filter.(*types.PaymentPlanFilter)
	if !ok || f == nil {
		return true
	}
	if len(f.PlanIDs) > 0 && !lo.Contains(f.PlanIDs, p.ID) {
		return false
	}
	if f.ClientID != "" && p.ClientID != f.ClientID {
		return false
	}
	if f.CaseID != "" && p.CaseID != f.CaseID {
		return false
	}
	return matchesAny(f.Status, p.PlanStatus)
}
