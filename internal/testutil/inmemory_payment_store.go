package testutil

import (
	"context"
	"sync"

	"github.com/casebill/casebill/internal/domain/payment"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
)

// InMemoryPaymentStore implements payment.Repository
type InMemoryPaymentStore struct {
	*InMemoryStore[*payment.Payment]
	mu             sync.Mutex
	createdInOrder []string
}

// NewInMemoryPaymentStore creates a new in-memory payment repository
func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		InMemoryStore:  NewInMemoryStore[*payment.Payment](copyPayment),
		createdInOrder: make([]string, 0),
	}
}

func copyPayment(p *payment.Payment) *payment.Payment {
	if p == nil {
		return nil
	}
	out := *p
	out.Metadata = cloneMetadata(p.Metadata)
	return &out
}

// Clear resets all stored data
func (m *InMemoryPaymentStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InMemoryStore.Clear()
	m.createdInOrder = make([]string, 0)
}

// Create stores a new payment. A reused idempotency key fails like the unique index.
func (m *InMemoryPaymentStore) Create(ctx context.Context, p *payment.Payment) error {
	if p == nil {
		return ierr.NewError("payment cannot be nil").
			WithHint("Payment cannot be nil").
			Mark(ierr.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p.IdempotencyKey != nil {
		_, taken := m.InMemoryStore.Find(ctx, func(existing *payment.Payment) bool {
			return existing.TenantID == p.TenantID &&
				existing.IdempotencyKey != nil &&
				*existing.IdempotencyKey == *p.IdempotencyKey
		})
		if taken {
			return ierr.NewError("payment with this idempotency key already exists").
				WithHint("Payment already exists").
				WithReportableDetails(map[string]any{
					"idempotency_key": *p.IdempotencyKey,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
	}

	if err := m.InMemoryStore.Create(ctx, p.ID, p); err != nil {
		return err
	}
	m.createdInOrder = append(m.createdInOrder, p.ID)
	return nil
}

// Get retrieves a payment by ID
func (m *InMemoryPaymentStore) Get(ctx context.Context, id string) (*payment.Payment, error) {
	p, err := m.InMemoryStore.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, p.TenantID) {
		return nil, notFound(id)
	}
	return p, nil
}

// Update writes the payment if the stored version matches and bumps the version
func (m *InMemoryPaymentStore) Update(ctx context.Context, p *payment.Payment) error {
	next := copyPayment(p)
	next.Version = p.Version + 1
	err := m.InMemoryStore.CompareAndSwap(ctx, p.ID, next, func(current *payment.Payment) error {
		if current.Version != p.Version {
			return versionConflict(p.ID, p.Version)
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.Version++
	return nil
}

func (m *InMemoryPaymentStore) List(ctx context.Context, filter *types.PaymentFilter) ([]*payment.Payment, error) {
	return m.InMemoryStore.List(ctx, filter, paymentFilterFn, sortByTime(filter,
		func(p *payment.Payment) int64 { return p.CreatedAt.UnixNano() },
		func(p *payment.Payment) string { return p.ID },
	))
}

func (m *InMemoryPaymentStore) Count(ctx context.Context, filter *types.PaymentFilter) (int, error) {
	return m.InMemoryStore.Count(ctx, filter, paymentFilterFn)
}

func (m *InMemoryPaymentStore) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	p, ok := m.InMemoryStore.Find(ctx, func(p *payment.Payment) bool {
		return CheckTenantFilter(ctx, p.TenantID) && p.IdempotencyKey != nil && *p.IdempotencyKey == key
	})
	if !ok {
		return nil, notFound(key)
	}
	return p, nil
}

func (m *InMemoryPaymentStore) GetByExternalTransactionID(ctx context.Context, externalID string) (*payment.Payment, error) {
	p, ok := m.InMemoryStore.Find(ctx, func(p *payment.Payment) bool {
		return CheckTenantFilter(ctx, p.TenantID) && p.ExternalTransactionID != nil && *p.ExternalTransactionID == externalID
	})
	if !ok {
		return nil, notFound(externalID)
	}
	return p, nil
}

// CreatedInOrder returns payment ids in insertion order
func (m *InMemoryPaymentStore) CreatedInOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.createdInOrder...)
}

func paymentFilterFn(ctx context.Context, p *payment.Payment, filter interface{}) bool {
	if !CheckTenantFilter(ctx, p.TenantID) {
		return false
	}
	f, ok := filter.(*types.PaymentFilter)
	if !ok || f == nil {
		return true
	}
	if len(f.PaymentIDs) > 0 && !lo.Contains(f.PaymentIDs, p.ID) {
		return false
	}
	if f.ClientID != "" && p.ClientID != f.ClientID {
		return false
	}
	if f.CaseID != "" && lo.FromPtr(p.CaseID) != f.CaseID {
		return false
	}
	if f.InvoiceID != "" && lo.FromPtr(p.InvoiceID) != f.InvoiceID {
		return false
	}
	if f.ExternalTransactionID != "" && lo.FromPtr(p.ExternalTransactionID) != f.ExternalTransactionID {
		return false
	}
	if f.IdempotencyKey != "" && lo.FromPtr(p.IdempotencyKey) != f.IdempotencyKey {
		return false
	}
	return matchesAny(f.PaymentStatus, p.PaymentStatus) &&
		matchesAny(f.PaymentMethod, p.PaymentMethod) &&
		matchesTime(f.TimeRangeFilter, p.CreatedAt.UnixNano())
}
