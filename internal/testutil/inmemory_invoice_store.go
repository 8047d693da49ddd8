package testutil

import (
	"context"
	"sync"

	"github.com/casebill/casebill/internal/domain/invoice"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
)

// InMemoryInvoiceStore implements invoice.Repository
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]
	mu           sync.Mutex
	sequences    map[sequenceKey]int64
	reservedInTx int
}

type sequenceKey struct {
	tenantID string
	year     int
}

// NewInMemoryInvoiceStore creates a new in-memory invoice store
func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore[*invoice.Invoice](copyInvoice),
		sequences:     make(map[sequenceKey]int64),
	}
}

// Helper to copy invoice
func copyInvoice(inv *invoice.Invoice) *invoice.Invoice {
	if inv == nil {
		return nil
	}
	out := *inv
	out.LineItems = append(invoice.LineItems(nil), inv.LineItems...)
	out.AcceptedPaymentMethods = append(types.StringArray(nil), inv.AcceptedPaymentMethods...)
	out.AppliedPaymentIDs = append(types.StringArray(nil), inv.AppliedPaymentIDs...)
	out.Metadata = cloneMetadata(inv.Metadata)
	return &out
}

// Create rejects a second invoice with the same number, like the unique index
func (s *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, taken := s.InMemoryStore.Find(ctx, func(existing *invoice.Invoice) bool {
		return existing.TenantID == inv.TenantID && existing.InvoiceNumber == inv.InvoiceNumber
	})
	if taken {
		return ierr.NewErrorf("invoice number %s already exists", inv.InvoiceNumber).
			WithHint("Invoice number already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	return s.InMemoryStore.Create(ctx, inv.ID, inv)
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, inv.TenantID) {
		return nil, notFound(id)
	}
	return inv, nil
}

// Update writes the invoice if the stored version matches and bumps the version
func (s *InMemoryInvoiceStore) Update(ctx context.Context, inv *invoice.Invoice) error {
	next := copyInvoice(inv)
	next.Version = inv.Version + 1
	err := s.InMemoryStore.CompareAndSwap(ctx, inv.ID, next, func(current *invoice.Invoice) error {
		if current.Version != inv.Version {
			return versionConflict(inv.ID, inv.Version)
		}
		return nil
	})
	if err != nil {
		return err
	}
	inv.Version++
	return nil
}

func (s *InMemoryInvoiceStore) List(ctx context.Context, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	return s.InMemoryStore.List(ctx, filter, invoiceFilterFn, sortByTime(filter,
		func(inv *invoice.Invoice) int64 { return inv.IssuedDate.UnixNano() },
		func(inv *invoice.Invoice) string { return inv.ID },
	))
}

func (s *InMemoryInvoiceStore) Count(ctx context.Context, filter *types.InvoiceFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, invoiceFilterFn)
}

// NextInvoiceSequence reserves the next number of the tenant's yearly counter
func (s *InMemoryInvoiceStore) NextInvoiceSequence(ctx context.Context, year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if InTx(ctx) {
		s.reservedInTx++
	}
	key := sequenceKey{tenantID: types.GetTenantID(ctx), year: year}
	s.sequences[key]++
	return s.sequences[key], nil
}

// ReservationsInTx counts sequence reservations made inside a transaction,
// which a rollback would undo on a real database
func (s *InMemoryInvoiceStore) ReservationsInTx() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reservedInTx
}

// Clear resets all stored data
func (s *InMemoryInvoiceStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InMemoryStore.Clear()
	s.sequences = make(map[sequenceKey]int64)
	s.reservedInTx = 0
}

func invoiceFilterFn(ctx context.Context, inv *invoice.Invoice, filter interface{}) bool {
	if !CheckTenantFilter(ctx, inv.TenantID) {
		return false
	}
	f, ok := filter.(*types.InvoiceFilter)
	if !ok || f == nil {
		return true
	}
	if len(f.InvoiceIDs) > 0 && !lo.Contains(f.InvoiceIDs, inv.ID) {
		return false
	}
	if f.ClientID != "" && inv.ClientID != f.ClientID {
		return false
	}
	if f.CaseID != "" && inv.CaseID != f.CaseID {
		return false
	}
	return matchesAny(f.InvoiceStatus, inv.InvoiceStatus) &&
		matchesTime(f.TimeRangeFilter, inv.IssuedDate.UnixNano())
}
