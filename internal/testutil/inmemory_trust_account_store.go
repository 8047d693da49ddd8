package testutil

import (
	"context"
	"sync"

	"github.com/casebill/casebill/internal/domain/trustaccount"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
)

// InMemoryTrustAccountStore implements trustaccount.Repository. Commit holds
// one lock for every account it touches so all updates land or none do.
type InMemoryTrustAccountStore struct {
	*InMemoryStore[*trustaccount.TrustAccount]
	mu           sync.RWMutex
	transactions []*trustaccount.Transaction
	auditLogs    *InMemoryAuditLogStore
}

func NewInMemoryTrustAccountStore(auditLogs *InMemoryAuditLogStore) *InMemoryTrustAccountStore {
	return &InMemoryTrustAccountStore{
		InMemoryStore: NewInMemoryStore[*trustaccount.TrustAccount](copyTrustAccount),
		transactions:  make([]*trustaccount.Transaction, 0),
		auditLogs:     auditLogs,
	}
}

func copyTrustAccount(a *trustaccount.TrustAccount) *trustaccount.TrustAccount {
	if a == nil {
		return nil
	}
	out := *a
	return &out
}

func copyTransaction(t *trustaccount.Transaction) *trustaccount.Transaction {
	out := *t
	return &out
}

// Create rejects a second account for the same client and case
func (s *InMemoryTrustAccountStore) Create(ctx context.Context, a *trustaccount.TrustAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.InMemoryStore.Find(ctx, func(existing *trustaccount.TrustAccount) bool {
		return existing.TenantID == a.TenantID && existing.ClientID == a.ClientID && existing.CaseID == a.CaseID
	}); taken {
		return ierr.NewError("trust account already exists for this case").
			WithHint("Trust account already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	return s.InMemoryStore.Create(ctx, a.ID, a)
}

func (s *InMemoryTrustAccountStore) Get(ctx context.Context, id string) (*trustaccount.TrustAccount, error) {
	a, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, a.TenantID) {
		return nil, notFound(id)
	}
	return a, nil
}

func (s *InMemoryTrustAccountStore) GetByClientCase(ctx context.Context, clientID, caseID string) (*trustaccount.TrustAccount, error) {
	a, ok := s.InMemoryStore.Find(ctx, func(a *trustaccount.TrustAccount) bool {
		return CheckTenantFilter(ctx, a.TenantID) && a.ClientID == clientID && a.CaseID == caseID
	})
	if !ok {
		return nil, notFound(clientID + "/" + caseID)
	}
	return a, nil
}

func (s *InMemoryTrustAccountStore) List(ctx context.Context, filter *types.TrustAccountFilter) ([]*trustaccount.TrustAccount, error) {
	return s.InMemoryStore.List(ctx, filter, trustAccountFilterFn, sortByTime(filter,
		func(a *trustaccount.TrustAccount) int64 { return a.CreatedAt.UnixNano() },
		func(a *trustaccount.TrustAccount) string { return a.ID },
	))
}

func (s *InMemoryTrustAccountStore) Count(ctx context.Context, filter *types.TrustAccountFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, trustAccountFilterFn)
}

func (s *InMemoryTrustAccountStore) Commit(ctx context.Context, updates ...trustaccount.AccountUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		current, err := s.InMemoryStore.Get(ctx, u.Account.ID)
		if err != nil {
			return err
		}
		if current.Version != u.Account.Version {
			return versionConflict(u.Account.ID, u.Account.Version)
		}
	}

	for _, u := range updates {
		next := copyTrustAccount(u.Account)
		next.Version = u.Account.Version + 1
		if err := s.InMemoryStore.CompareAndSwap(ctx, next.ID, next, nil); err != nil {
			return err
		}
		for _, txn := range u.Transactions {
			s.transactions = append(s.transactions, copyTransaction(txn))
		}
		for _, entry := range u.AuditLogs {
			if s.auditLogs != nil {
				_ = s.auditLogs.Create(ctx, entry)
			}
		}
	}

	for _, u := range updates {
		u.Account.Version++
	}
	return nil
}

// ListTransactions returns entries in posting order, reversed for descending filters
func (s *InMemoryTrustAccountStore) ListTransactions(ctx context.Context, filter *types.TrustTransactionFilter) ([]*trustaccount.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*trustaccount.Transaction, 0)
	for _, txn := range s.transactions {
		if trustTransactionMatches(ctx, txn, filter) {
			result = append(result, copyTransaction(txn))
		}
	}
	if filter == nil || filter.GetOrder() != types.OrderAsc {
		result = lo.Reverse(result)
	}
	if filter != nil && !filter.IsUnlimited() {
		start := filter.GetOffset()
		if start >= len(result) {
			return []*trustaccount.Transaction{}, nil
		}
		end := start + filter.GetLimit()
		if end > len(result) {
			end = len(result)
		}
		result = result[start:end]
	}
	return result, nil
}

func (s *InMemoryTrustAccountStore) CountTransactions(ctx context.Context, filter *types.TrustTransactionFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.CountBy(s.transactions, func(txn *trustaccount.Transaction) bool {
		return trustTransactionMatches(ctx, txn, filter)
	}), nil
}

// CorruptBalance overwrites the cached balance without a ledger entry
func (s *InMemoryTrustAccountStore) CorruptBalance(ctx context.Context, id string, mutate func(a *trustaccount.TrustAccount)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return err
	}
	mutate(a)
	return s.InMemoryStore.CompareAndSwap(ctx, id, a, nil)
}

// Transactions returns every stored entry in posting order
func (s *InMemoryTrustAccountStore) Transactions() []*trustaccount.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Map(s.transactions, func(txn *trustaccount.Transaction, _ int) *trustaccount.Transaction {
		return copyTransaction(txn)
	})
}

func (s *InMemoryTrustAccountStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InMemoryStore.Clear()
	s.transactions = make([]*trustaccount.Transaction, 0)
}

func trustAccountFilterFn(ctx context.Context, a *trustaccount.TrustAccount, filter interface{}) bool {
	if !CheckTenantFilter(ctx, a.TenantID) {
		return false
	}
	f, ok := filter.(*types.TrustAccountFilter)
	if !ok || f == nil {
		return true
	}
	if len(f.TrustAccountIDs) > 0 && !lo.Contains(f.TrustAccountIDs, a.ID) {
		return false
	}
	if f.ClientID != "" && a.ClientID != f.ClientID {
		return false
	}
	if f.CaseID != "" && a.CaseID != f.CaseID {
		return false
	}
	return matchesAny(f.AccountStatus, a.AccountStatus)
}

func trustTransactionMatches(ctx context.Context, txn *trustaccount.Transaction, f *types.TrustTransactionFilter) bool {
	if !CheckTenantFilter(ctx, txn.TenantID) {
		return false
	}
	if f == nil {
		return true
	}
	if f.TrustAccountID != "" && txn.TrustAccountID != f.TrustAccountID {
		return false
	}
	return matchesAny(f.Types, txn.Type) &&
		matchesTime(f.TimeRangeFilter, txn.TransactionDate.UnixNano())
}
