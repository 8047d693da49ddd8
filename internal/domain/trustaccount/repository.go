package trustaccount

import (
	"context"

	"github.com/casebill/casebill/internal/domain/auditlog"
	"github.com/casebill/casebill/internal/types"
)

// AccountUpdate is one account's share of a ledger commit
type AccountUpdate struct {
	// Account carries the new balances. Its Version must be the version that was read.
	Account      *TrustAccount
	Transactions []*Transaction
	AuditLogs    []*auditlog.AuditLog
}

// Repository defines the interface for trust ledger persistence
type Repository interface {
	// Create opens an account. A second account for the same client and case fails with ErrAlreadyExists.
	Create(ctx context.Context, account *TrustAccount) error
	Get(ctx context.Context, id string) (*TrustAccount, error)
	GetByClientCase(ctx context.Context, clientID, caseID string) (*TrustAccount, error)
	List(ctx context.Context, filter *types.TrustAccountFilter) ([]*TrustAccount, error)
	Count(ctx context.Context, filter *types.TrustAccountFilter) (int, error)

	// Commit writes every update or none. Each account is written only if its
	// stored version still equals Account.Version, otherwise the whole commit
	// fails with ErrVersionConflict. Versions are bumped on success.
	Commit(ctx context.Context, updates ...AccountUpdate) error

	// ListTransactions returns ledger entries ordered by posting sequence in the filter order
	ListTransactions(ctx context.Context, filter *types.TrustTransactionFilter) ([]*Transaction, error)
	CountTransactions(ctx context.Context, filter *types.TrustTransactionFilter) (int, error)
}
