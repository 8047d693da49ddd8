package postgres

import (
	"context"
	"fmt"

	"github.com/casebill/casebill/internal/domain/trustaccount"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/postgres"
	"github.com/casebill/casebill/internal/types"
)

const trustTransactionColumns = `id, tenant_id, trust_account_id, transaction_date, type, direction, amount,
	resulting_balance, resulting_held, description, reference, approved_by, counterparty_account_id,
	status, created_at, updated_at, created_by, updated_by`

type trustAccountRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

// NewTrustAccountRepository creates a new instance of the trust ledger repository
func NewTrustAccountRepository(db *postgres.DB, logger *logger.Logger) trustaccount.Repository {
	return &trustAccountRepository{db: db, logger: logger}
}

func (r *trustAccountRepository) Create(ctx context.Context, a *trustaccount.TrustAccount) error {
	query := `
		INSERT INTO trust_accounts (
			id, tenant_id, client_id, case_id, account_number, account_status, current_balance,
			held_amount, available_balance, currency, last_activity_at, closed_at, version,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :tenant_id, :client_id, :case_id, :account_number, :account_status, :current_balance,
			:held_amount, :available_balance, :currency, :last_activity_at, :closed_at, :version,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.logger.Debugw("opening trust account",
		"trust_account_id", a.ID,
		"client_id", a.ClientID,
		"case_id", a.CaseID,
	)

	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return dbError(err, "Trust account", "create")
	}
	return nil
}

func (r *trustAccountRepository) Get(ctx context.Context, id string) (*trustaccount.TrustAccount, error) {
	return r.getOne(ctx, "id = :id", map[string]interface{}{"id": id}, id)
}

func (r *trustAccountRepository) GetByClientCase(ctx context.Context, clientID, caseID string) (*trustaccount.TrustAccount, error) {
	return r.getOne(ctx, "client_id = :client_id AND case_id = :case_id", map[string]interface{}{
		"client_id": clientID,
		"case_id":   caseID,
	}, fmt.Sprintf("%s/%s", clientID, caseID))
}

func (r *trustAccountRepository) getOne(ctx context.Context, clause string, params map[string]interface{}, key string) (*trustaccount.TrustAccount, error) {
	params["tenant_id"] = types.GetTenantID(ctx)
	params["status"] = types.StatusPublished
	query := `SELECT * FROM trust_accounts WHERE ` + clause + ` AND tenant_id = :tenant_id AND status = :status` + lockClause(ctx)

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, dbError(err, "Trust account", "get")
	}
	a, err := scanOne[trustaccount.TrustAccount](rows)
	if err != nil {
		if isNoRows(err) {
			return nil, notFound("Trust account", key)
		}
		return nil, dbError(err, "Trust account", "get")
	}
	return a, nil
}

func (r *trustAccountRepository) List(ctx context.Context, filter *types.TrustAccountFilter) ([]*trustaccount.TrustAccount, error) {
	if filter == nil {
		filter = types.NewNoLimitTrustAccountFilter()
	}
	b := r.accountFilter(ctx, filter)
	query := "SELECT * FROM trust_accounts" + b.where() + b.page("created_at", filter)

	rows, err := r.db.NamedQueryContext(ctx, query, b.params)
	if err != nil {
		return nil, dbError(err, "Trust account", "list")
	}
	items, err := scanAll[trustaccount.TrustAccount](rows)
	if err != nil {
		return nil, dbError(err, "Trust account", "list")
	}
	return items, nil
}

func (r *trustAccountRepository) Count(ctx context.Context, filter *types.TrustAccountFilter) (int, error) {
	total, err := count(ctx, r.db, "trust_accounts", r.accountFilter(ctx, filter))
	if err != nil {
		return 0, dbError(err, "Trust account", "count")
	}
	return total, nil
}

// Commit writes balances, ledger entries and audit entries of every update in
// one transaction. A stale version on any account rolls back the whole commit.
func (r *trustAccountRepository) Commit(ctx context.Context, updates ...trustaccount.AccountUpdate) error {
	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		for _, u := range updates {
			if err := r.updateAccount(ctx, u.Account); err != nil {
				return err
			}
			for _, txn := range u.Transactions {
				if err := r.insertTransaction(ctx, txn); err != nil {
					return err
				}
			}
			for _, entry := range u.AuditLogs {
				if err := insertAuditLog(ctx, r.db, entry); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, u := range updates {
		u.Account.Version++
	}
	return nil
}

func (r *trustAccountRepository) updateAccount(ctx context.Context, a *trustaccount.TrustAccount) error {
	query := `
		UPDATE trust_accounts SET
			account_status = :account_status,
			current_balance = :current_balance,
			held_amount = :held_amount,
			available_balance = :available_balance,
			last_activity_at = :last_activity_at,
			closed_at = :closed_at,
			version = version + 1,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id AND version = :version`

	r.logger.Debugw("updating trust account balances",
		"trust_account_id", a.ID,
		"version", a.Version,
		"current_balance", a.CurrentBalance,
		"held_amount", a.HeldAmount,
	)

	result, err := r.db.NamedExecContext(ctx, query, a)
	if err != nil {
		return dbError(err, "Trust account", "update")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return dbError(err, "Trust account", "update")
	}
	if affected == 0 {
		return versionConflict("Trust account", a.ID, a.Version)
	}
	return nil
}

func (r *trustAccountRepository) insertTransaction(ctx context.Context, txn *trustaccount.Transaction) error {
	query := `
		INSERT INTO trust_transactions (
			id, tenant_id, trust_account_id, transaction_date, type, direction, amount,
			resulting_balance, resulting_held, description, reference, approved_by,
			counterparty_account_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :tenant_id, :trust_account_id, :transaction_date, :type, :direction, :amount,
			:resulting_balance, :resulting_held, :description, :reference, :approved_by,
			:counterparty_account_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := r.db.NamedExecContext(ctx, query, txn); err != nil {
		return dbError(err, "Trust transaction", "create")
	}
	return nil
}

func (r *trustAccountRepository) ListTransactions(ctx context.Context, filter *types.TrustTransactionFilter) ([]*trustaccount.Transaction, error) {
	if filter == nil {
		filter = types.NewNoLimitTrustTransactionFilter()
	}
	b := r.transactionFilter(ctx, filter)
	query := "SELECT " + trustTransactionColumns + " FROM trust_transactions" + b.where() + b.page("posting_seq", filter)

	rows, err := r.db.NamedQueryContext(ctx, query, b.params)
	if err != nil {
		return nil, dbError(err, "Trust transaction", "list")
	}
	items, err := scanAll[trustaccount.Transaction](rows)
	if err != nil {
		return nil, dbError(err, "Trust transaction", "list")
	}
	return items, nil
}

func (r *trustAccountRepository) CountTransactions(ctx context.Context, filter *types.TrustTransactionFilter) (int, error) {
	total, err := count(ctx, r.db, "trust_transactions", r.transactionFilter(ctx, filter))
	if err != nil {
		return 0, dbError(err, "Trust transaction", "count")
	}
	return total, nil
}

func (r *trustAccountRepository) accountFilter(ctx context.Context, f *types.TrustAccountFilter) *queryBuilder {
	b := newQueryBuilder(ctx)
	if f == nil {
		return b
	}
	b.in("id", f.TrustAccountIDs).
		eq("client_id", f.ClientID).
		eq("case_id", f.CaseID).
		in("account_status", stringsOf(f.AccountStatus))
	return b
}

func (r *trustAccountRepository) transactionFilter(ctx context.Context, f *types.TrustTransactionFilter) *queryBuilder {
	b := newQueryBuilder(ctx)
	if f == nil {
		return b
	}
	b.eq("trust_account_id", f.TrustAccountID).
		in("type", stringsOf(f.Types)).
		timeRange("transaction_date", f.TimeRangeFilter)
	return b
}
