package service

import (
	"context"
	"sort"
	"time"

	"github.com/casebill/casebill/internal/api/dto"
	"github.com/casebill/casebill/internal/domain/auditlog"
	"github.com/casebill/casebill/internal/domain/trustaccount"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/notification"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
)

// TrustAccountService posts to the client trust ledger. Every posting is
// approved by a named staff member and audited.
type TrustAccountService interface {
	ProcessTrustTransaction(ctx context.Context, req dto.TrustTransactionRequest) (*dto.TrustTransactionResponse, error)
	GetTrustAccount(ctx context.Context, id string) (*dto.TrustAccountResponse, error)
	ListTrustAccounts(ctx context.Context, filter *types.TrustAccountFilter) (*dto.ListTrustAccountsResponse, error)
	ListTrustTransactions(ctx context.Context, filter *types.TrustTransactionFilter) (*dto.ListTrustTransactionsResponse, error)
	VerifyTrustAccount(ctx context.Context, id string) (*dto.TrustVerificationResponse, error)
	// VerifyAllTrustAccounts replays the ledger of every active account and
	// returns the ones that drifted
	VerifyAllTrustAccounts(ctx context.Context) (*dto.TrustVerificationSweepResponse, error)
	CloseTrustAccount(ctx context.Context, id string, req dto.CloseTrustAccountRequest) (*dto.TrustAccountResponse, error)
}

type trustAccountService struct {
	ServiceParams
}

func NewTrustAccountService(params ServiceParams) TrustAccountService {
	return &trustAccountService{ServiceParams: params}
}

func (s *trustAccountService) ProcessTrustTransaction(ctx context.Context, req dto.TrustTransactionRequest) (*dto.TrustTransactionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.ClientRepo.Get(ctx, req.ClientID); err != nil {
		return nil, err
	}

	var resp *dto.TrustTransactionResponse
	var err error
	if req.Type == types.TrustTransactionTypeTransfer {
		if _, err := s.ClientRepo.Get(ctx, req.TransferTo.ClientID); err != nil {
			return nil, err
		}
		resp, err = s.transfer(ctx, req)
	} else {
		resp, err = s.post(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("posted trust transaction",
		"trust_account_id", resp.Account.ID,
		"transaction_id", resp.Transaction.ID,
		"type", req.Type,
		"amount", req.Amount.String(),
		"current_balance", resp.Account.CurrentBalance.String(),
		"available_balance", resp.Account.AvailableBalance.String(),
		"approved_by", req.ApprovedBy,
	)

	s.notifyActivity(ctx, resp.Account, resp.Transaction)
	if resp.CounterpartyAccount != nil {
		s.notifyActivity(ctx, resp.CounterpartyAccount, resp.CounterpartyEntry)
	}
	return resp, nil
}

// post applies a single-account posting under the account's version
func (s *trustAccountService) post(ctx context.Context, req dto.TrustTransactionRequest) (*dto.TrustTransactionResponse, error) {
	return retryOnConflict(ctx, s.Config.Retry, isVersionConflict, func(ctx context.Context) (*dto.TrustTransactionResponse, error) {
		var resp *dto.TrustTransactionResponse
		err := s.DB.WithTx(ctx, func(ctx context.Context) error {
			account, opened, err := s.loadAccount(ctx, req.ClientID, req.CaseID)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			txn, err := account.Apply(trustaccount.Posting{
				Type:        req.Type,
				Amount:      req.Amount,
				Description: req.Description,
				Reference:   req.Reference,
				ApprovedBy:  req.ApprovedBy,
				At:          now,
			}, types.GetDefaultBaseModel(ctx))
			if err != nil {
				return err
			}
			account.Touch(ctx)

			if opened {
				if err := s.openAccount(ctx, account); err != nil {
					return err
				}
			}
			err = s.TrustAccountRepo.Commit(ctx, trustaccount.AccountUpdate{
				Account:      account,
				Transactions: []*trustaccount.Transaction{txn},
				AuditLogs:    []*auditlog.AuditLog{s.auditEntry(ctx, account, txn, string(req.Type), now)},
			})
			if err != nil {
				return err
			}
			resp = &dto.TrustTransactionResponse{Account: account, Transaction: txn}
			return nil
		})
		return resp, err
	})
}

// transfer moves funds between two accounts. Both legs and both audit entries
// are committed together. Accounts are always read in client and case order.
func (s *trustAccountService) transfer(ctx context.Context, req dto.TrustTransactionRequest) (*dto.TrustTransactionResponse, error) {
	sourceKey := accountKey{clientID: req.ClientID, caseID: req.CaseID}
	destKey := accountKey{clientID: req.TransferTo.ClientID, caseID: req.TransferTo.CaseID}
	if sourceKey == destKey {
		return nil, ierr.NewError("cannot transfer to the same account").
			WithHint("Transfer destination must be a different trust account").
			Mark(ierr.ErrValidation)
	}

	return retryOnConflict(ctx, s.Config.Retry, isVersionConflict, func(ctx context.Context) (*dto.TrustTransactionResponse, error) {
		var resp *dto.TrustTransactionResponse
		err := s.DB.WithTx(ctx, func(ctx context.Context) error {
			keys := []accountKey{sourceKey, destKey}
			sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
			accounts := make(map[accountKey]*trustaccount.TrustAccount, 2)
			opened := make(map[accountKey]bool, 2)
			for _, key := range keys {
				account, isNew, err := s.loadAccount(ctx, key.clientID, key.caseID)
				if err != nil {
					return err
				}
				accounts[key], opened[key] = account, isNew
			}
			source, dest := accounts[sourceKey], accounts[destKey]

			now := time.Now().UTC()
			base := types.GetDefaultBaseModel(ctx)
			debit, err := source.Apply(trustaccount.Posting{
				Type:                  types.TrustTransactionTypeTransfer,
				Direction:             types.TrustEntryDirectionDebit,
				Amount:                req.Amount,
				Description:           req.Description,
				Reference:             req.Reference,
				ApprovedBy:            req.ApprovedBy,
				CounterpartyAccountID: lo.ToPtr(dest.ID),
				At:                    now,
			}, base)
			if err != nil {
				return err
			}
			credit, err := dest.Apply(trustaccount.Posting{
				Type:                  types.TrustTransactionTypeTransfer,
				Direction:             types.TrustEntryDirectionCredit,
				Amount:                req.Amount,
				Description:           req.Description,
				Reference:             req.Reference,
				ApprovedBy:            req.ApprovedBy,
				CounterpartyAccountID: lo.ToPtr(source.ID),
				At:                    now,
			}, base)
			if err != nil {
				return err
			}
			source.Touch(ctx)
			dest.Touch(ctx)

			for _, key := range keys {
				if !opened[key] {
					continue
				}
				if err := s.openAccount(ctx, accounts[key]); err != nil {
					return err
				}
			}
			err = s.TrustAccountRepo.Commit(ctx,
				trustaccount.AccountUpdate{
					Account:      source,
					Transactions: []*trustaccount.Transaction{debit},
					AuditLogs:    []*auditlog.AuditLog{s.auditEntry(ctx, source, debit, "transfer_out", now)},
				},
				trustaccount.AccountUpdate{
					Account:      dest,
					Transactions: []*trustaccount.Transaction{credit},
					AuditLogs:    []*auditlog.AuditLog{s.auditEntry(ctx, dest, credit, "transfer_in", now)},
				},
			)
			if err != nil {
				return err
			}
			resp = &dto.TrustTransactionResponse{
				Account:             source,
				Transaction:         debit,
				CounterpartyAccount: dest,
				CounterpartyEntry:   credit,
			}
			return nil
		})
		return resp, err
	})
}

type accountKey struct {
	clientID string
	caseID   string
}

func (k accountKey) less(o accountKey) bool {
	if k.clientID != o.clientID {
		return k.clientID < o.clientID
	}
	return k.caseID < o.caseID
}

// loadAccount returns the account of a client and case. A pair without one
// gets an unsaved empty account and opened is true; it is only persisted by
// openAccount once a posting to it has been accepted.
func (s *trustAccountService) loadAccount(ctx context.Context, clientID, caseID string) (*trustaccount.TrustAccount, bool, error) {
	account, err := s.TrustAccountRepo.GetByClientCase(ctx, clientID, caseID)
	if err == nil {
		return account, false, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, false, err
	}
	return trustaccount.New(clientID, caseID, types.GetDefaultBaseModel(ctx)), true, nil
}

// openAccount inserts an account created by loadAccount. Losing the race to
// another opener is a version conflict, so the retry posts to the winner.
func (s *trustAccountService) openAccount(ctx context.Context, account *trustaccount.TrustAccount) error {
	if err := s.TrustAccountRepo.Create(ctx, account); err != nil {
		if ierr.IsAlreadyExists(err) {
			return ierr.WithError(err).Mark(ierr.ErrVersionConflict)
		}
		return err
	}

	s.Logger.Infow("opened trust account",
		"trust_account_id", account.ID,
		"account_number", account.AccountNumber,
		"client_id", account.ClientID,
		"case_id", account.CaseID,
	)
	return nil
}

func (s *trustAccountService) auditEntry(ctx context.Context, account *trustaccount.TrustAccount, txn *trustaccount.Transaction, action string, at time.Time) *auditlog.AuditLog {
	details := types.Metadata{
		"transaction_id":    txn.ID,
		"type":              string(txn.Type),
		"direction":         string(txn.Direction),
		"amount":            txn.Amount.String(),
		"resulting_balance": txn.ResultingBalance.String(),
		"resulting_held":    txn.ResultingHeld.String(),
		"description":       txn.Description,
	}
	if txn.Reference != nil {
		details["reference"] = *txn.Reference
	}
	if txn.CounterpartyAccountID != nil {
		details["counterparty_account_id"] = *txn.CounterpartyAccountID
	}
	return auditlog.New(types.GetTenantID(ctx), types.AuditEntityTrustAccount, account.ID, action, txn.ApprovedBy, details, at)
}

func (s *trustAccountService) notifyActivity(ctx context.Context, account *trustaccount.TrustAccount, txn *trustaccount.Transaction) {
	s.Notifier.Notify(ctx, &notification.Notification{
		Type:     types.NotificationTypeTrustAccountActivity,
		Priority: types.NotificationPriorityMedium,
		Title:    "Trust account activity",
		Message:  "A " + string(txn.Type) + " of " + txn.Amount.StringFixed(2) + " was posted to trust account " + account.AccountNumber,
		Metadata: map[string]string{
			"trust_account_id":  account.ID,
			"transaction_id":    txn.ID,
			"client_id":         account.ClientID,
			"case_id":           account.CaseID,
			"type":              string(txn.Type),
			"amount":            txn.Amount.String(),
			"available_balance": account.AvailableBalance.String(),
			"approved_by":       txn.ApprovedBy,
		},
	})
}

func (s *trustAccountService) GetTrustAccount(ctx context.Context, id string) (*dto.TrustAccountResponse, error) {
	account, err := s.TrustAccountRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewTrustAccountResponse(account), nil
}

func (s *trustAccountService) ListTrustAccounts(ctx context.Context, filter *types.TrustAccountFilter) (*dto.ListTrustAccountsResponse, error) {
	if filter == nil {
		filter = types.NewTrustAccountFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	accounts, err := s.TrustAccountRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.TrustAccountRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(accounts, func(a *trustaccount.TrustAccount, _ int) *dto.TrustAccountResponse {
		return dto.NewTrustAccountResponse(a)
	})
	resp := types.NewListResponse(items, total, filter)
	return &resp, nil
}

func (s *trustAccountService) ListTrustTransactions(ctx context.Context, filter *types.TrustTransactionFilter) (*dto.ListTrustTransactionsResponse, error) {
	if filter == nil || filter.TrustAccountID == "" {
		return nil, ierr.NewError("trust account id is required").
			WithHint("Trust account id is required").
			Mark(ierr.ErrValidation)
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.TrustAccountRepo.Get(ctx, filter.TrustAccountID); err != nil {
		return nil, err
	}

	txns, err := s.TrustAccountRepo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.TrustAccountRepo.CountTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := types.NewListResponse(txns, total, filter)
	return &resp, nil
}

// VerifyTrustAccount replays the ledger and compares it with the cached balances
func (s *trustAccountService) VerifyTrustAccount(ctx context.Context, id string) (*dto.TrustVerificationResponse, error) {
	account, err := s.TrustAccountRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	filter := types.NewNoLimitTrustTransactionFilter()
	filter.TrustAccountID = id
	filter.Order = lo.ToPtr(types.OrderAsc)
	txns, err := s.TrustAccountRepo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := &dto.TrustVerificationResponse{
		TrustAccountID:   account.ID,
		Transactions:     len(txns),
		ReplayedBalance:  decimal.Zero,
		ReplayedHeld:     decimal.Zero,
		CurrentBalance:   account.CurrentBalance,
		HeldAmount:       account.HeldAmount,
		AvailableBalance: account.AvailableBalance,
	}

	res, err := account.Verify(txns)
	if err != nil {
		s.Logger.Errorw("trust account failed verification",
			"trust_account_id", account.ID,
			"error", err,
		)
		s.Sentry.CaptureExceptionWithContext(ctx, err)
		resp.Error = err.Error()
		if res.Transactions > 0 {
			resp.ReplayedBalance = res.Balance
			resp.ReplayedHeld = res.Held
		}
		return resp, nil
	}

	resp.Consistent = true
	resp.ReplayedBalance = res.Balance
	resp.ReplayedHeld = res.Held
	return resp, nil
}

// verifyConcurrency bounds the ledger replays running at once
const verifyConcurrency = 4

func (s *trustAccountService) VerifyAllTrustAccounts(ctx context.Context) (*dto.TrustVerificationSweepResponse, error) {
	filter := types.NewNoLimitTrustAccountFilter()
	filter.AccountStatus = []types.TrustAccountStatus{types.TrustAccountStatusActive}
	accounts, err := s.TrustAccountRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	results := make([]*dto.TrustVerificationResponse, len(accounts))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(verifyConcurrency)
	for i, account := range accounts {
		p.Go(func(ctx context.Context) error {
			res, err := s.VerifyTrustAccount(ctx, account.ID)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	resp := &dto.TrustVerificationSweepResponse{
		Checked:      len(accounts),
		Inconsistent: lo.Filter(results, func(r *dto.TrustVerificationResponse, _ int) bool { return !r.Consistent }),
	}
	if len(resp.Inconsistent) > 0 {
		s.Logger.Warnw("trust verification found inconsistent accounts",
			"checked", resp.Checked,
			"inconsistent", len(resp.Inconsistent),
		)
	}
	return resp, nil
}

func (s *trustAccountService) CloseTrustAccount(ctx context.Context, id string, req dto.CloseTrustAccountRequest) (*dto.TrustAccountResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	account, err := retryOnConflict(ctx, s.Config.Retry, isVersionConflict, func(ctx context.Context) (*trustaccount.TrustAccount, error) {
		account, err := s.TrustAccountRepo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		if err := account.Close(now); err != nil {
			return nil, err
		}
		account.Touch(ctx)

		entry := auditlog.New(types.GetTenantID(ctx), types.AuditEntityTrustAccount, account.ID, "close", req.ApprovedBy, types.Metadata{
			"account_number": account.AccountNumber,
		}, now)
		if err := s.TrustAccountRepo.Commit(ctx, trustaccount.AccountUpdate{
			Account:   account,
			AuditLogs: []*auditlog.AuditLog{entry},
		}); err != nil {
			return nil, err
		}
		return account, nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("closed trust account",
		"trust_account_id", account.ID,
		"approved_by", req.ApprovedBy,
	)
	return dto.NewTrustAccountResponse(account), nil
}
