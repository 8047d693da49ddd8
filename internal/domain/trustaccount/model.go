package trustaccount

import (
	"fmt"
	"time"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/types"
	"github.com/shopspring/decimal"
)

// TrustAccount holds client funds for one case. Balances are derived from
// the append-only transaction log and cached here.
type TrustAccount struct {
	ID               string                   `db:"id" json:"id"`
	ClientID         string                   `db:"client_id" json:"client_id"`
	CaseID           string                   `db:"case_id" json:"case_id"`
	AccountNumber    string                   `db:"account_number" json:"account_number"`
	AccountStatus    types.TrustAccountStatus `db:"account_status" json:"account_status"`
	CurrentBalance   decimal.Decimal          `db:"current_balance" json:"current_balance"`
	HeldAmount       decimal.Decimal          `db:"held_amount" json:"held_amount"`
	AvailableBalance decimal.Decimal          `db:"available_balance" json:"available_balance"`
	Currency         string                   `db:"currency" json:"currency"`
	LastActivityAt   *time.Time               `db:"last_activity_at" json:"last_activity_at,omitempty"`
	ClosedAt         *time.Time               `db:"closed_at" json:"closed_at,omitempty"`
	Version          int                      `db:"version" json:"version"`
	types.BaseModel
}

// Transaction is one immutable ledger entry
type Transaction struct {
	ID                    string                     `db:"id" json:"id"`
	TrustAccountID        string                     `db:"trust_account_id" json:"trust_account_id"`
	TransactionDate       time.Time                  `db:"transaction_date" json:"transaction_date"`
	Type                  types.TrustTransactionType `db:"type" json:"type"`
	Direction             types.TrustEntryDirection  `db:"direction" json:"direction"`
	Amount                decimal.Decimal            `db:"amount" json:"amount"`
	ResultingBalance      decimal.Decimal            `db:"resulting_balance" json:"resulting_balance"`
	ResultingHeld         decimal.Decimal            `db:"resulting_held" json:"resulting_held"`
	Description           string                     `db:"description" json:"description"`
	Reference             *string                    `db:"reference" json:"reference,omitempty"`
	ApprovedBy            string                     `db:"approved_by" json:"approved_by"`
	CounterpartyAccountID *string                    `db:"counterparty_account_id" json:"counterparty_account_id,omitempty"`
	types.BaseModel
}

// Posting describes a ledger entry before it is applied to an account
type Posting struct {
	Type                  types.TrustTransactionType
	Direction             types.TrustEntryDirection // only read for transfers
	Amount                decimal.Decimal
	Description           string
	Reference             *string
	ApprovedBy            string
	CounterpartyAccountID *string
	At                    time.Time
}

// GenerateAccountNumber returns a unique, human readable account number
func GenerateAccountNumber(at time.Time) string {
	return fmt.Sprintf("%s-%d-%s", types.TrustAccountNumberPrefix, at.UnixMilli(), types.GenerateShortIDWithPrefix(""))
}

// New returns an empty active account for a client and case
func New(clientID, caseID string, base types.BaseModel) *TrustAccount {
	return &TrustAccount{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRUST_ACCOUNT),
		ClientID:         clientID,
		CaseID:           caseID,
		AccountNumber:    GenerateAccountNumber(base.CreatedAt),
		AccountStatus:    types.TrustAccountStatusActive,
		CurrentBalance:   decimal.Zero,
		HeldAmount:       decimal.Zero,
		AvailableBalance: decimal.Zero,
		Currency:         types.DefaultCurrency,
		Version:          1,
		BaseModel:        base,
	}
}

// Apply validates p against the account balances, moves the balances and
// returns the entry to append. On error the account is left untouched.
func (a *TrustAccount) Apply(p Posting, base types.BaseModel) (*Transaction, error) {
	if a.AccountStatus != types.TrustAccountStatusActive {
		return nil, ierr.NewError("trust account is closed").
			WithHint("Transactions cannot be posted to a closed trust account").
			WithReportableDetails(map[string]any{
				"trust_account_id": a.ID,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	if err := p.Type.Validate(); err != nil {
		return nil, err
	}
	if !p.Amount.IsPositive() {
		return nil, ierr.NewError("invalid amount").
			WithHint("Trust transaction amount must be greater than 0").
			WithReportableDetails(map[string]any{
				"amount": p.Amount.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	if p.ApprovedBy == "" {
		return nil, ierr.NewError("approved by is required").
			WithHint("Every trust transaction must name the approving staff member").
			Mark(ierr.ErrValidation)
	}

	direction, err := p.direction()
	if err != nil {
		return nil, err
	}

	balance := a.CurrentBalance
	held := a.HeldAmount
	available := a.AvailableBalance

	switch {
	case direction == types.TrustEntryDirectionCredit:
		balance = balance.Add(p.Amount)
	case direction == types.TrustEntryDirectionDebit:
		if p.Amount.GreaterThan(available) {
			return nil, a.insufficientFunds(p)
		}
		balance = balance.Sub(p.Amount)
	case p.Type == types.TrustTransactionTypeHold:
		if p.Amount.GreaterThan(available) {
			return nil, a.insufficientFunds(p)
		}
		held = held.Add(p.Amount)
	case p.Type == types.TrustTransactionTypeRelease:
		if p.Amount.GreaterThan(held) {
			return nil, ierr.NewError("release exceeds held funds").
				WithHintf("Only %s is currently held", held.StringFixed(2)).
				WithReportableDetails(map[string]any{
					"trust_account_id": a.ID,
					"amount":           p.Amount.String(),
					"held_amount":      held.String(),
				}).
				Mark(ierr.ErrValidation)
		}
		held = held.Sub(p.Amount)
	}

	a.CurrentBalance = balance
	a.HeldAmount = held
	a.AvailableBalance = balance.Sub(held)
	at := p.At
	a.LastActivityAt = &at

	return &Transaction{
		ID:                    types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRUST_TRANSACTION),
		TrustAccountID:        a.ID,
		TransactionDate:       p.At,
		Type:                  p.Type,
		Direction:             direction,
		Amount:                p.Amount,
		ResultingBalance:      a.CurrentBalance,
		ResultingHeld:         a.HeldAmount,
		Description:           p.Description,
		Reference:             p.Reference,
		ApprovedBy:            p.ApprovedBy,
		CounterpartyAccountID: p.CounterpartyAccountID,
		BaseModel:             base,
	}, nil
}

// Close marks an empty account closed
func (a *TrustAccount) Close(at time.Time) error {
	if a.AccountStatus == types.TrustAccountStatusClosed {
		return ierr.NewError("trust account is already closed").
			WithHint("Trust account is already closed").
			Mark(ierr.ErrInvalidOperation)
	}
	if !a.CurrentBalance.IsZero() || !a.HeldAmount.IsZero() {
		return ierr.NewError("trust account still holds funds").
			WithHint("Withdraw or transfer all funds and release all holds before closing").
			WithReportableDetails(map[string]any{
				"trust_account_id": a.ID,
				"current_balance":  a.CurrentBalance.String(),
				"held_amount":      a.HeldAmount.String(),
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	a.AccountStatus = types.TrustAccountStatusClosed
	a.ClosedAt = &at
	return nil
}

func (p Posting) direction() (types.TrustEntryDirection, error) {
	switch p.Type {
	case types.TrustTransactionTypeDeposit:
		return types.TrustEntryDirectionCredit, nil
	case types.TrustTransactionTypeWithdrawal:
		return types.TrustEntryDirectionDebit, nil
	case types.TrustTransactionTypeHold, types.TrustTransactionTypeRelease:
		return types.TrustEntryDirectionNone, nil
	case types.TrustTransactionTypeTransfer:
		if p.Direction != types.TrustEntryDirectionCredit && p.Direction != types.TrustEntryDirectionDebit {
			return "", ierr.NewError("transfer leg needs a direction").
				WithHint("Transfer legs are either credits or debits").
				Mark(ierr.ErrValidation)
		}
		if p.CounterpartyAccountID == nil {
			return "", ierr.NewError("transfer leg needs a counterparty").
				WithHint("Transfer destination is required").
				Mark(ierr.ErrValidation)
		}
		return p.Direction, nil
	}
	return "", ierr.NewError("unsupported trust transaction type").
		WithHintf("Unsupported trust transaction type %s", p.Type).
		Mark(ierr.ErrValidation)
}

func (a *TrustAccount) insufficientFunds(p Posting) error {
	return ierr.NewError("insufficient available trust funds").
		WithHintf("Only %s is available in the trust account", a.AvailableBalance.StringFixed(2)).
		WithReportableDetails(map[string]any{
			"trust_account_id":  a.ID,
			"type":              p.Type,
			"amount":            p.Amount.String(),
			"available_balance": a.AvailableBalance.String(),
		}).
		Mark(ierr.ErrInsufficientFunds)
}

// ReplayResult is the outcome of re-deriving balances from the ledger
type ReplayResult struct {
	Balance      decimal.Decimal
	Held         decimal.Decimal
	Transactions int
}

// Replay re-derives balances from the transactions, which must be in posting
// order. Every entry's resulting balances are checked along the way.
func Replay(txns []*Transaction) (ReplayResult, error) {
	balance := decimal.Zero
	held := decimal.Zero
	for i, txn := range txns {
		switch txn.Direction {
		case types.TrustEntryDirectionCredit:
			balance = balance.Add(txn.Amount)
		case types.TrustEntryDirectionDebit:
			balance = balance.Sub(txn.Amount)
		case types.TrustEntryDirectionNone:
			switch txn.Type {
			case types.TrustTransactionTypeHold:
				held = held.Add(txn.Amount)
			case types.TrustTransactionTypeRelease:
				held = held.Sub(txn.Amount)
			}
		}
		if !balance.Equal(txn.ResultingBalance) || !held.Equal(txn.ResultingHeld) {
			return ReplayResult{}, ierr.NewError("trust ledger replay mismatch").
				WithHint("Trust ledger is inconsistent").
				WithReportableDetails(map[string]any{
					"transaction_id":   txn.ID,
					"position":         i,
					"expected_balance": txn.ResultingBalance.String(),
					"replayed_balance": balance.String(),
					"expected_held":    txn.ResultingHeld.String(),
					"replayed_held":    held.String(),
				}).
				Mark(ierr.ErrSystem)
		}
		if balance.Sub(held).IsNegative() {
			return ReplayResult{}, ierr.NewError("trust ledger went negative").
				WithHint("Trust ledger is inconsistent").
				WithReportableDetails(map[string]any{
					"transaction_id": txn.ID,
					"position":       i,
				}).
				Mark(ierr.ErrSystem)
		}
	}
	return ReplayResult{Balance: balance, Held: held, Transactions: len(txns)}, nil
}

// Verify replays txns and compares the result with the cached balances
func (a *TrustAccount) Verify(txns []*Transaction) (ReplayResult, error) {
	res, err := Replay(txns)
	if err != nil {
		return res, err
	}
	if !res.Balance.Equal(a.CurrentBalance) || !res.Held.Equal(a.HeldAmount) ||
		!a.AvailableBalance.Equal(a.CurrentBalance.Sub(a.HeldAmount)) {
		return res, ierr.NewError("trust account balances do not match its ledger").
			WithHint("Trust ledger is inconsistent").
			WithReportableDetails(map[string]any{
				"trust_account_id": a.ID,
				"current_balance":  a.CurrentBalance.String(),
				"replayed_balance": res.Balance.String(),
				"held_amount":      a.HeldAmount.String(),
				"replayed_held":    res.Held.String(),
			}).
			Mark(ierr.ErrSystem)
	}
	return res, nil
}
