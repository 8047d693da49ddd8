package types

import (
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/samber/lo"
)

// TrustAccountStatus is the lifecycle state of a trust account
type TrustAccountStatus string

const (
	TrustAccountStatusActive TrustAccountStatus = "active"
	TrustAccountStatusClosed TrustAccountStatus = "closed"
)

// TrustTransactionType is the kind of ledger entry
type TrustTransactionType string

const (
	TrustTransactionTypeDeposit    TrustTransactionType = "deposit"
	TrustTransactionTypeWithdrawal TrustTransactionType = "withdrawal"
	TrustTransactionTypeTransfer   TrustTransactionType = "transfer"
	TrustTransactionTypeHold       TrustTransactionType = "hold"
	TrustTransactionTypeRelease    TrustTransactionType = "release"
)

func (t TrustTransactionType) String() string {
	return string(t)
}

func (t TrustTransactionType) Validate() error {
	allowed := []TrustTransactionType{
		TrustTransactionTypeDeposit,
		TrustTransactionTypeWithdrawal,
		TrustTransactionTypeTransfer,
		TrustTransactionTypeHold,
		TrustTransactionTypeRelease,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid trust transaction type").
			WithHint("Please provide a valid trust transaction type").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TrustEntryDirection is the effect of an entry on the account balance
type TrustEntryDirection string

const (
	TrustEntryDirectionCredit TrustEntryDirection = "credit"
	TrustEntryDirectionDebit  TrustEntryDirection = "debit"
	// holds and releases move funds between available and held without touching the balance
	TrustEntryDirectionNone TrustEntryDirection = "none"
)

const (
	TrustAccountNumberPrefix = "TRUST"
)

// TrustTransactionFilter represents the filter for listing ledger entries
type TrustTransactionFilter struct {
	*QueryFilter
	*TimeRangeFilter

	TrustAccountID string                 `json:"trust_account_id,omitempty" form:"trust_account_id"`
	Types          []TrustTransactionType `json:"types,omitempty" form:"types"`
}

func NewTrustTransactionFilter() *TrustTransactionFilter {
	return &TrustTransactionFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

func NewNoLimitTrustTransactionFilter() *TrustTransactionFilter {
	return &TrustTransactionFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

func (f *TrustTransactionFilter) Validate() error {
	if f == nil {
		return nil
	}
	if err := f.QueryFilter.Validate(); err != nil {
		return err
	}
	if err := f.TimeRangeFilter.Validate(); err != nil {
		return err
	}
	for _, t := range f.Types {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s TrustAccountStatus) Validate() error {
	allowed := []TrustAccountStatus{
		TrustAccountStatusActive,
		TrustAccountStatusClosed,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid trust account status").
			WithHint("Please provide a valid trust account status").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TrustAccountFilter represents the filter for listing trust accounts
type TrustAccountFilter struct {
	*QueryFilter

	TrustAccountIDs []string             `json:"trust_account_ids,omitempty" form:"trust_account_ids"`
	ClientID        string               `json:"client_id,omitempty" form:"client_id"`
	CaseID          string               `json:"case_id,omitempty" form:"case_id"`
	AccountStatus   []TrustAccountStatus `json:"account_status,omitempty" form:"account_status"`
}

func NewTrustAccountFilter() *TrustAccountFilter {
	return &TrustAccountFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

func NewNoLimitTrustAccountFilter() *TrustAccountFilter {
	return &TrustAccountFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

func (f *TrustAccountFilter) Validate() error {
	if f == nil {
		return nil
	}
	if err := f.QueryFilter.Validate(); err != nil {
		return err
	}
	for _, s := range f.AccountStatus {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
