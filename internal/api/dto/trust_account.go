package dto

import (
	"strings"

	"github.com/casebill/casebill/internal/domain/trustaccount"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/types"
	"github.com/casebill/casebill/internal/validator"
	"github.com/shopspring/decimal"
)

// TransferDestination names the client and case receiving a transfer
type TransferDestination struct {
	ClientID string `json:"client_id" validate:"required"`
	CaseID   string `json:"case_id" validate:"required"`
}

type TrustTransactionRequest struct {
	ClientID    string                     `json:"client_id" validate:"required"`
	CaseID      string                     `json:"case_id" validate:"required"`
	Type        types.TrustTransactionType `json:"type" validate:"required"`
	Amount      decimal.Decimal            `json:"amount" validate:"required"`
	Description string                     `json:"description" validate:"required,max=1000"`
	ApprovedBy  string                     `json:"approved_by" validate:"required,max=255"`
	Reference   *string                    `json:"reference,omitempty" validate:"omitempty,max=255"`
	TransferTo  *TransferDestination       `json:"transfer_to,omitempty"`
}

func (r *TrustTransactionRequest) Validate() error {
	if strings.TrimSpace(r.ApprovedBy) == "" {
		return ierr.NewError("approved by is required").
			WithHint("Every trust transaction must name the approving staff member").
			Mark(ierr.ErrValidation)
	}
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Type.Validate(); err != nil {
		return err
	}
	if !r.Amount.IsPositive() {
		return ierr.NewError("invalid amount").
			WithHint("Trust transaction amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	if r.Type == types.TrustTransactionTypeTransfer {
		if r.TransferTo == nil {
			return ierr.NewError("transfer destination is required").
				WithHint("Transfers need a destination client and case").
				Mark(ierr.ErrValidation)
		}
		if r.TransferTo.ClientID == r.ClientID && r.TransferTo.CaseID == r.CaseID {
			return ierr.NewError("cannot transfer to the same account").
				WithHint("Transfer destination must be a different trust account").
				Mark(ierr.ErrValidation)
		}
	} else if r.TransferTo != nil {
		return ierr.NewError("transfer destination only applies to transfers").
			WithHint("Remove transfer_to or use the transfer type").
			Mark(ierr.ErrValidation)
	}
	return nil
}

type CloseTrustAccountRequest struct {
	ApprovedBy string `json:"approved_by" validate:"required,max=255"`
}

func (r *CloseTrustAccountRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type TrustAccountResponse struct {
	*trustaccount.TrustAccount
}

func NewTrustAccountResponse(a *trustaccount.TrustAccount) *TrustAccountResponse {
	return &TrustAccountResponse{TrustAccount: a}
}

type ListTrustAccountsResponse = types.ListResponse[*TrustAccountResponse]

// TrustTransactionResponse is the outcome of a posted trust transaction.
// Transfers fill in both accounts and both legs.
type TrustTransactionResponse struct {
	Account             *trustaccount.TrustAccount `json:"account"`
	Transaction         *trustaccount.Transaction  `json:"transaction"`
	CounterpartyAccount *trustaccount.TrustAccount `json:"counterparty_account,omitempty"`
	CounterpartyEntry   *trustaccount.Transaction  `json:"counterparty_transaction,omitempty"`
}

type ListTrustTransactionsResponse = types.ListResponse[*trustaccount.Transaction]

// TrustVerificationResponse reports a ledger replay
type TrustVerificationResponse struct {
	TrustAccountID   string          `json:"trust_account_id"`
	Consistent       bool            `json:"consistent"`
	Transactions     int             `json:"transactions"`
	ReplayedBalance  decimal.Decimal `json:"replayed_balance"`
	ReplayedHeld     decimal.Decimal `json:"replayed_held"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	HeldAmount       decimal.Decimal `json:"held_amount"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	Error            string          `json:"error,omitempty"`
}

// TrustVerificationSweepResponse lists the accounts whose ledger replay failed
type TrustVerificationSweepResponse struct {
	Checked      int                          `json:"checked"`
	Inconsistent []*TrustVerificationResponse `json:"inconsistent"`
}
