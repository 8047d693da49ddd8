package dto

import (
	"context"
	"strings"

	"github.com/casebill/casebill/internal/domain/payment"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/types"
	"github.com/casebill/casebill/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ProcessPaymentRequest records and settles one payment from a client
type ProcessPaymentRequest struct {
	ClientID           string               `json:"client_id" validate:"required"`
	Amount             decimal.Decimal      `json:"amount" validate:"required"`
	Currency           string               `json:"currency,omitempty" validate:"omitempty,len=3"`
	PaymentMethod      types.PaymentMethod  `json:"payment_method" validate:"required"`
	InvoiceID          *string              `json:"invoice_id,omitempty"`
	CaseID             *string              `json:"case_id,omitempty"`
	Purpose            types.PaymentPurpose `json:"purpose,omitempty"`
	PaymentMethodToken string               `json:"payment_method_token,omitempty"`
	CheckNumber        string               `json:"check_number,omitempty" validate:"omitempty,max=50"`
	// ApprovedBy names the staff member authorising a trust account payment
	ApprovedBy     string         `json:"approved_by,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty" validate:"omitempty,max=255"`
	Metadata       types.Metadata `json:"metadata,omitempty"`

	// PaymentPlanID is set internally when a plan charges its down payment
	PaymentPlanID *string `json:"-"`
}

func (r *ProcessPaymentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if !r.Amount.IsPositive() {
		return ierr.NewError("invalid amount").
			WithHint("Amount must be greater than 0").
			WithReportableDetails(map[string]any{
				"amount": r.Amount.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	if r.Amount.Exponent() < -2 && !r.Amount.Equal(r.Amount.Round(2)) {
		return ierr.NewError("invalid amount precision").
			WithHint("Amount cannot have more than two decimal places").
			Mark(ierr.ErrValidation)
	}
	if err := r.PaymentMethod.Validate(); err != nil {
		return err
	}
	if r.Purpose != "" {
		if err := r.Purpose.Validate(); err != nil {
			return err
		}
	}

	switch r.PaymentMethod {
	case types.PaymentMethodCreditCard:
		if strings.TrimSpace(r.PaymentMethodToken) == "" {
			return ierr.NewError("payment method token is required").
				WithHint("Card payments need a payment method token").
				Mark(ierr.ErrValidation)
		}
	case types.PaymentMethodCheck:
		if strings.TrimSpace(r.CheckNumber) == "" {
			return ierr.NewError("check number is required").
				WithHint("Check payments need a check number").
				Mark(ierr.ErrValidation)
		}
	case types.PaymentMethodTrustAccount:
		if lo.FromPtr(r.CaseID) == "" || strings.TrimSpace(r.ApprovedBy) == "" {
			return ierr.NewError("trust account payment needs a case and an approver").
				WithHint("Trust account payments need a case id and the approving staff member").
				Mark(ierr.ErrValidation)
		}
	}

	if r.Purpose == types.PaymentPurposeInvoice && lo.FromPtr(r.InvoiceID) == "" {
		return ierr.NewError("invoice id is required").
			WithHint("Invoice payments need an invoice id").
			Mark(ierr.ErrValidation)
	}
	if r.Purpose == types.PaymentPurposeInstallment && lo.FromPtr(r.CaseID) == "" {
		return ierr.NewError("case id is required").
			WithHint("Installment payments need a case id").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ResolvePurpose fills in the purpose from the targets when the caller left it out
func (r *ProcessPaymentRequest) ResolvePurpose() types.PaymentPurpose {
	if r.Purpose != "" {
		return r.Purpose
	}
	if lo.FromPtr(r.InvoiceID) != "" {
		return types.PaymentPurposeInvoice
	}
	if lo.FromPtr(r.CaseID) != "" {
		return types.PaymentPurposeInstallment
	}
	return types.PaymentPurposeGeneral
}

// ToPayment builds the payment record in its initial pending state
func (r *ProcessPaymentRequest) ToPayment(ctx context.Context) *payment.Payment {
	currency := r.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}
	p := &payment.Payment{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		ClientID:       r.ClientID,
		InvoiceID:      emptyToNil(r.InvoiceID),
		CaseID:         emptyToNil(r.CaseID),
		PaymentPlanID:  emptyToNil(r.PaymentPlanID),
		Purpose:        r.ResolvePurpose(),
		Amount:         r.Amount,
		Currency:       strings.ToLower(currency),
		PaymentMethod:  r.PaymentMethod,
		PaymentStatus:  types.PaymentStatusPending,
		ProcessingFee:  decimal.Zero,
		NetAmount:      r.Amount,
		RefundedAmount: decimal.Zero,
		Metadata:       r.Metadata,
		Version:        1,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	if p.Metadata == nil {
		p.Metadata = types.Metadata{}
	}
	if r.CheckNumber != "" {
		p.CheckNumber = lo.ToPtr(r.CheckNumber)
	}
	if r.IdempotencyKey != "" {
		p.IdempotencyKey = lo.ToPtr(r.IdempotencyKey)
	}
	return p
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// ConfirmPaymentRequest settles an ACH, wire or check payment after reconciliation
type ConfirmPaymentRequest struct {
	Succeeded bool   `json:"succeeded"`
	Reason    string `json:"reason,omitempty" validate:"omitempty,max=1000"`
	// ExternalTransactionID records the bank reference when known
	ExternalTransactionID string `json:"external_transaction_id,omitempty" validate:"omitempty,max=255"`
}

func (r *ConfirmPaymentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if !r.Succeeded && strings.TrimSpace(r.Reason) == "" {
		return ierr.NewError("reason is required").
			WithHint("A failure reason is required when rejecting a payment").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// RefundPaymentRequest refunds all or part of a succeeded payment.
// A nil amount refunds what is left.
type RefundPaymentRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason" validate:"required,max=1000"`
}

func (r *RefundPaymentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Amount != nil && !r.Amount.IsPositive() {
		return ierr.NewError("invalid refund amount").
			WithHint("Refund amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	return nil
}

type PaymentResponse struct {
	*payment.Payment
}

func NewPaymentResponse(p *payment.Payment) *PaymentResponse {
	return &PaymentResponse{Payment: p}
}

type ListPaymentsResponse = types.ListResponse[*PaymentResponse]
