package payment

import (
	"time"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/types"
	"github.com/shopspring/decimal"
)

// Payment is one attempted or completed transfer of funds from a client to the firm
type Payment struct {
	ID                    string               `db:"id" json:"id"`
	ClientID              string               `db:"client_id" json:"client_id"`
	InvoiceID             *string              `db:"invoice_id" json:"invoice_id,omitempty"`
	CaseID                *string              `db:"case_id" json:"case_id,omitempty"`
	PaymentPlanID         *string              `db:"payment_plan_id" json:"payment_plan_id,omitempty"`
	Purpose               types.PaymentPurpose `db:"purpose" json:"purpose"`
	Amount                decimal.Decimal      `db:"amount" json:"amount"`
	Currency              string               `db:"currency" json:"currency"`
	PaymentMethod         types.PaymentMethod  `db:"payment_method" json:"payment_method"`
	PaymentStatus         types.PaymentStatus  `db:"payment_status" json:"payment_status"`
	ExternalTransactionID *string              `db:"external_transaction_id" json:"external_transaction_id,omitempty"`
	CheckNumber           *string              `db:"check_number" json:"check_number,omitempty"`
	ReceiptNumber         *string              `db:"receipt_number" json:"receipt_number,omitempty"`
	ProcessingFee         decimal.Decimal      `db:"processing_fee" json:"processing_fee"`
	NetAmount             decimal.Decimal      `db:"net_amount" json:"net_amount"`
	IsRefunded            bool                 `db:"is_refunded" json:"is_refunded"`
	RefundedAmount        decimal.Decimal      `db:"refunded_amount" json:"refunded_amount"`
	RefundReason          *string              `db:"refund_reason" json:"refund_reason,omitempty"`
	FailureReason         *string              `db:"failure_reason" json:"failure_reason,omitempty"`
	IdempotencyKey        *string              `db:"idempotency_key" json:"idempotency_key,omitempty"`
	ProcessedDate         *time.Time           `db:"processed_date" json:"processed_date,omitempty"`
	SucceededAt           *time.Time           `db:"succeeded_at" json:"succeeded_at,omitempty"`
	FailedAt              *time.Time           `db:"failed_at" json:"failed_at,omitempty"`
	RefundedAt            *time.Time           `db:"refunded_at" json:"refunded_at,omitempty"`
	Metadata              types.Metadata       `db:"metadata" json:"metadata,omitempty"`
	Version               int                  `db:"version" json:"version"`
	types.BaseModel
}

func (p *Payment) Validate() error {
	if !p.Amount.IsPositive() {
		return ierr.NewError("invalid amount").
			WithHint("Amount must be greater than 0").
			WithReportableDetails(map[string]any{
				"amount": p.Amount.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	if p.ClientID == "" {
		return ierr.NewError("client id is required").
			WithHint("Client id is required").
			Mark(ierr.ErrValidation)
	}
	if p.Currency == "" {
		return ierr.NewError("invalid currency").
			WithHint("Currency is invalid").
			Mark(ierr.ErrValidation)
	}
	if err := p.PaymentMethod.Validate(); err != nil {
		return err
	}
	if err := p.PaymentStatus.Validate(); err != nil {
		return err
	}
	if err := p.Purpose.Validate(); err != nil {
		return err
	}
	if p.PaymentMethod == types.PaymentMethodCheck && (p.CheckNumber == nil || *p.CheckNumber == "") {
		return ierr.NewError("check number is required").
			WithHint("Check payments need a check number").
			Mark(ierr.ErrValidation)
	}
	if !p.NetAmount.Equal(p.Amount.Sub(p.ProcessingFee)) {
		return ierr.NewError("net amount must equal amount minus fee").
			WithHint("Payment amounts are inconsistent").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// RefundableAmount is what is left to refund on a succeeded payment
func (p *Payment) RefundableAmount() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}

// MarkSucceeded moves a settling payment to succeeded
func (p *Payment) MarkSucceeded(at time.Time) error {
	if !p.PaymentStatus.IsSettling() {
		return p.transitionError(types.PaymentStatusSucceeded)
	}
	p.PaymentStatus = types.PaymentStatusSucceeded
	p.SucceededAt = &at
	p.ProcessedDate = &at
	p.FailureReason = nil
	return nil
}

// MarkFailed moves a settling payment to failed
func (p *Payment) MarkFailed(reason string, at time.Time) error {
	if !p.PaymentStatus.IsSettling() {
		return p.transitionError(types.PaymentStatusFailed)
	}
	p.PaymentStatus = types.PaymentStatusFailed
	p.FailedAt = &at
	p.ProcessedDate = &at
	p.FailureReason = &reason
	return nil
}

// MarkCancelled moves a settling payment to cancelled
func (p *Payment) MarkCancelled(reason string, at time.Time) error {
	if !p.PaymentStatus.IsSettling() {
		return p.transitionError(types.PaymentStatusCancelled)
	}
	p.PaymentStatus = types.PaymentStatusCancelled
	p.ProcessedDate = &at
	p.FailureReason = &reason
	return nil
}

// RecordRefund adds amount to the refunded total. A full refund moves the
// payment to refunded, a partial refund keeps it succeeded.
func (p *Payment) RecordRefund(amount decimal.Decimal, reason string, at time.Time) error {
	if p.PaymentStatus != types.PaymentStatusSucceeded {
		return ierr.NewError("only succeeded payments can be refunded").
			WithHint("This payment cannot be refunded").
			WithReportableDetails(map[string]any{
				"payment_id":     p.ID,
				"payment_status": p.PaymentStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	if !amount.IsPositive() || amount.GreaterThan(p.RefundableAmount()) {
		return ierr.NewError("invalid refund amount").
			WithHint("Refund amount must be positive and no more than the refundable amount").
			WithReportableDetails(map[string]any{
				"payment_id": p.ID,
				"amount":     amount.String(),
				"refundable": p.RefundableAmount().String(),
			}).
			Mark(ierr.ErrValidation)
	}

	p.RefundedAmount = p.RefundedAmount.Add(amount)
	p.IsRefunded = true
	p.RefundReason = &reason
	p.RefundedAt = &at
	if p.RefundedAmount.Equal(p.Amount) {
		p.PaymentStatus = types.PaymentStatusRefunded
	}
	return nil
}

func (p *Payment) transitionError(to types.PaymentStatus) error {
	return ierr.NewError("invalid payment status transition").
		WithHintf("Payment is already %s", p.PaymentStatus).
		WithReportableDetails(map[string]any{
			"payment_id": p.ID,
			"from":       p.PaymentStatus,
			"to":         to,
		}).
		Mark(ierr.ErrInvalidOperation)
}
