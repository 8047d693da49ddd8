package dto

import (
	"context"
	"time"

	"github.com/casebill/casebill/internal/domain/paymentplan"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/idempotency"
	"github.com/casebill/casebill/internal/types"
	"github.com/casebill/casebill/internal/validator"
	"github.com/shopspring/decimal"
)

type CreatePaymentPlanRequest struct {
	ClientID         string          `json:"client_id" validate:"required"`
	CaseID           string          `json:"case_id" validate:"required"`
	TotalAmount      decimal.Decimal `json:"total_amount" validate:"required"`
	DownPayment      decimal.Decimal `json:"down_payment"`
	NumberOfPayments int             `json:"number_of_payments"`
	StartDate        *time.Time      `json:"start_date,omitempty"`
	AutoPayEnabled   bool            `json:"auto_pay_enabled"`

	// DownPaymentMethod and DownPaymentToken pay the down payment. Both are
	// needed when the down payment is not zero, the token only for cards.
	DownPaymentMethod      types.PaymentMethod `json:"down_payment_method,omitempty"`
	DownPaymentToken       string              `json:"down_payment_token,omitempty"`
	DownPaymentCheckNumber string              `json:"down_payment_check_number,omitempty"`
	DownPaymentApprovedBy  string              `json:"down_payment_approved_by,omitempty"`
	Metadata               types.Metadata      `json:"metadata,omitempty"`
}

func (r *CreatePaymentPlanRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.NumberOfPayments <= 0 {
		return ierr.NewError("number of payments must be positive").
			WithHint("A payment plan needs at least one installment").
			WithReportableDetails(map[string]any{
				"number_of_payments": r.NumberOfPayments,
			}).
			Mark(ierr.ErrValidation)
	}
	if !r.TotalAmount.IsPositive() {
		return ierr.NewError("total amount must be positive").
			WithHint("Total amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	if r.DownPayment.IsNegative() {
		return ierr.NewError("down payment cannot be negative").
			WithHint("Down payment must be zero or more").
			Mark(ierr.ErrValidation)
	}
	if r.DownPayment.GreaterThan(r.TotalAmount) {
		return ierr.NewError("down payment exceeds total").
			WithHint("Down payment cannot be larger than the total amount").
			WithReportableDetails(map[string]any{
				"total_amount": r.TotalAmount.String(),
				"down_payment": r.DownPayment.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	if r.DownPayment.IsPositive() {
		if r.DownPaymentMethod == "" {
			return ierr.NewError("down payment method is required").
				WithHint("Choose how the down payment is paid").
				Mark(ierr.ErrValidation)
		}
		if err := r.DownPaymentMethod.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DownPaymentRequest is the payment charged for the plan's down payment
func (r *CreatePaymentPlanRequest) DownPaymentRequest(planID string) *ProcessPaymentRequest {
	caseID := r.CaseID
	key := idempotency.NewGenerator().GenerateKey(idempotency.ScopeDownPayment, map[string]interface{}{
		"payment_plan_id": planID,
	})
	return &ProcessPaymentRequest{
		ClientID:           r.ClientID,
		Amount:             r.DownPayment,
		PaymentMethod:      r.DownPaymentMethod,
		CaseID:             &caseID,
		Purpose:            types.PaymentPurposeDownPayment,
		PaymentMethodToken: r.DownPaymentToken,
		CheckNumber:        r.DownPaymentCheckNumber,
		ApprovedBy:         r.DownPaymentApprovedBy,
		PaymentPlanID:      &planID,
		IdempotencyKey:     key,
	}
}

// ToPaymentPlan builds the plan and its schedule
func (r *CreatePaymentPlanRequest) ToPaymentPlan(ctx context.Context, lateFee decimal.Decimal, graceDays int) *paymentplan.PaymentPlan {
	base := types.GetDefaultBaseModel(ctx)
	start := base.CreatedAt
	if r.StartDate != nil {
		start = r.StartDate.UTC()
	}

	remaining := r.TotalAmount.Sub(r.DownPayment)
	schedule, monthly := paymentplan.BuildSchedule(remaining, r.NumberOfPayments, start)

	plan := &paymentplan.PaymentPlan{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_PLAN),
		ClientID:         r.ClientID,
		CaseID:           r.CaseID,
		PlanStatus:       types.PaymentPlanStatusActive,
		TotalAmount:      r.TotalAmount,
		DownPayment:      r.DownPayment,
		RemainingBalance: remaining,
		MonthlyPayment:   monthly,
		NumberOfPayments: r.NumberOfPayments,
		StartDate:        start,
		EndDate:          schedule[len(schedule)-1].DueDate,
		Schedule:         schedule,
		AutoPayEnabled:   r.AutoPayEnabled,
		LateFeeAmount:    lateFee,
		GracePeriodDays:  graceDays,
		Metadata:         r.Metadata,
		Version:          1,
		BaseModel:        base,
	}
	next := schedule[0].DueDate
	plan.NextPaymentDate = &next
	return plan
}

type WaiveInstallmentRequest struct {
	InstallmentNumber int `json:"installment_number" validate:"required,min=1"`
}

func (r *WaiveInstallmentRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type PaymentPlanResponse struct {
	*paymentplan.PaymentPlan
	// DownPaymentReceipt is the receipt of the down payment when one was charged
	DownPaymentReceipt *PaymentResponse `json:"down_payment_receipt,omitempty"`
}

func NewPaymentPlanResponse(plan *paymentplan.PaymentPlan) *PaymentPlanResponse {
	return &PaymentPlanResponse{PaymentPlan: plan}
}

type ListPaymentPlansResponse = types.ListResponse[*PaymentPlanResponse]
