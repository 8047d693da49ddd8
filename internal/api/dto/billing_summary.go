package dto

import (
	"time"

	"github.com/casebill/casebill/internal/domain/invoice"
	"github.com/casebill/casebill/internal/domain/payment"
	"github.com/casebill/casebill/internal/domain/paymentplan"
	"github.com/casebill/casebill/internal/domain/trustaccount"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/shopspring/decimal"
)

// UpcomingInstallment is a payable installment of an active plan
type UpcomingInstallment struct {
	PaymentPlanID     string          `json:"payment_plan_id"`
	CaseID            string          `json:"case_id"`
	InstallmentNumber int             `json:"installment_number"`
	DueDate           time.Time       `json:"due_date"`
	Amount            decimal.Decimal `json:"amount"`
	Status            string          `json:"status"`
}

type ClientBillingSummaryResponse struct {
	ClientID             string                       `json:"client_id"`
	TotalBilled          decimal.Decimal              `json:"total_billed"`
	TotalPaid            decimal.Decimal              `json:"total_paid"`
	Outstanding          decimal.Decimal              `json:"outstanding"`
	Overdue              decimal.Decimal              `json:"overdue"`
	OpenInvoices         int                          `json:"open_invoices"`
	RecentPayments       []*payment.Payment           `json:"recent_payments"`
	ActivePaymentPlans   []*paymentplan.PaymentPlan   `json:"active_payment_plans"`
	UpcomingInstallments []UpcomingInstallment        `json:"upcoming_installments"`
	TrustAccounts        []*trustaccount.TrustAccount `json:"trust_accounts"`
	TrustBalance         decimal.Decimal              `json:"trust_balance"`
	TrustAvailable       decimal.Decimal              `json:"trust_available"`
	GeneratedAt          time.Time                    `json:"generated_at"`
}

type FinancialReportRequest struct {
	ClientID       string    `form:"client_id" json:"client_id" validate:"required"`
	CaseID         string    `form:"case_id" json:"case_id,omitempty"`
	StartDate      time.Time `form:"start_date" json:"start_date" time_format:"2006-01-02T15:04:05Z07:00" validate:"required"`
	EndDate        time.Time `form:"end_date" json:"end_date" time_format:"2006-01-02T15:04:05Z07:00" validate:"required"`
	IncludeDetails bool      `form:"include_details" json:"include_details"`
}

func (r *FinancialReportRequest) Validate() error {
	if r.ClientID == "" {
		return ierr.NewError("client id is required").
			WithHint("Client id is required").
			Mark(ierr.ErrValidation)
	}
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return ierr.NewError("report period is required").
			WithHint("Start and end dates are required").
			Mark(ierr.ErrValidation)
	}
	if r.EndDate.Before(r.StartDate) {
		return ierr.NewError("end date before start date").
			WithHint("End date must be after start date").
			Mark(ierr.ErrValidation)
	}
	return nil
}

type FinancialReportResponse struct {
	ClientID      string                      `json:"client_id"`
	CaseID        string                      `json:"case_id,omitempty"`
	StartDate     time.Time                   `json:"start_date"`
	EndDate       time.Time                   `json:"end_date"`
	TotalBilled   decimal.Decimal             `json:"total_billed"`
	TotalPaid     decimal.Decimal             `json:"total_paid"`
	TotalExpenses decimal.Decimal             `json:"total_expenses"`
	NetIncome     decimal.Decimal             `json:"net_income"`
	InvoiceCount  int                         `json:"invoice_count"`
	PaymentCount  int                         `json:"payment_count"`
	Invoices      []*invoice.Invoice          `json:"invoices,omitempty"`
	Payments      []*payment.Payment          `json:"payments,omitempty"`
	TrustActivity []*trustaccount.Transaction `json:"trust_activity,omitempty"`
	GeneratedAt   time.Time                   `json:"generated_at"`
}
