package dto

import (
	"context"
	"time"

	"github.com/casebill/casebill/internal/domain/invoice"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/types"
	"github.com/casebill/casebill/internal/validator"
	"github.com/shopspring/decimal"
)

// LineItemRequest is one line of a new invoice. When amount is omitted it is
// quantity times rate.
type LineItemRequest struct {
	Description string                 `json:"description" validate:"required,max=1000"`
	Category    types.LineItemCategory `json:"category" validate:"required"`
	Quantity    decimal.Decimal        `json:"quantity"`
	Rate        decimal.Decimal        `json:"rate"`
	Amount      *decimal.Decimal       `json:"amount,omitempty"`
	Date        *time.Time             `json:"date,omitempty"`
	Billable    *bool                  `json:"billable,omitempty"`
}

func (r LineItemRequest) ToLineItem(now time.Time) invoice.LineItem {
	amount := r.Quantity.Mul(r.Rate).Round(2)
	if r.Amount != nil {
		amount = *r.Amount
	}
	date := now
	if r.Date != nil {
		date = r.Date.UTC()
	}
	billable := true
	if r.Billable != nil {
		billable = *r.Billable
	}
	return invoice.LineItem{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_LINE_ITEM),
		Description: r.Description,
		Category:    r.Category,
		Quantity:    r.Quantity,
		Rate:        r.Rate,
		Amount:      amount,
		Date:        date,
		Billable:    billable,
	}
}

type CreateInvoiceRequest struct {
	CaseID             string            `json:"case_id" validate:"required"`
	ClientID           string            `json:"client_id" validate:"required"`
	LineItems          []LineItemRequest `json:"line_items" validate:"required,min=1,dive"`
	DueDate            *time.Time        `json:"due_date,omitempty"`
	BillingPeriodStart *time.Time        `json:"billing_period_start,omitempty"`
	BillingPeriodEnd   *time.Time        `json:"billing_period_end,omitempty"`
	DiscountAmount     decimal.Decimal   `json:"discount_amount"`
	PaymentTerms       string            `json:"payment_terms,omitempty"`
	Currency           string            `json:"currency,omitempty" validate:"omitempty,len=3"`
	Notes              string            `json:"notes,omitempty" validate:"omitempty,max=5000"`
	SendImmediately    bool              `json:"send_immediately"`
	Metadata           types.Metadata    `json:"metadata,omitempty"`
}

func (r *CreateInvoiceRequest) Validate() error {
	if len(r.LineItems) == 0 {
		return ierr.NewError("line items are required").
			WithHint("An invoice needs at least one line item").
			Mark(ierr.ErrValidation)
	}
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.DiscountAmount.IsNegative() {
		return ierr.NewError("discount amount cannot be negative").
			WithHint("Discount amount must be zero or more").
			Mark(ierr.ErrValidation)
	}
	if r.BillingPeriodStart != nil && r.BillingPeriodEnd != nil && r.BillingPeriodEnd.Before(*r.BillingPeriodStart) {
		return ierr.NewError("billing period end before start").
			WithHint("Billing period end must be after its start").
			Mark(ierr.ErrValidation)
	}
	now := time.Now().UTC()
	for _, item := range r.LineItems {
		if err := item.ToLineItem(now).Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ToInvoice builds a draft invoice without money totals or number. Those
// need the tax rate and the invoice sequence.
func (r *CreateInvoiceRequest) ToInvoice(ctx context.Context, dueDays int) *invoice.Invoice {
	base := types.GetDefaultBaseModel(ctx)
	now := base.CreatedAt

	items := make(invoice.LineItems, 0, len(r.LineItems))
	for _, item := range r.LineItems {
		items = append(items, item.ToLineItem(now))
	}

	dueDate := now.AddDate(0, 0, dueDays)
	if r.DueDate != nil {
		dueDate = r.DueDate.UTC()
	}
	periodEnd := now
	if r.BillingPeriodEnd != nil {
		periodEnd = r.BillingPeriodEnd.UTC()
	}
	periodStart := periodEnd.AddDate(0, 0, -types.DefaultInvoiceBillingPeriodDay)
	if r.BillingPeriodStart != nil {
		periodStart = r.BillingPeriodStart.UTC()
	}
	terms := r.PaymentTerms
	if terms == "" {
		terms = types.DefaultInvoicePaymentTerms
	}
	currency := r.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}

	methods := make(types.StringArray, 0, len(types.DefaultAcceptedPaymentMethods))
	for _, m := range types.DefaultAcceptedPaymentMethods {
		methods = append(methods, string(m))
	}

	return &invoice.Invoice{
		ID:                     types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		CaseID:                 r.CaseID,
		ClientID:               r.ClientID,
		InvoiceStatus:          types.InvoiceStatusDraft,
		Currency:               currency,
		LineItems:              items,
		PaidAmount:             decimal.Zero,
		PaymentTerms:           terms,
		AcceptedPaymentMethods: methods,
		BillingPeriodStart:     periodStart,
		BillingPeriodEnd:       periodEnd,
		IssuedDate:             now,
		DueDate:                dueDate,
		Notes:                  r.Notes,
		AppliedPaymentIDs:      types.StringArray{},
		Metadata:               r.Metadata,
		Version:                1,
		BaseModel:              base,
	}
}

type ApplyPaymentRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
}

func (r *ApplyPaymentRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type CancelInvoiceRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=1000"`
}

type InvoiceResponse struct {
	*invoice.Invoice
}

func NewInvoiceResponse(inv *invoice.Invoice) *InvoiceResponse {
	return &InvoiceResponse{Invoice: inv}
}

type ListInvoicesResponse = types.ListResponse[*InvoiceResponse]
