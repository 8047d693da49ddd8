package types

import (
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/samber/lo"
)

// InvoiceStatus is the billing state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusSent          InvoiceStatus = "sent"
	InvoiceStatusViewed        InvoiceStatus = "viewed"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
	InvoiceStatusCancelled     InvoiceStatus = "cancelled"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

func (s InvoiceStatus) Validate() error {
	allowed := []InvoiceStatus{
		InvoiceStatusDraft,
		InvoiceStatusSent,
		InvoiceStatusViewed,
		InvoiceStatusPartiallyPaid,
		InvoiceStatusPaid,
		InvoiceStatusOverdue,
		InvoiceStatusCancelled,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid invoice status").
			WithHint("Please provide a valid invoice status").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsOpen reports whether the invoice still expects payments
func (s InvoiceStatus) IsOpen() bool {
	return lo.Contains([]InvoiceStatus{
		InvoiceStatusSent,
		InvoiceStatusViewed,
		InvoiceStatusPartiallyPaid,
		InvoiceStatusOverdue,
	}, s)
}

// LineItemCategory classifies a line item for reporting
type LineItemCategory string

const (
	LineItemCategoryLegalServices LineItemCategory = "legal_services"
	LineItemCategoryExpenses      LineItemCategory = "expenses"
	LineItemCategoryFilingFees    LineItemCategory = "filing_fees"
	LineItemCategoryOther         LineItemCategory = "other"
	// LineItemCategoryDiscount is the only category allowed to carry a negative amount
	LineItemCategoryDiscount LineItemCategory = "discount"
)

func (c LineItemCategory) Validate() error {
	allowed := []LineItemCategory{
		LineItemCategoryLegalServices,
		LineItemCategoryExpenses,
		LineItemCategoryFilingFees,
		LineItemCategoryOther,
		LineItemCategoryDiscount,
	}
	if !lo.Contains(allowed, c) {
		return ierr.NewError("invalid line item category").
			WithHint("Please provide a valid line item category").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsExpense reports whether the category counts as a pass-through expense in reports
func (c LineItemCategory) IsExpense() bool {
	return c == LineItemCategoryExpenses || c == LineItemCategoryFilingFees
}

const (
	DefaultInvoicePaymentTerms     = "Net 30"
	DefaultInvoiceDueDays          = 30
	DefaultInvoiceBillingPeriodDay = 30
	InvoiceNumberPrefix            = "INV"
)

// InvoiceFilter represents the filter options for listing invoices
type InvoiceFilter struct {
	*QueryFilter
	*TimeRangeFilter

	InvoiceIDs    []string        `json:"invoice_ids,omitempty" form:"invoice_ids"`
	ClientID      string          `json:"client_id,omitempty" form:"client_id"`
	CaseID        string          `json:"case_id,omitempty" form:"case_id"`
	InvoiceStatus []InvoiceStatus `json:"invoice_status,omitempty" form:"invoice_status"`
}

// NewInvoiceFilter creates a new invoice filter with default options
func NewInvoiceFilter() *InvoiceFilter {
	return &InvoiceFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

// NewNoLimitInvoiceFilter creates a new invoice filter without pagination
func NewNoLimitInvoiceFilter() *InvoiceFilter {
	return &InvoiceFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

func (f *InvoiceFilter) Validate() error {
	if f == nil {
		return nil
	}
	if err := f.QueryFilter.Validate(); err != nil {
		return err
	}
	if err := f.TimeRangeFilter.Validate(); err != nil {
		return err
	}
	for _, s := range f.InvoiceStatus {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
