package types

import (
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/samber/lo"
)

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

func (s PaymentStatus) String() string {
	return string(s)
}

func (s PaymentStatus) Validate() error {
	allowed := []PaymentStatus{
		PaymentStatusPending,
		PaymentStatusProcessing,
		PaymentStatusSucceeded,
		PaymentStatusFailed,
		PaymentStatusCancelled,
		PaymentStatusRefunded,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid payment status").
			WithHint("Please provide a valid payment status").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsSettling reports whether the payment still awaits an outcome
func (s PaymentStatus) IsSettling() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

// PaymentMethod is how the client pays
type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodACH          PaymentMethod = "ach"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodWire         PaymentMethod = "wire"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodTrustAccount PaymentMethod = "trust_account"
)

func (m PaymentMethod) String() string {
	return string(m)
}

func (m PaymentMethod) Validate() error {
	allowed := []PaymentMethod{
		PaymentMethodCreditCard,
		PaymentMethodACH,
		PaymentMethodCheck,
		PaymentMethodWire,
		PaymentMethodCash,
		PaymentMethodTrustAccount,
	}
	if !lo.Contains(allowed, m) {
		return ierr.NewError("invalid payment method").
			WithHint("Please provide a valid payment method").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// DefaultAcceptedPaymentMethods are printed on new invoices
var DefaultAcceptedPaymentMethods = []PaymentMethod{
	PaymentMethodCreditCard,
	PaymentMethodACH,
	PaymentMethodCheck,
}

// PaymentPurpose tells the processor which downstream records a payment settles
type PaymentPurpose string

const (
	PaymentPurposeGeneral     PaymentPurpose = "general"
	PaymentPurposeInvoice     PaymentPurpose = "invoice"
	PaymentPurposeInstallment PaymentPurpose = "installment"
	PaymentPurposeDownPayment PaymentPurpose = "down_payment"
	PaymentPurposeRetainer    PaymentPurpose = "retainer"
)

func (p PaymentPurpose) Validate() error {
	allowed := []PaymentPurpose{
		PaymentPurposeGeneral,
		PaymentPurposeInvoice,
		PaymentPurposeInstallment,
		PaymentPurposeDownPayment,
		PaymentPurposeRetainer,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid payment purpose").
			WithHint("Please provide a valid payment purpose").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

const (
	DefaultCurrency = "usd"

	// Metadata keys written on payments
	PaymentMetadataUnapplied = "unapplied_reason"
	PaymentMetadataDisputeID = "dispute_id"
)

// PaymentFilter represents the filter for listing payments
type PaymentFilter struct {
	*QueryFilter
	*TimeRangeFilter

	PaymentIDs            []string        `json:"payment_ids,omitempty" form:"payment_ids"`
	ClientID              string          `json:"client_id,omitempty" form:"client_id"`
	CaseID                string          `json:"case_id,omitempty" form:"case_id"`
	InvoiceID             string          `json:"invoice_id,omitempty" form:"invoice_id"`
	PaymentStatus         []PaymentStatus `json:"payment_status,omitempty" form:"payment_status"`
	PaymentMethod         []PaymentMethod `json:"payment_method,omitempty" form:"payment_method"`
	ExternalTransactionID string          `json:"external_transaction_id,omitempty" form:"external_transaction_id"`
	IdempotencyKey        string          `json:"-" form:"-"`
}

// NewPaymentFilter creates a new payment filter with default options
func NewPaymentFilter() *PaymentFilter {
	return &PaymentFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

// NewNoLimitPaymentFilter creates a new payment filter without pagination
func NewNoLimitPaymentFilter() *PaymentFilter {
	return &PaymentFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

func (f *PaymentFilter) Validate() error {
	if f == nil {
		return nil
	}
	if err := f.QueryFilter.Validate(); err != nil {
		return err
	}
	if err := f.TimeRangeFilter.Validate(); err != nil {
		return err
	}
	for _, s := range f.PaymentStatus {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	for _, m := range f.PaymentMethod {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}
