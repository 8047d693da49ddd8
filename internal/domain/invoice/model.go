package invoice

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Invoice represents the invoice domain model
type Invoice struct {
	ID                     string              `db:"id" json:"id"`
	CaseID                 string              `db:"case_id" json:"case_id"`
	ClientID               string              `db:"client_id" json:"client_id"`
	InvoiceNumber          string              `db:"invoice_number" json:"invoice_number"`
	InvoiceStatus          types.InvoiceStatus `db:"invoice_status" json:"invoice_status"`
	Currency               string              `db:"currency" json:"currency"`
	LineItems              LineItems           `db:"line_items" json:"line_items"`
	Subtotal               decimal.Decimal     `db:"subtotal" json:"subtotal"`
	TaxRate                decimal.Decimal     `db:"tax_rate" json:"tax_rate"`
	TaxAmount              decimal.Decimal     `db:"tax_amount" json:"tax_amount"`
	DiscountAmount         decimal.Decimal     `db:"discount_amount" json:"discount_amount"`
	TotalAmount            decimal.Decimal     `db:"total_amount" json:"total_amount"`
	PaidAmount             decimal.Decimal     `db:"paid_amount" json:"paid_amount"`
	BalanceDue             decimal.Decimal     `db:"balance_due" json:"balance_due"`
	PaymentTerms           string              `db:"payment_terms" json:"payment_terms"`
	LateFeePercentage      decimal.Decimal     `db:"late_fee_percentage" json:"late_fee_percentage"`
	AcceptedPaymentMethods types.StringArray   `db:"accepted_payment_methods" json:"accepted_payment_methods"`
	BillingPeriodStart     time.Time           `db:"billing_period_start" json:"billing_period_start"`
	BillingPeriodEnd       time.Time           `db:"billing_period_end" json:"billing_period_end"`
	IssuedDate             time.Time           `db:"issued_date" json:"issued_date"`
	DueDate                time.Time           `db:"due_date" json:"due_date"`
	SentDate               *time.Time          `db:"sent_date" json:"sent_date,omitempty"`
	ViewedDate             *time.Time          `db:"viewed_date" json:"viewed_date,omitempty"`
	PaidDate               *time.Time          `db:"paid_date" json:"paid_date,omitempty"`
	CancelledDate          *time.Time          `db:"cancelled_date" json:"cancelled_date,omitempty"`
	Notes                  string              `db:"notes" json:"notes,omitempty"`
	DocumentURL            string              `db:"document_url" json:"document_url,omitempty"`
	AppliedPaymentIDs      types.StringArray   `db:"applied_payment_ids" json:"applied_payment_ids"`
	Metadata               types.Metadata      `db:"metadata" json:"metadata,omitempty"`
	Version                int                 `db:"version" json:"version"`
	types.BaseModel
}

// LineItem is one billable charge, expense or discount on an invoice
type LineItem struct {
	ID          string                 `json:"id"`
	Description string                 `json:"description"`
	Category    types.LineItemCategory `json:"category"`
	Quantity    decimal.Decimal        `json:"quantity"`
	Rate        decimal.Decimal        `json:"rate"`
	Amount      decimal.Decimal        `json:"amount"`
	Date        time.Time              `json:"date"`
	Billable    bool                   `json:"billable"`
}

// LineItems is stored as a single JSONB column and re-validated on every read
type LineItems []LineItem

func (l *LineItems) Scan(value interface{}) error {
	if value == nil {
		*l = LineItems{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal line items: %v", value)
	}
	var items LineItems
	if err := json.Unmarshal(bytes, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]LineItem{})
	}
	return json.Marshal([]LineItem(l))
}

// Validate checks a single line item
func (li LineItem) Validate() error {
	if li.Description == "" {
		return ierr.NewError("line item description is required").
			WithHint("Every line item needs a description").
			Mark(ierr.ErrValidation)
	}
	if err := li.Category.Validate(); err != nil {
		return err
	}
	if li.Quantity.IsNegative() {
		return ierr.NewError("line item quantity cannot be negative").
			WithHint("Line item quantity must be zero or more").
			WithReportableDetails(map[string]any{
				"description": li.Description,
				"quantity":    li.Quantity.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	if li.Category == types.LineItemCategoryDiscount {
		if li.Amount.IsPositive() {
			return ierr.NewError("discount line item must not be positive").
				WithHint("Discount line items reduce the invoice total").
				WithReportableDetails(map[string]any{
					"description": li.Description,
					"amount":      li.Amount.String(),
				}).
				Mark(ierr.ErrValidation)
		}
		return nil
	}
	if li.Amount.IsNegative() {
		return ierr.NewError("line item amount cannot be negative").
			WithHint("Use the discount category for negative amounts").
			WithReportableDetails(map[string]any{
				"description": li.Description,
				"category":    li.Category,
				"amount":      li.Amount.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Totals are the derived money fields of an invoice
type Totals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
}

// CalculateTotals derives subtotal, tax, discount and total from line items.
// Discount items are excluded from the subtotal and added to the discount,
// tax is charged on the subtotal and rounded to cents.
func CalculateTotals(items LineItems, taxRate, extraDiscount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	discount := extraDiscount
	for _, item := range items {
		if item.Category == types.LineItemCategoryDiscount {
			discount = discount.Add(item.Amount.Abs())
			continue
		}
		subtotal = subtotal.Add(item.Amount)
	}
	tax := subtotal.Mul(taxRate).Round(2)
	return Totals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DiscountAmount: discount,
		TotalAmount:    subtotal.Add(tax).Sub(discount),
	}
}

// ExpenseTotal sums the expense and filing fee items, used by financial reports
func (i *Invoice) ExpenseTotal() decimal.Decimal {
	return lo.Reduce(i.LineItems, func(sum decimal.Decimal, item LineItem, _ int) decimal.Decimal {
		if item.Category.IsExpense() {
			return sum.Add(item.Amount)
		}
		return sum
	}, decimal.Zero)
}

// HasPayment reports whether paymentID was already applied to the invoice
func (i *Invoice) HasPayment(paymentID string) bool {
	return lo.Contains(i.AppliedPaymentIDs, paymentID)
}

// ApplyPayment adds amount to the paid total. Applying the same payment twice
// returns false and leaves the invoice untouched.
func (i *Invoice) ApplyPayment(paymentID string, amount decimal.Decimal, at time.Time) (bool, error) {
	if i.HasPayment(paymentID) {
		return false, nil
	}
	if i.InvoiceStatus == types.InvoiceStatusCancelled {
		return false, ierr.NewError("cannot apply payment to a cancelled invoice").
			WithHint("The invoice has been cancelled").
			WithReportableDetails(map[string]any{
				"invoice_id": i.ID,
				"payment_id": paymentID,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	if !amount.IsPositive() {
		return false, ierr.NewError("payment amount must be positive").
			WithHint("Only positive payments can be applied").
			Mark(ierr.ErrValidation)
	}
	if amount.GreaterThan(i.BalanceDue) {
		return false, ierr.NewError("payment exceeds invoice balance").
			WithHint("The payment amount is larger than the invoice balance due").
			WithReportableDetails(map[string]any{
				"invoice_id":  i.ID,
				"payment_id":  paymentID,
				"amount":      amount.String(),
				"balance_due": i.BalanceDue.String(),
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	i.PaidAmount = i.PaidAmount.Add(amount)
	i.BalanceDue = i.TotalAmount.Sub(i.PaidAmount)
	i.AppliedPaymentIDs = append(i.AppliedPaymentIDs, paymentID)

	if !i.BalanceDue.IsPositive() {
		i.InvoiceStatus = types.InvoiceStatusPaid
		paidAt := at
		i.PaidDate = &paidAt
	} else {
		i.InvoiceStatus = types.InvoiceStatusPartiallyPaid
	}
	return true, nil
}

// ReversePayment takes a refunded amount back off the paid total and
// recomputes the status as of now.
func (i *Invoice) ReversePayment(amount decimal.Decimal, now time.Time) error {
	if amount.GreaterThan(i.PaidAmount) {
		return ierr.NewError("refund exceeds invoice paid amount").
			WithHint("Cannot reverse more than was paid on the invoice").
			WithReportableDetails(map[string]any{
				"invoice_id":  i.ID,
				"amount":      amount.String(),
				"paid_amount": i.PaidAmount.String(),
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	i.PaidAmount = i.PaidAmount.Sub(amount)
	i.BalanceDue = i.TotalAmount.Sub(i.PaidAmount)
	if i.BalanceDue.IsPositive() {
		i.PaidDate = nil
		switch {
		case now.After(i.DueDate):
			i.InvoiceStatus = types.InvoiceStatusOverdue
		case i.PaidAmount.IsPositive():
			i.InvoiceStatus = types.InvoiceStatusPartiallyPaid
		case i.ViewedDate != nil:
			i.InvoiceStatus = types.InvoiceStatusViewed
		default:
			i.InvoiceStatus = types.InvoiceStatusSent
		}
	}
	return nil
}

// IsOverdue reports whether an open invoice has passed its due date with a balance left
func (i *Invoice) IsOverdue(asOf time.Time) bool {
	return i.InvoiceStatus.IsOpen() &&
		i.InvoiceStatus != types.InvoiceStatusOverdue &&
		i.BalanceDue.IsPositive() &&
		asOf.After(i.DueDate)
}

// Validate checks the stored invoice against its money invariants.
// It runs on create and on every read from storage.
func (i *Invoice) Validate() error {
	if err := i.InvoiceStatus.Validate(); err != nil {
		return err
	}
	if len(i.LineItems) == 0 {
		return ierr.NewError("invoice has no line items").
			WithHint("An invoice needs at least one line item").
			Mark(ierr.ErrValidation)
	}
	for _, item := range i.LineItems {
		if err := item.Validate(); err != nil {
			return err
		}
	}

	totals := CalculateTotals(i.LineItems, i.TaxRate, decimal.Zero)
	details := map[string]any{
		"invoice_id":   i.ID,
		"subtotal":     i.Subtotal.String(),
		"total_amount": i.TotalAmount.String(),
		"paid_amount":  i.PaidAmount.String(),
		"balance_due":  i.BalanceDue.String(),
	}
	if !totals.Subtotal.Equal(i.Subtotal) {
		return ierr.NewError("invoice subtotal does not match its line items").
			WithHint("Invoice subtotal is inconsistent").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	if !i.Subtotal.Add(i.TaxAmount).Sub(i.DiscountAmount).Equal(i.TotalAmount) {
		return ierr.NewError("invoice total does not match subtotal, tax and discount").
			WithHint("Invoice total is inconsistent").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	if i.TotalAmount.IsNegative() {
		return ierr.NewError("invoice total cannot be negative").
			WithHint("Discounts cannot exceed the invoice amount").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	if !i.TotalAmount.Sub(i.PaidAmount).Equal(i.BalanceDue) {
		return ierr.NewError("invoice balance does not equal total minus paid").
			WithHint("Invoice balance is inconsistent").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	if i.PaidAmount.IsNegative() || i.PaidAmount.GreaterThan(i.TotalAmount) {
		return ierr.NewError("invoice paid amount out of range").
			WithHint("Invoice paid amount is inconsistent").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// FormatInvoiceNumber renders the human readable number, e.g. INV-2025-00042
func FormatInvoiceNumber(year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%05d", types.InvoiceNumberPrefix, year, seq)
}
