package document

import (
	"strings"
	"time"

	"github.com/casebill/casebill/internal/domain/client"
	"github.com/casebill/casebill/internal/domain/invoice"
	"github.com/samber/lo"
)

const dateLayout = "January 2, 2006"

// InvoiceData is the view model of the invoice document. Money is
// preformatted so templates never do arithmetic.
type InvoiceData struct {
	ID              string
	InvoiceNumber   string
	InvoiceStatus   string
	Currency        string
	IssuedDate      string
	DueDate         string
	BillingPeriod   string
	PaymentTerms    string
	AcceptedMethods string
	Notes           string

	Subtotal       string
	TaxRate        string
	TaxAmount      string
	DiscountAmount string
	TotalAmount    string
	PaidAmount     string
	BalanceDue     string

	Biller    BillerInfo
	Recipient RecipientInfo
	LineItems []LineItemData
}

// BillerInfo identifies the firm issuing the invoice
type BillerInfo struct {
	Name      string
	PortalURL string
}

// RecipientInfo identifies the billed client
type RecipientInfo struct {
	Name  string
	Email string
	Phone string
}

type LineItemData struct {
	Date        string
	Description string
	Category    string
	Quantity    string
	Rate        string
	Amount      string
}

// NewInvoiceData builds the document view of inv addressed to c
func NewInvoiceData(inv *invoice.Invoice, c *client.Client, biller BillerInfo) *InvoiceData {
	data := &InvoiceData{
		ID:              inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		InvoiceStatus:   string(inv.InvoiceStatus),
		Currency:        strings.ToUpper(inv.Currency),
		IssuedDate:      inv.IssuedDate.Format(dateLayout),
		DueDate:         inv.DueDate.Format(dateLayout),
		BillingPeriod:   formatPeriod(inv.BillingPeriodStart, inv.BillingPeriodEnd),
		PaymentTerms:    inv.PaymentTerms,
		AcceptedMethods: strings.Join(lo.Map(inv.AcceptedPaymentMethods, func(m string, _ int) string { return strings.ReplaceAll(m, "_", " ") }), ", "),
		Notes:           inv.Notes,
		Subtotal:        inv.Subtotal.StringFixed(2),
		TaxRate:         inv.TaxRate.Mul(hundred).StringFixed(3) + "%",
		TaxAmount:       inv.TaxAmount.StringFixed(2),
		DiscountAmount:  inv.DiscountAmount.StringFixed(2),
		TotalAmount:     inv.TotalAmount.StringFixed(2),
		PaidAmount:      inv.PaidAmount.StringFixed(2),
		BalanceDue:      inv.BalanceDue.StringFixed(2),
		Biller:          biller,
		LineItems: lo.Map(inv.LineItems, func(item invoice.LineItem, _ int) LineItemData {
			return LineItemData{
				Date:        item.Date.Format("2006-01-02"),
				Description: item.Description,
				Category:    strings.ReplaceAll(string(item.Category), "_", " "),
				Quantity:    item.Quantity.String(),
				Rate:        item.Rate.StringFixed(2),
				Amount:      item.Amount.StringFixed(2),
			}
		}),
	}
	if c != nil {
		data.Recipient = RecipientInfo{Name: c.Name, Email: c.Email, Phone: c.Phone}
	}
	return data
}

func formatPeriod(start, end time.Time) string {
	if start.IsZero() || end.IsZero() {
		return ""
	}
	return start.Format(dateLayout) + " - " + end.Format(dateLayout)
}
