package service

import (
	"context"
	"time"

	"github.com/casebill/casebill/internal/api/dto"
	"github.com/casebill/casebill/internal/document"
	"github.com/casebill/casebill/internal/domain/client"
	"github.com/casebill/casebill/internal/domain/invoice"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/notification"
	"github.com/casebill/casebill/internal/s3"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// InvoiceService defines the interface for invoice operations
type InvoiceService interface {
	CreateInvoice(ctx context.Context, req dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error)
	SendInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	ApplyPayment(ctx context.Context, paymentID, invoiceID string) (*dto.InvoiceResponse, error)
	GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	ListInvoices(ctx context.Context, filter *types.InvoiceFilter) (*dto.ListInvoicesResponse, error)
	MarkInvoiceViewed(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	CancelInvoice(ctx context.Context, id string, req dto.CancelInvoiceRequest) (*dto.InvoiceResponse, error)
	// MarkOverdueInvoices moves open invoices past their due date to overdue
	// and returns how many were updated
	MarkOverdueInvoices(ctx context.Context, asOf time.Time) (int, error)
	// ReverseInvoicePayment takes a refunded amount back off an invoice
	ReverseInvoicePayment(ctx context.Context, invoiceID string, amount decimal.Decimal) (*dto.InvoiceResponse, error)
}

type invoiceService struct {
	ServiceParams
}

func NewInvoiceService(params ServiceParams) InvoiceService {
	return &invoiceService{ServiceParams: params}
}

func (s *invoiceService) CreateInvoice(ctx context.Context, req dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.ClientRepo.Get(ctx, req.ClientID); err != nil {
		return nil, err
	}

	rate, err := s.TaxRates.RateFor(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	inv := req.ToInvoice(ctx, s.Config.Billing.InvoiceDueDays)
	totals := invoice.CalculateTotals(inv.LineItems, rate, req.DiscountAmount)
	if totals.TotalAmount.IsNegative() {
		return nil, ierr.NewError("invoice total cannot be negative").
			WithHint("Discounts cannot exceed the invoice amount").
			WithReportableDetails(map[string]any{
				"subtotal":        totals.Subtotal.String(),
				"discount_amount": totals.DiscountAmount.String(),
			}).
			Mark(ierr.ErrValidation)
	}

	inv.TaxRate = rate
	inv.Subtotal = totals.Subtotal
	inv.TaxAmount = totals.TaxAmount
	inv.DiscountAmount = totals.DiscountAmount
	inv.TotalAmount = totals.TotalAmount
	inv.BalanceDue = totals.TotalAmount
	inv.LateFeePercentage = decimal.NewFromFloat(s.Config.Billing.LateFeePercentage)

	if err := inv.Validate(); err != nil {
		return nil, err
	}

	// A taken number is retried with a fresh sequence. The counter is bumped
	// outside any transaction so a failed insert cannot roll the bump back
	// and hand out the same number again.
	year := inv.IssuedDate.Year()
	_, err = retryOnConflict(ctx, s.Config.Retry, ierr.IsAlreadyExists, func(ctx context.Context) (struct{}, error) {
		seq, err := s.InvoiceRepo.NextInvoiceSequence(ctx, year)
		if err != nil {
			return struct{}{}, err
		}
		inv.InvoiceNumber = invoice.FormatInvoiceNumber(year, seq)
		return struct{}{}, s.InvoiceRepo.Create(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("created invoice",
		"invoice_id", inv.ID,
		"invoice_number", inv.InvoiceNumber,
		"client_id", inv.ClientID,
		"total_amount", inv.TotalAmount.String(),
	)

	if req.SendImmediately {
		sent, err := s.SendInvoice(ctx, inv.ID)
		if err != nil {
			// the draft stands, sending can be retried
			s.Logger.Errorw("failed to send invoice after creation",
				"invoice_id", inv.ID,
				"error", err,
			)
			s.Notifier.Notify(ctx, &notification.Notification{
				Type:     types.NotificationTypeInvoiceSendFailed,
				Priority: types.NotificationPriorityMedium,
				Title:    "Invoice not sent",
				Message:  "Invoice " + inv.InvoiceNumber + " could not be sent: " + lo.FirstOr(ierr.GetHints(err), err.Error()),
				Metadata: map[string]string{
					"invoice_id": inv.ID,
					"client_id":  inv.ClientID,
				},
			})
			return dto.NewInvoiceResponse(inv), nil
		}
		return sent, nil
	}

	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) SendInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := s.ClientRepo.Get(ctx, inv.ClientID)
	if err != nil {
		return nil, err
	}

	if inv.InvoiceStatus == types.InvoiceStatusCancelled {
		return nil, ierr.NewError("cannot send a cancelled invoice").
			WithHint("The invoice has been cancelled").
			WithReportableDetails(map[string]any{
				"invoice_id": inv.ID,
			}).
			Mark(ierr.ErrValidation)
	}
	if !c.HasEmail() {
		return nil, ierr.NewError("client has no email address").
			WithHint("Add an email address to the client before sending invoices").
			WithReportableDetails(map[string]any{
				"client_id": c.ID,
			}).
			Mark(ierr.ErrValidation)
	}

	documentURL := s.storeDocument(ctx, inv, c)

	now := time.Now().UTC()
	inv, err = retryOnConflict(ctx, s.Config.Retry, isVersionConflict, func(ctx context.Context) (*invoice.Invoice, error) {
		fresh, err := s.InvoiceRepo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		sentAt := now
		fresh.SentDate = &sentAt
		if documentURL != "" {
			fresh.DocumentURL = documentURL
		}
		if fresh.InvoiceStatus == types.InvoiceStatusDraft {
			fresh.InvoiceStatus = types.InvoiceStatusSent
		}
		fresh.Touch(ctx)
		if err := s.InvoiceRepo.Update(ctx, fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.SendEmail(ctx, &notification.Email{
		To:       c.Email,
		Template: types.EmailTemplateInvoice,
		Data: map[string]string{
			"client_name":    c.Name,
			"invoice_number": inv.InvoiceNumber,
			"total_amount":   inv.TotalAmount.StringFixed(2),
			"balance_due":    inv.BalanceDue.StringFixed(2),
			"currency":       inv.Currency,
			"due_date":       inv.DueDate.Format("2006-01-02"),
			"document_url":   inv.DocumentURL,
			"portal_url":     s.Config.Billing.PortalURL,
		},
	})

	s.Notifier.Notify(ctx, &notification.Notification{
		Type:     types.NotificationTypeInvoiceSent,
		Priority: types.NotificationPriorityLow,
		Title:    "Invoice sent",
		Message:  "Invoice " + inv.InvoiceNumber + " was sent to " + c.Name,
		Metadata: map[string]string{
			"invoice_id": inv.ID,
			"client_id":  c.ID,
		},
	})

	s.Logger.Infow("sent invoice",
		"invoice_id", inv.ID,
		"invoice_number", inv.InvoiceNumber,
		"client_id", c.ID,
	)
	return dto.NewInvoiceResponse(inv), nil
}

// storeDocument renders the invoice and uploads it when document storage is
// configured. Failures are logged and an empty url is returned.
func (s *invoiceService) storeDocument(ctx context.Context, inv *invoice.Invoice, c *client.Client) string {
	if s.Renderer == nil {
		return ""
	}

	data := document.NewInvoiceData(inv, c, document.BillerInfo{
		Name:      s.Config.Billing.FirmName,
		PortalURL: s.Config.Billing.PortalURL,
	})
	html, err := s.Renderer.RenderInvoice(ctx, data)
	if err != nil {
		s.Logger.Errorw("failed to render invoice document",
			"invoice_id", inv.ID,
			"error", err,
		)
		return ""
	}

	if s.Documents == nil {
		return ""
	}
	if err := s.Documents.UploadDocument(ctx, s3.NewHTMLDocument(inv.ID, html, s3.DocumentTypeInvoice)); err != nil {
		s.Logger.Errorw("failed to upload invoice document",
			"invoice_id", inv.ID,
			"error", err,
		)
		return ""
	}
	url, err := s.Documents.GetPresignedUrl(ctx, inv.ID, s3.DocumentTypeInvoice)
	if err != nil {
		s.Logger.Errorw("failed to presign invoice document",
			"invoice_id", inv.ID,
			"error", err,
		)
		return ""
	}
	return url
}

func (s *invoiceService) ApplyPayment(ctx context.Context, paymentID, invoiceID string) (*dto.InvoiceResponse, error) {
	p, err := s.PaymentRepo.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.PaymentStatus != types.PaymentStatusSucceeded {
		return nil, ierr.NewError("only succeeded payments can be applied").
			WithHintf("Payment is %s", p.PaymentStatus).
			WithReportableDetails(map[string]any{
				"payment_id": p.ID,
				"invoice_id": invoiceID,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	if p.InvoiceID != nil && *p.InvoiceID != invoiceID {
		return nil, ierr.NewError("payment belongs to another invoice").
			WithHint("The payment was made against a different invoice").
			WithReportableDetails(map[string]any{
				"payment_id": p.ID,
				"invoice_id": invoiceID,
			}).
			Mark(ierr.ErrValidation)
	}

	var applied bool
	inv, err := retryOnConflict(ctx, s.Config.Retry, isVersionConflict, func(ctx context.Context) (*invoice.Invoice, error) {
		var inv *invoice.Invoice
		err := s.DB.WithTx(ctx, func(ctx context.Context) error {
			var err error
			inv, err = s.InvoiceRepo.Get(ctx, invoiceID)
			if err != nil {
				return err
			}
			if inv.ClientID != p.ClientID {
				return ierr.NewError("payment client does not match invoice client").
					WithHint("The payment was made by a different client").
					WithReportableDetails(map[string]any{
						"payment_id": p.ID,
						"invoice_id": inv.ID,
					}).
					Mark(ierr.ErrValidation)
			}

			applied, err = inv.ApplyPayment(p.ID, p.Amount, time.Now().UTC())
			if err != nil || !applied {
				return err
			}
			inv.Touch(ctx)
			return s.InvoiceRepo.Update(ctx, inv)
		})
		return inv, err
	})
	if err != nil {
		return nil, err
	}

	if applied {
		s.Logger.Infow("applied payment to invoice",
			"invoice_id", inv.ID,
			"payment_id", p.ID,
			"amount", p.Amount.String(),
			"balance_due", inv.BalanceDue.String(),
			"invoice_status", inv.InvoiceStatus,
		)
	} else {
		s.Logger.Debugw("payment already applied to invoice",
			"invoice_id", inv.ID,
			"payment_id", p.ID,
		)
	}
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter *types.InvoiceFilter) (*dto.ListInvoicesResponse, error) {
	if filter == nil {
		filter = types.NewInvoiceFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	invoices, err := s.InvoiceRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.InvoiceRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(invoices, func(inv *invoice.Invoice, _ int) *dto.InvoiceResponse {
		return dto.NewInvoiceResponse(inv)
	})
	resp := types.NewListResponse(items, total, filter)
	return &resp, nil
}

func (s *invoiceService) MarkInvoiceViewed(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	now := time.Now().UTC()
	inv, err := retryOnConflict(ctx, s.Config.Retry, isVersionConflict, func(ctx context.Context) (*invoice.Invoice, error) {
		inv, err := s.InvoiceRepo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		switch inv.InvoiceStatus {
		case types.InvoiceStatusDraft, types.InvoiceStatusCancelled:
			return nil, ierr.NewError("invoice has not been sent").
				WithHintf("Invoice is %s", inv.InvoiceStatus).
				WithReportableDetails(map[string]any{
					"invoice_id": inv.ID,
				}).
				Mark(ierr.ErrInvalidOperation)
		}
		if inv.ViewedDate != nil {
			return inv, nil
		}

		viewedAt := now
		inv.ViewedDate = &viewedAt
		if inv.InvoiceStatus == types.InvoiceStatusSent {
			inv.InvoiceStatus = types.InvoiceStatusViewed
		}
		inv.Touch(ctx)
		if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
			return nil, err
		}
		return inv, nil
	})
	if err != nil {
		return nil, err
	}
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) CancelInvoice(ctx context.Context, id string, req dto.CancelInvoiceRequest) (*dto.InvoiceResponse, error) {
	now := time.Now().UTC()
	inv, err := retryOnConflict(ctx, s.Config.Retry, isVersionConflict, func(ctx context.Context) (*invoice.Invoice, error) {
		inv, err := s.InvoiceRepo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if inv.InvoiceStatus == types.InvoiceStatusCancelled {
			return inv, nil
		}
		if inv.InvoiceStatus == types.InvoiceStatusPaid || !inv.PaidAmount.IsZero() || len(inv.AppliedPaymentIDs) > 0 {
			return nil, ierr.NewError("cannot cancel an invoice with payments").
				WithHint("Refund the applied payments before cancelling the invoice").
				WithReportableDetails(map[string]any{
					"invoice_id":  inv.ID,
					"paid_amount": inv.PaidAmount.String(),
				}).
				Mark(ierr.ErrInvalidOperation)
		}

		cancelledAt := now
		inv.InvoiceStatus = types.InvoiceStatusCancelled
		inv.CancelledDate = &cancelledAt
		if req.Reason != "" {
			if inv.Metadata == nil {
				inv.Metadata = types.Metadata{}
			}
			inv.Metadata["cancel_reason"] = req.Reason
		}
		inv.Touch(ctx)
		if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
			return nil, err
		}
		return inv, nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("cancelled invoice", "invoice_id", inv.ID, "reason", req.Reason)
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) MarkOverdueInvoices(ctx context.Context, asOf time.Time) (int, error) {
	filter := types.NewNoLimitInvoiceFilter()
	filter.InvoiceStatus = []types.InvoiceStatus{
		types.InvoiceStatusSent,
		types.InvoiceStatusViewed,
		types.InvoiceStatusPartiallyPaid,
	}

	invoices, err := s.InvoiceRepo.List(ctx, filter)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, candidate := range invoices {
		if !candidate.IsOverdue(asOf) {
			continue
		}
		changed, err := retryOnConflict(ctx, s.Config.Retry, isVersionConflict, func(ctx context.Context) (bool, error) {
			inv, err := s.InvoiceRepo.Get(ctx, candidate.ID)
			if err != nil {
				return false, err
			}
			if !inv.IsOverdue(asOf) {
				return false, nil
			}
			inv.InvoiceStatus = types.InvoiceStatusOverdue
			inv.Touch(ctx)
			return true, s.InvoiceRepo.Update(ctx, inv)
		})
		if err != nil {
			s.Logger.Errorw("failed to mark invoice overdue",
				"invoice_id", candidate.ID,
				"error", err,
			)
			continue
		}
		if changed {
			updated++
		}
	}

	s.Logger.Infow("marked overdue invoices",
		"as_of", asOf,
		"candidates", len(invoices),
		"updated", updated,
	)
	return updated, nil
}

func (s *invoiceService) ReverseInvoicePayment(ctx context.Context, invoiceID string, amount decimal.Decimal) (*dto.InvoiceResponse, error) {
	if !amount.IsPositive() {
		return nil, ierr.NewError("invalid amount").
			WithHint("Amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}

	inv, err := retryOnConflict(ctx, s.Config.Retry, isVersionConflict, func(ctx context.Context) (*invoice.Invoice, error) {
		var inv *invoice.Invoice
		err := s.DB.WithTx(ctx, func(ctx context.Context) error {
			var err error
			inv, err = s.InvoiceRepo.Get(ctx, invoiceID)
			if err != nil {
				return err
			}
			if err := inv.ReversePayment(amount, time.Now().UTC()); err != nil {
				return err
			}
			inv.Touch(ctx)
			return s.InvoiceRepo.Update(ctx, inv)
		})
		return inv, err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("reversed invoice payment",
		"invoice_id", inv.ID,
		"amount", amount.String(),
		"balance_due", inv.BalanceDue.String(),
		"invoice_status", inv.InvoiceStatus,
	)
	return dto.NewInvoiceResponse(inv), nil
}
