package service

import (
	"context"
	"fmt"
	"time"

	"github.com/casebill/casebill/internal/api/dto"
	"github.com/casebill/casebill/internal/domain/client"
	"github.com/casebill/casebill/internal/domain/payment"
	"github.com/casebill/casebill/internal/domain/paymentplan"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/gateway"
	"github.com/casebill/casebill/internal/idempotency"
	"github.com/casebill/casebill/internal/notification"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// PaymentProcessorService records payments from clients, settles them through
// the right channel and applies succeeded payments to invoices and plans
type PaymentProcessorService interface {
	ProcessPayment(ctx context.Context, req dto.ProcessPaymentRequest) (*dto.PaymentResponse, error)
	GetPayment(ctx context.Context, id string) (*dto.PaymentResponse, error)
	ListPayments(ctx context.Context, filter *types.PaymentFilter) (*dto.ListPaymentsResponse, error)
	// ConfirmPayment settles an ACH, wire or check payment after reconciliation
	ConfirmPayment(ctx context.Context, id string, req dto.ConfirmPaymentRequest) (*dto.PaymentResponse, error)
	RefundPayment(ctx context.Context, id string, req dto.RefundPaymentRequest) (*dto.PaymentResponse, error)
	// HandleGatewayEvent applies a verified gateway webhook
	HandleGatewayEvent(ctx context.Context, event *gateway.Event) error
}

type paymentProcessorService struct {
	ServiceParams
}

func NewPaymentProcessorService(params ServiceParams) PaymentProcessorService {
	return &paymentProcessorService{ServiceParams: params}
}

func (s *paymentProcessorService) ProcessPayment(ctx context.Context, req dto.ProcessPaymentRequest) (*dto.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.PaymentRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			s.Logger.Infow("returning payment for repeated idempotency key",
				"payment_id", existing.ID,
				"idempotency_key", req.IdempotencyKey,
			)
			return dto.NewPaymentResponse(existing), nil
		}
		if !ierr.IsNotFound(err) {
			return nil, err
		}
	}

	c, err := s.ClientRepo.Get(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	p := req.ToPayment(ctx)
	if err := s.checkTargets(ctx, p, req.Purpose != ""); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	// persisted before any money moves so every attempt leaves a record
	if err := s.PaymentRepo.Create(ctx, p); err != nil {
		if ierr.IsAlreadyExists(err) && p.IdempotencyKey != nil {
			existing, getErr := s.PaymentRepo.GetByIdempotencyKey(ctx, *p.IdempotencyKey)
			if getErr == nil {
				return dto.NewPaymentResponse(existing), nil
			}
		}
		return nil, err
	}

	s.Logger.Infow("processing payment",
		"payment_id", p.ID,
		"client_id", p.ClientID,
		"amount", p.Amount.String(),
		"payment_method", p.PaymentMethod,
		"purpose", p.Purpose,
	)

	var settleErr error
	switch p.PaymentMethod {
	case types.PaymentMethodCreditCard:
		settleErr = s.chargeCard(ctx, p, c, req.PaymentMethodToken)
	case types.PaymentMethodACH:
		p.PaymentStatus = types.PaymentStatusProcessing
		p.ExternalTransactionID = lo.ToPtr(fmt.Sprintf("ACH-%d", time.Now().UnixMilli()))
	case types.PaymentMethodWire:
		p.PaymentStatus = types.PaymentStatusProcessing
	case types.PaymentMethodCheck:
		// stays pending until the check clears
	case types.PaymentMethodCash:
		s.markSucceeded(p, time.Now().UTC())
	case types.PaymentMethodTrustAccount:
		settleErr = s.withdrawFromTrust(ctx, p, req.ApprovedBy)
	}

	p.Touch(ctx)
	if err := s.PaymentRepo.Update(ctx, p); err != nil {
		s.Logger.Errorw("failed to persist payment outcome",
			"payment_id", p.ID,
			"payment_status", p.PaymentStatus,
			"error", err,
		)
		s.Sentry.CaptureExceptionWithContext(ctx, err)
		return nil, err
	}

	if settleErr != nil {
		s.notifyFailure(ctx, p)
		return nil, settleErr
	}

	if p.PaymentStatus == types.PaymentStatusSucceeded {
		p = s.afterSuccess(ctx, p, c)
	}
	return dto.NewPaymentResponse(p), nil
}

// checkTargets rejects payments that could not be applied in full before any
// money moves. explicitPurpose is false when the purpose was inferred.
func (s *paymentProcessorService) checkTargets(ctx context.Context, p *payment.Payment, explicitPurpose bool) error {
	if p.InvoiceID != nil {
		inv, err := s.InvoiceRepo.Get(ctx, *p.InvoiceID)
		if err != nil {
			return err
		}
		if inv.ClientID != p.ClientID {
			return ierr.NewError("invoice belongs to another client").
				WithHint("The invoice was issued to a different client").
				WithReportableDetails(map[string]any{
					"invoice_id": inv.ID,
					"client_id":  p.ClientID,
				}).
				Mark(ierr.ErrValidation)
		}
		if inv.InvoiceStatus == types.InvoiceStatusCancelled {
			return ierr.NewError("invoice is cancelled").
				WithHint("Payments cannot be made against a cancelled invoice").
				WithReportableDetails(map[string]any{
					"invoice_id": inv.ID,
				}).
				Mark(ierr.ErrValidation)
		}
		if p.Amount.GreaterThan(inv.BalanceDue) {
			return ierr.NewError("payment exceeds invoice balance").
				WithHintf("The invoice balance due is %s", inv.BalanceDue.StringFixed(2)).
				WithReportableDetails(map[string]any{
					"invoice_id":  inv.ID,
					"amount":      p.Amount.String(),
					"balance_due": inv.BalanceDue.String(),
				}).
				Mark(ierr.ErrValidation)
		}
	}

	if !appliesToPlan(p) {
		return nil
	}
	plan, err := s.PaymentPlanRepo.GetActiveByCase(ctx, *p.CaseID)
	if err != nil && !ierr.IsNotFound(err) {
		return err
	}
	if plan == nil {
		if explicitPurpose && p.Purpose == types.PaymentPurposeInstallment {
			return ierr.NewError("case has no active payment plan").
				WithHint("Installment payments need an active payment plan").
				WithReportableDetails(map[string]any{
					"case_id": *p.CaseID,
				}).
				Mark(ierr.ErrValidation)
		}
		if p.Purpose == types.PaymentPurposeInstallment {
			p.Purpose = types.PaymentPurposeGeneral
		}
		return nil
	}
	if err := checkPlanAmount(plan, p.Amount); err != nil {
		return err
	}
	p.PaymentPlanID = lo.ToPtr(plan.ID)
	return nil
}

func checkPlanAmount(plan *paymentplan.PaymentPlan, amount decimal.Decimal) error {
	if plan.Schedule.NextPayable() == -1 {
		return ierr.NewError("payment plan has no outstanding installment").
			WithHint("Every installment of this plan is already settled").
			WithReportableDetails(map[string]any{
				"payment_plan_id": plan.ID,
			}).
			Mark(ierr.ErrValidation)
	}
	payable := plan.Schedule.PayableTotal()
	if amount.GreaterThan(payable) {
		return ierr.NewError("payment exceeds payment plan balance").
			WithHintf("Only %s is left on the payment plan", payable.StringFixed(2)).
			WithReportableDetails(map[string]any{
				"payment_plan_id": plan.ID,
				"amount":          amount.String(),
				"payable":         payable.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	if _, err := plan.Schedule.Allocate(amount); err != nil {
		return ierr.WithError(err).
			WithReportableDetails(map[string]any{
				"payment_plan_id": plan.ID,
			}).
			Error()
	}
	return nil
}

// appliesToPlan reports whether a succeeded payment settles a plan installment
func appliesToPlan(p *payment.Payment) bool {
	if p.CaseID == nil || *p.CaseID == "" {
		return false
	}
	return p.Purpose != types.PaymentPurposeDownPayment && p.Purpose != types.PaymentPurposeRetainer
}

// chargeCard charges the card through the gateway. Declines mark the payment
// failed and return a gateway error. An unknown outcome leaves it processing.
func (s *paymentProcessorService) chargeCard(ctx context.Context, p *payment.Payment, c *client.Client, token string) error {
	span, spanCtx := s.Sentry.StartGatewaySpan(ctx, "charge", map[string]interface{}{
		"payment_id": p.ID,
		"amount":     p.Amount.String(),
	})
	if span != nil {
		defer span.Finish()
	}

	chargeCtx, cancel := context.WithTimeout(spanCtx, s.Config.Gateway.Timeout)
	defer cancel()

	metadata := map[string]string{
		"payment_id": p.ID,
		"client_id":  p.ClientID,
		"tenant_id":  types.GetTenantID(ctx),
	}
	if p.InvoiceID != nil {
		metadata["invoice_id"] = *p.InvoiceID
	}
	if p.CaseID != nil {
		metadata["case_id"] = *p.CaseID
	}

	now := time.Now().UTC()
	result, err := s.Gateway.Charge(chargeCtx, gateway.ChargeRequest{
		AmountCents:        gateway.ToCents(p.Amount),
		Currency:           p.Currency,
		PaymentMethodToken: token,
		CustomerID:         lo.FromPtr(c.StripeCustomerID),
		IdempotencyKey:     p.ID,
		Metadata:           metadata,
	})
	if err != nil {
		if gateway.IsNotConfigured(err) {
			_ = p.MarkFailed("card payments are not configured", now)
			return err
		}
		// the charge may or may not have happened, reconciliation settles it
		s.Logger.Errorw("card charge outcome unknown, leaving payment processing",
			"payment_id", p.ID,
			"error", err,
		)
		s.Sentry.CaptureExceptionWithContext(ctx, err)
		p.PaymentStatus = types.PaymentStatusProcessing
		return nil
	}

	p.ExternalTransactionID = lo.ToPtr(result.ID)
	switch result.Status {
	case gateway.ChargeStatusSucceeded:
		s.applyCardFee(p)
		s.markSucceeded(p, now)
	case gateway.ChargeStatusProcessing:
		s.applyCardFee(p)
		p.PaymentStatus = types.PaymentStatusProcessing
	default:
		reason := result.FailureReason
		if reason == "" {
			reason = "card was declined"
		}
		_ = p.MarkFailed(reason, now)
		return ierr.NewError("card payment declined").
			WithHint(reason).
			WithReportableDetails(map[string]any{
				"payment_id": p.ID,
				"charge_id":  result.ID,
			}).
			Mark(ierr.ErrPaymentGateway)
	}
	return nil
}

func (s *paymentProcessorService) applyCardFee(p *payment.Payment) {
	p.ProcessingFee = s.Config.Gateway.CardFee(p.Amount)
	p.NetAmount = p.Amount.Sub(p.ProcessingFee)
}

// withdrawFromTrust pays from the client's trust funds for the case
func (s *paymentProcessorService) withdrawFromTrust(ctx context.Context, p *payment.Payment, approvedBy string) error {
	description := "Payment " + p.ID
	if p.InvoiceID != nil {
		description = "Payment " + p.ID + " for invoice " + *p.InvoiceID
	}

	trust := NewTrustAccountService(s.ServiceParams)
	resp, err := trust.ProcessTrustTransaction(ctx, dto.TrustTransactionRequest{
		ClientID:    p.ClientID,
		CaseID:      *p.CaseID,
		Type:        types.TrustTransactionTypeWithdrawal,
		Amount:      p.Amount,
		Description: description,
		ApprovedBy:  approvedBy,
		Reference:   lo.ToPtr(p.ID),
	})
	now := time.Now().UTC()
	if err != nil {
		_ = p.MarkFailed(lo.FirstOr(ierr.GetHints(err), "trust withdrawal failed"), now)
		return err
	}

	p.ExternalTransactionID = lo.ToPtr(resp.Transaction.ID)
	s.markSucceeded(p, now)
	return nil
}

func (s *paymentProcessorService) markSucceeded(p *payment.Payment, at time.Time) {
	if err := p.MarkSucceeded(at); err != nil {
		return
	}
	if p.ReceiptNumber == nil {
		p.ReceiptNumber = lo.ToPtr(types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_RECEIPT))
	}
}

// afterSuccess applies a succeeded payment to its invoice and plan and sends
// the receipt. Apply failures never undo the payment, they flag it for staff.
func (s *paymentProcessorService) afterSuccess(ctx context.Context, p *payment.Payment, c *client.Client) *payment.Payment {
	var unapplied []string

	if p.InvoiceID != nil {
		if _, err := NewInvoiceService(s.ServiceParams).ApplyPayment(ctx, p.ID, *p.InvoiceID); err != nil {
			s.Logger.Errorw("failed to apply payment to invoice",
				"payment_id", p.ID,
				"invoice_id", *p.InvoiceID,
				"error", err,
			)
			unapplied = append(unapplied, "invoice: "+err.Error())
		}
	}

	if appliesToPlan(p) && p.PaymentPlanID != nil {
		if _, err := NewPaymentPlanService(s.ServiceParams).ApplyScheduledPayment(ctx, *p.CaseID, p.ID); err != nil {
			s.Logger.Errorw("failed to apply payment to payment plan",
				"payment_id", p.ID,
				"payment_plan_id", *p.PaymentPlanID,
				"error", err,
			)
			unapplied = append(unapplied, "payment plan: "+err.Error())
		}
	}

	if len(unapplied) > 0 {
		p = s.flagUnapplied(ctx, p, unapplied)
	}

	s.sendReceipt(ctx, p, c)
	return p
}

func (s *paymentProcessorService) flagUnapplied(ctx context.Context, p *payment.Payment, reasons []string) *payment.Payment {
	reason := reasons[0]
	if len(reasons) > 1 {
		reason = reasons[0] + "; " + reasons[1]
	}

	updated, err := s.updatePayment(ctx, p.ID, func(fresh *payment.Payment) (bool, error) {
		if fresh.Metadata == nil {
			fresh.Metadata = types.Metadata{}
		}
		fresh.Metadata[types.PaymentMetadataUnapplied] = reason
		return true, nil
	})
	if err != nil {
		s.Logger.Errorw("failed to flag unapplied payment",
			"payment_id", p.ID,
			"error", err,
		)
		updated = p
	}

	s.Notifier.Notify(ctx, &notification.Notification{
		Type:     types.NotificationTypePaymentUnapplied,
		Priority: types.NotificationPriorityHigh,
		Title:    "Payment needs attention",
		Message:  "Payment " + p.ID + " of " + p.Amount.StringFixed(2) + " succeeded but could not be applied: " + reason,
		Metadata: map[string]string{
			"payment_id": p.ID,
			"client_id":  p.ClientID,
		},
	})
	return updated
}

func (s *paymentProcessorService) sendReceipt(ctx context.Context, p *payment.Payment, c *client.Client) {
	invoiceNumber := ""
	if p.InvoiceID != nil {
		if inv, err := s.InvoiceRepo.Get(ctx, *p.InvoiceID); err == nil {
			invoiceNumber = inv.InvoiceNumber
		}
	}

	if c.HasEmail() {
		s.Notifier.SendEmail(ctx, &notification.Email{
			To:       c.Email,
			Template: types.EmailTemplatePaymentReceipt,
			Data: map[string]string{
				"client_name":    c.Name,
				"amount":         p.Amount.StringFixed(2),
				"currency":       p.Currency,
				"payment_method": string(p.PaymentMethod),
				"receipt_number": lo.FromPtr(p.ReceiptNumber),
				"invoice_number": invoiceNumber,
			},
		})
	}

	s.Notifier.Notify(ctx, &notification.Notification{
		Type:     types.NotificationTypePaymentReceived,
		Priority: types.NotificationPriorityMedium,
		Title:    "Payment received",
		Message:  c.Name + " paid " + p.Amount.StringFixed(2) + " by " + string(p.PaymentMethod),
		Metadata: map[string]string{
			"payment_id":     p.ID,
			"client_id":      p.ClientID,
			"receipt_number": lo.FromPtr(p.ReceiptNumber),
		},
	})
}

func (s *paymentProcessorService) notifyFailure(ctx context.Context, p *payment.Payment) {
	if p.PaymentStatus != types.PaymentStatusFailed {
		return
	}
	s.Notifier.Notify(ctx, &notification.Notification{
		Type:     types.NotificationTypePaymentFailed,
		Priority: types.NotificationPriorityMedium,
		Title:    "Payment failed",
		Message:  "Payment " + p.ID + " of " + p.Amount.StringFixed(2) + " failed: " + lo.FromPtr(p.FailureReason),
		Metadata: map[string]string{
			"payment_id":     p.ID,
			"client_id":      p.ClientID,
			"payment_method": string(p.PaymentMethod),
		},
	})
}

func (s *paymentProcessorService) GetPayment(ctx context.Context, id string) (*dto.PaymentResponse, error) {
	p, err := s.PaymentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewPaymentResponse(p), nil
}

func (s *paymentProcessorService) ListPayments(ctx context.Context, filter *types.PaymentFilter) (*dto.ListPaymentsResponse, error) {
	if filter == nil {
		filter = types.NewPaymentFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	payments, err := s.PaymentRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.PaymentRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(payments, func(p *payment.Payment, _ int) *dto.PaymentResponse {
		return dto.NewPaymentResponse(p)
	})
	resp := types.NewListResponse(items, total, filter)
	return &resp, nil
}

func (s *paymentProcessorService) ConfirmPayment(ctx context.Context, id string, req dto.ConfirmPaymentRequest) (*dto.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.PaymentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lo.Contains([]types.PaymentMethod{types.PaymentMethodACH, types.PaymentMethodWire, types.PaymentMethodCheck}, p.PaymentMethod) {
		return nil, ierr.NewError("payment is settled by the gateway").
			WithHintf("%s payments cannot be confirmed manually", p.PaymentMethod).
			WithReportableDetails(map[string]any{
				"payment_id": p.ID,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	return s.settle(ctx, id, req.Succeeded, req.Reason, req.ExternalTransactionID)
}

// settle moves a settling payment to its final state and runs the success
// effects. Settling an already settled payment the same way is a no-op.
func (s *paymentProcessorService) settle(ctx context.Context, id string, succeeded bool, reason, externalID string) (*dto.PaymentResponse, error) {
	now := time.Now().UTC()
	var transitioned bool
	p, err := s.updatePayment(ctx, id, func(p *payment.Payment) (bool, error) {
		transitioned = false
		if !p.PaymentStatus.IsSettling() {
			if (succeeded && p.PaymentStatus == types.PaymentStatusSucceeded) ||
				(!succeeded && p.PaymentStatus == types.PaymentStatusFailed) {
				return false, nil
			}
			return false, ierr.NewError("payment is already settled").
				WithHintf("Payment is %s", p.PaymentStatus).
				WithReportableDetails(map[string]any{
					"payment_id": p.ID,
				}).
				Mark(ierr.ErrInvalidOperation)
		}
		if externalID != "" {
			p.ExternalTransactionID = lo.ToPtr(externalID)
		}
		if succeeded {
			s.markSucceeded(p, now)
		} else if err := p.MarkFailed(reason, now); err != nil {
			return false, err
		}
		transitioned = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return dto.NewPaymentResponse(p), nil
	}

	s.Logger.Infow("settled payment",
		"payment_id", p.ID,
		"payment_status", p.PaymentStatus,
	)

	if p.PaymentStatus == types.PaymentStatusFailed {
		s.notifyFailure(ctx, p)
		return dto.NewPaymentResponse(p), nil
	}

	c, err := s.ClientRepo.Get(ctx, p.ClientID)
	if err != nil {
		return nil, err
	}
	p = s.afterSuccess(ctx, p, c)
	return dto.NewPaymentResponse(p), nil
}

func (s *paymentProcessorService) RefundPayment(ctx context.Context, id string, req dto.RefundPaymentRequest) (*dto.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.PaymentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	amount := p.RefundableAmount()
	if req.Amount != nil {
		amount = *req.Amount
	}

	// check before any money moves
	preview := *p
	if err := preview.RecordRefund(amount, req.Reason, time.Now().UTC()); err != nil {
		return nil, err
	}

	if p.PaymentMethod == types.PaymentMethodCreditCard {
		if err := s.refundCard(ctx, p, amount, req.Reason); err != nil {
			return nil, err
		}
	}

	return s.recordRefund(ctx, p.ID, amount, req.Reason)
}

func (s *paymentProcessorService) refundCard(ctx context.Context, p *payment.Payment, amount decimal.Decimal, reason string) error {
	if p.ExternalTransactionID == nil {
		return ierr.NewError("card payment has no gateway charge").
			WithHint("This payment cannot be refunded through the gateway").
			WithReportableDetails(map[string]any{
				"payment_id": p.ID,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	span, spanCtx := s.Sentry.StartGatewaySpan(ctx, "refund", map[string]interface{}{
		"payment_id": p.ID,
		"amount":     amount.String(),
	})
	if span != nil {
		defer span.Finish()
	}
	refundCtx, cancel := context.WithTimeout(spanCtx, s.Config.Gateway.Timeout)
	defer cancel()

	result, err := s.Gateway.Refund(refundCtx, gateway.RefundRequest{
		ChargeID:       *p.ExternalTransactionID,
		AmountCents:    gateway.ToCents(amount),
		Reason:         reason,
		IdempotencyKey: refundIdempotencyKey(p.ID, p.RefundedAmount.Add(amount)),
	})
	if err != nil {
		return err
	}

	s.Logger.Infow("refunded card payment",
		"payment_id", p.ID,
		"refund_id", result.ID,
		"amount", amount.String(),
	)
	return nil
}

// recordRefund books a refund that already happened at the gateway or bank
// and reverses it on the invoice
func (s *paymentProcessorService) recordRefund(ctx context.Context, id string, amount decimal.Decimal, reason string) (*dto.PaymentResponse, error) {
	now := time.Now().UTC()
	p, err := s.updatePayment(ctx, id, func(p *payment.Payment) (bool, error) {
		return true, p.RecordRefund(amount, reason, now)
	})
	if err != nil {
		return nil, err
	}

	if p.InvoiceID != nil {
		inv, err := s.InvoiceRepo.Get(ctx, *p.InvoiceID)
		if err != nil {
			return nil, err
		}
		if inv.HasPayment(p.ID) {
			if _, err := NewInvoiceService(s.ServiceParams).ReverseInvoicePayment(ctx, inv.ID, amount); err != nil {
				return nil, err
			}
		}
	}

	s.Notifier.Notify(ctx, &notification.Notification{
		Type:     types.NotificationTypePaymentRefunded,
		Priority: types.NotificationPriorityMedium,
		Title:    "Payment refunded",
		Message:  "Refunded " + amount.StringFixed(2) + " of payment " + p.ID + ": " + reason,
		Metadata: map[string]string{
			"payment_id": p.ID,
			"client_id":  p.ClientID,
			"amount":     amount.String(),
		},
	})

	s.Logger.Infow("recorded refund",
		"payment_id", p.ID,
		"amount", amount.String(),
		"refunded_amount", p.RefundedAmount.String(),
		"payment_status", p.PaymentStatus,
	)
	return dto.NewPaymentResponse(p), nil
}

func (s *paymentProcessorService) HandleGatewayEvent(ctx context.Context, event *gateway.Event) error {
	if event == nil || event.ChargeID == "" {
		return nil
	}

	p, err := s.PaymentRepo.GetByExternalTransactionID(ctx, event.ChargeID)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Infow("ignoring gateway event for unknown charge",
				"event_id", event.ID,
				"event_type", event.Type,
				"charge_id", event.ChargeID,
			)
			return nil
		}
		return err
	}

	s.Logger.Infow("handling gateway event",
		"event_id", event.ID,
		"event_type", event.Type,
		"payment_id", p.ID,
	)

	switch event.Type {
	case gateway.EventPaymentSucceeded:
		if p.PaymentStatus.IsSettling() {
			_, err = s.settle(ctx, p.ID, true, "", "")
		}
	case gateway.EventPaymentFailed:
		if p.PaymentStatus.IsSettling() {
			reason := event.FailureReason
			if reason == "" {
				reason = "payment failed at the gateway"
			}
			_, err = s.settle(ctx, p.ID, false, reason, "")
		}
	case gateway.EventChargeRefunded:
		err = s.syncGatewayRefund(ctx, p, event)
	case gateway.EventDisputeCreated:
		err = s.recordDispute(ctx, p, event)
	}
	return err
}

// syncGatewayRefund books refunds issued from the gateway dashboard. The event
// carries the cumulative refunded amount.
func (s *paymentProcessorService) syncGatewayRefund(ctx context.Context, p *payment.Payment, event *gateway.Event) error {
	if p.PaymentStatus != types.PaymentStatusSucceeded {
		return nil
	}
	refunded := gateway.FromCents(event.AmountCents)
	delta := refunded.Sub(p.RefundedAmount)
	if !delta.IsPositive() {
		return nil
	}
	_, err := s.recordRefund(ctx, p.ID, delta, "refunded at gateway")
	return err
}

func (s *paymentProcessorService) recordDispute(ctx context.Context, p *payment.Payment, event *gateway.Event) error {
	var recorded bool
	_, err := s.updatePayment(ctx, p.ID, func(fresh *payment.Payment) (bool, error) {
		recorded = false
		if fresh.Metadata == nil {
			fresh.Metadata = types.Metadata{}
		}
		if fresh.Metadata[types.PaymentMetadataDisputeID] == event.DisputeID {
			return false, nil
		}
		fresh.Metadata[types.PaymentMetadataDisputeID] = event.DisputeID
		recorded = true
		return true, nil
	})
	if err != nil || !recorded {
		return err
	}

	s.Logger.Warnw("payment disputed",
		"payment_id", p.ID,
		"dispute_id", event.DisputeID,
		"reason", event.DisputeReason,
	)
	s.Notifier.Notify(ctx, &notification.Notification{
		Type:     types.NotificationTypePaymentDisputed,
		Priority: types.NotificationPriorityHigh,
		Title:    "Payment disputed",
		Message:  "Payment " + p.ID + " of " + p.Amount.StringFixed(2) + " was disputed: " + event.DisputeReason,
		Metadata: map[string]string{
			"payment_id": p.ID,
			"client_id":  p.ClientID,
			"dispute_id": event.DisputeID,
		},
	})
	return nil
}

// updatePayment runs mutate on a fresh copy of the payment and writes it back
// when mutate reports a change, retrying on version conflicts
func (s *paymentProcessorService) updatePayment(ctx context.Context, id string, mutate func(*payment.Payment) (bool, error)) (*payment.Payment, error) {
	return retryOnConflict(ctx, s.Config.Retry, isVersionConflict, func(ctx context.Context) (*payment.Payment, error) {
		p, err := s.PaymentRepo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		changed, err := mutate(p)
		if err != nil {
			return nil, err
		}
		if !changed {
			return p, nil
		}
		p.Touch(ctx)
		if err := s.PaymentRepo.Update(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	})
}

// refundIdempotencyKey is keyed on the cumulative refunded total so a retried
// refund reuses its key while a second partial refund gets a new one
func refundIdempotencyKey(paymentID string, refundedTotal decimal.Decimal) string {
	return idempotency.NewGenerator().GenerateKey(idempotency.ScopeGatewayRefund, map[string]interface{}{
		"payment_id": paymentID,
		"refunded":   refundedTotal.String(),
	})
}
