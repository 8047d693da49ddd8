package service

import (
	"context"
	"strconv"
	"time"

	"github.com/casebill/casebill/internal/api/dto"
	"github.com/casebill/casebill/internal/domain/client"
	"github.com/casebill/casebill/internal/domain/paymentplan"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/notification"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// PaymentPlanService schedules and settles installment plans
type PaymentPlanService interface {
	CreatePaymentPlan(ctx context.Context, req dto.CreatePaymentPlanRequest) (*dto.PaymentPlanResponse, error)
	// ApplyScheduledPayment settles the earliest payable installment of the
	// case's plan with a succeeded payment. Re-applying a payment is a no-op.
	ApplyScheduledPayment(ctx context.Context, caseID, paymentID string) (*dto.PaymentPlanResponse, error)
	GetPaymentPlan(ctx context.Context, id string) (*dto.PaymentPlanResponse, error)
	ListPaymentPlans(ctx context.Context, filter *types.PaymentPlanFilter) (*dto.ListPaymentPlansResponse, error)
	CancelPaymentPlan(ctx context.Context, id string) (*dto.PaymentPlanResponse, error)
	WaiveInstallment(ctx context.Context, id string, req dto.WaiveInstallmentRequest) (*dto.PaymentPlanResponse, error)
	// MarkLateInstallments flags installments past due plus grace and returns
	// how many were newly marked late
	MarkLateInstallments(ctx context.Context, asOf time.Time) (int, error)
}

type paymentPlanService struct {
	ServiceParams
}

func NewPaymentPlanService(params ServiceParams) PaymentPlanService {
	return &paymentPlanService{ServiceParams: params}
}

func (s *paymentPlanService) CreatePaymentPlan(ctx context.Context, req dto.CreatePaymentPlanRequest) (*dto.PaymentPlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c, err := s.ClientRepo.Get(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	existing, err := s.PaymentPlanRepo.GetActiveByCase(ctx, req.CaseID)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return nil, ierr.NewError("case already has an active payment plan").
			WithHint("Cancel or complete the existing payment plan first").
			WithReportableDetails(map[string]any{
				"case_id":         req.CaseID,
				"payment_plan_id": existing.ID,
			}).
			Mark(ierr.ErrValidation)
	}

	plan := req.ToPaymentPlan(ctx,
		decimal.NewFromFloat(s.Config.Billing.PlanLateFeeAmount),
		s.Config.Billing.PlanGracePeriodDays,
	)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := s.PaymentPlanRepo.Create(ctx, plan); err != nil {
		return nil, err
	}

	s.Logger.Infow("created payment plan",
		"payment_plan_id", plan.ID,
		"case_id", plan.CaseID,
		"total_amount", plan.TotalAmount.String(),
		"down_payment", plan.DownPayment.String(),
		"monthly_payment", plan.MonthlyPayment.String(),
		"number_of_payments", plan.NumberOfPayments,
	)

	resp := dto.NewPaymentPlanResponse(plan)
	if plan.DownPayment.IsPositive() {
		receipt, err := s.chargeDownPayment(ctx, plan, req)
		if err != nil {
			return nil, err
		}
		resp.DownPaymentReceipt = receipt
	}

	s.sendAgreement(ctx, plan, c)
	s.Notifier.Notify(ctx, &notification.Notification{
		Type:     types.NotificationTypePaymentPlanCreated,
		Priority: types.NotificationPriorityLow,
		Title:    "Payment plan created",
		Message:  "A payment plan of " + plan.TotalAmount.StringFixed(2) + " was set up for " + c.Name,
		Metadata: map[string]string{
			"payment_plan_id": plan.ID,
			"client_id":       plan.ClientID,
			"case_id":         plan.CaseID,
		},
	})
	return resp, nil
}

// chargeDownPayment runs the down payment through the payment processor and
// links it to the plan. A rejected down payment cancels the plan.
func (s *paymentPlanService) chargeDownPayment(ctx context.Context, plan *paymentplan.PaymentPlan, req dto.CreatePaymentPlanRequest) (*dto.PaymentResponse, error) {
	processor := NewPaymentProcessorService(s.ServiceParams)
	receipt, err := processor.ProcessPayment(ctx, *req.DownPaymentRequest(plan.ID))
	if err != nil {
		s.Logger.Errorw("down payment failed, cancelling payment plan",
			"payment_plan_id", plan.ID,
			"error", err,
		)
		if _, cancelErr := s.updatePlan(ctx, plan.ID, func(p *paymentplan.PaymentPlan) (bool, error) {
			p.PlanStatus = types.PaymentPlanStatusCancelled
			p.NextPaymentDate = nil
			if p.Metadata == nil {
				p.Metadata = types.Metadata{}
			}
			p.Metadata["cancel_reason"] = "down payment failed"
			return true, nil
		}); cancelErr != nil {
			s.Logger.Errorw("failed to cancel payment plan",
				"payment_plan_id", plan.ID,
				"error", cancelErr,
			)
		}
		return nil, err
	}

	updated, err := s.updatePlan(ctx, plan.ID, func(p *paymentplan.PaymentPlan) (bool, error) {
		p.DownPaymentID = lo.ToPtr(receipt.ID)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	*plan = *updated
	return receipt, nil
}

func (s *paymentPlanService) sendAgreement(ctx context.Context, plan *paymentplan.PaymentPlan, c *client.Client) {
	if !c.HasEmail() {
		return
	}
	s.Notifier.SendEmail(ctx, &notification.Email{
		To:       c.Email,
		Template: types.EmailTemplatePaymentPlanAgreement,
		Data: map[string]string{
			"client_name":        c.Name,
			"total_amount":       plan.TotalAmount.StringFixed(2),
			"down_payment":       plan.DownPayment.StringFixed(2),
			"number_of_payments": strconv.Itoa(plan.NumberOfPayments),
			"monthly_payment":    plan.MonthlyPayment.StringFixed(2),
			"first_payment_date": plan.Schedule[0].DueDate.Format("2006-01-02"),
			"end_date":           plan.EndDate.Format("2006-01-02"),
			"late_fee_amount":    plan.LateFeeAmount.StringFixed(2),
			"grace_period_days":  strconv.Itoa(plan.GracePeriodDays),
		},
	})
}

func (s *paymentPlanService) ApplyScheduledPayment(ctx context.Context, caseID, paymentID string) (*dto.PaymentPlanResponse, error) {
	p, err := s.PaymentRepo.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.PaymentStatus != types.PaymentStatusSucceeded {
		return nil, ierr.NewError("only succeeded payments can be applied").
			WithHintf("Payment is %s", p.PaymentStatus).
			WithReportableDetails(map[string]any{
				"payment_id": p.ID,
				"case_id":    caseID,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	var applied bool
	plan, err := retryOnConflict(ctx, s.Config.Retry, isVersionConflict, func(ctx context.Context) (*paymentplan.PaymentPlan, error) {
		var plan *paymentplan.PaymentPlan
		err := s.DB.WithTx(ctx, func(ctx context.Context) error {
			var err error
			// a payment that completed the plan must still find it on replay
			if p.PaymentPlanID != nil {
				plan, err = s.PaymentPlanRepo.Get(ctx, *p.PaymentPlanID)
			} else {
				plan, err = s.PaymentPlanRepo.GetActiveByCase(ctx, caseID)
			}
			if err != nil {
				return err
			}
			if plan.CaseID != caseID {
				return ierr.NewError("payment plan belongs to another case").
					WithHint("The payment was linked to a different case").
					WithReportableDetails(map[string]any{
						"payment_plan_id": plan.ID,
						"case_id":         caseID,
					}).
					Mark(ierr.ErrValidation)
			}

			applied, err = plan.ApplyPayment(p.ID, p.Amount, time.Now().UTC())
			if err != nil || !applied {
				return err
			}
			plan.Touch(ctx)
			return s.PaymentPlanRepo.Update(ctx, plan)
		})
		return plan, err
	})
	if err != nil {
		return nil, err
	}

	if applied {
		s.Logger.Infow("applied scheduled payment",
			"payment_plan_id", plan.ID,
			"payment_id", p.ID,
			"completed_payments", plan.CompletedPayments,
			"plan_status", plan.PlanStatus,
		)
	}
	return dto.NewPaymentPlanResponse(plan), nil
}

func (s *paymentPlanService) GetPaymentPlan(ctx context.Context, id string) (*dto.PaymentPlanResponse, error) {
	plan, err := s.PaymentPlanRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewPaymentPlanResponse(plan), nil
}

func (s *paymentPlanService) ListPaymentPlans(ctx context.Context, filter *types.PaymentPlanFilter) (*dto.ListPaymentPlansResponse, error) {
	if filter == nil {
		filter = types.NewPaymentPlanFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	plans, err := s.PaymentPlanRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.PaymentPlanRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(plans, func(plan *paymentplan.PaymentPlan, _ int) *dto.PaymentPlanResponse {
		return dto.NewPaymentPlanResponse(plan)
	})
	resp := types.NewListResponse(items, total, filter)
	return &resp, nil
}

func (s *paymentPlanService) CancelPaymentPlan(ctx context.Context, id string) (*dto.PaymentPlanResponse, error) {
	plan, err := s.updatePlan(ctx, id, func(p *paymentplan.PaymentPlan) (bool, error) {
		if p.PlanStatus == types.PaymentPlanStatusCancelled {
			return false, nil
		}
		if p.PlanStatus != types.PaymentPlanStatusActive {
			return false, ierr.NewError("payment plan is not active").
				WithHintf("Payment plan is %s", p.PlanStatus).
				Mark(ierr.ErrInvalidOperation)
		}
		p.PlanStatus = types.PaymentPlanStatusCancelled
		p.NextPaymentDate = nil
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("cancelled payment plan", "payment_plan_id", plan.ID)
	return dto.NewPaymentPlanResponse(plan), nil
}

func (s *paymentPlanService) WaiveInstallment(ctx context.Context, id string, req dto.WaiveInstallmentRequest) (*dto.PaymentPlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	plan, err := s.updatePlan(ctx, id, func(p *paymentplan.PaymentPlan) (bool, error) {
		if p.PlanStatus != types.PaymentPlanStatusActive {
			return false, ierr.NewError("payment plan is not active").
				WithHintf("Payment plan is %s", p.PlanStatus).
				Mark(ierr.ErrInvalidOperation)
		}
		return true, p.Waive(req.InstallmentNumber)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("waived installment",
		"payment_plan_id", plan.ID,
		"installment_number", req.InstallmentNumber,
		"plan_status", plan.PlanStatus,
	)
	return dto.NewPaymentPlanResponse(plan), nil
}

func (s *paymentPlanService) MarkLateInstallments(ctx context.Context, asOf time.Time) (int, error) {
	filter := types.NewNoLimitPaymentPlanFilter()
	filter.Status = []types.PaymentPlanStatus{types.PaymentPlanStatusActive}

	plans, err := s.PaymentPlanRepo.List(ctx, filter)
	if err != nil {
		return 0, err
	}

	threshold := s.Config.Billing.PlanDefaultThreshold
	marked := 0
	for _, candidate := range plans {
		var newlyLate int
		plan, err := s.updatePlan(ctx, candidate.ID, func(p *paymentplan.PaymentPlan) (bool, error) {
			newlyLate = p.MarkLate(asOf, threshold)
			return newlyLate > 0, nil
		})
		if err != nil {
			s.Logger.Errorw("failed to mark late installments",
				"payment_plan_id", candidate.ID,
				"error", err,
			)
			continue
		}
		marked += newlyLate

		if newlyLate > 0 && plan.PlanStatus == types.PaymentPlanStatusDefaulted {
			s.Logger.Warnw("payment plan defaulted",
				"payment_plan_id", plan.ID,
				"missed_payments", plan.MissedPayments,
			)
			s.Notifier.Notify(ctx, &notification.Notification{
				Type:     types.NotificationTypePaymentPlanDefaulted,
				Priority: types.NotificationPriorityHigh,
				Title:    "Payment plan defaulted",
				Message:  "Payment plan " + plan.ID + " missed " + strconv.Itoa(plan.MissedPayments) + " payments",
				Metadata: map[string]string{
					"payment_plan_id": plan.ID,
					"client_id":       plan.ClientID,
					"case_id":         plan.CaseID,
				},
			})
		}
	}

	s.Logger.Infow("marked late installments",
		"as_of", asOf,
		"plans", len(plans),
		"marked", marked,
	)
	return marked, nil
}

// updatePlan runs mutate on a fresh copy of the plan and writes it back when
// mutate reports a change, retrying on version conflicts
func (s *paymentPlanService) updatePlan(ctx context.Context, id string, mutate func(*paymentplan.PaymentPlan) (bool, error)) (*paymentplan.PaymentPlan, error) {
	return retryOnConflict(ctx, s.Config.Retry, isVersionConflict, func(ctx context.Context) (*paymentplan.PaymentPlan, error) {
		plan, err := s.PaymentPlanRepo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		changed, err := mutate(plan)
		if err != nil {
			return nil, err
		}
		if !changed {
			return plan, nil
		}
		plan.Touch(ctx)
		if err := s.PaymentPlanRepo.Update(ctx, plan); err != nil {
			return nil, err
		}
		return plan, nil
	})
}
