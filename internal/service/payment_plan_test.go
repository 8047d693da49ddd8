package service

import (
	"testing"
	"time"

	"github.com/casebill/casebill/internal/api/dto"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/gateway"
	"github.com/casebill/casebill/internal/testutil"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type PaymentPlanServiceSuite struct {
	testutil.BaseServiceTestSuite
	params    ServiceParams
	service   PaymentPlanService
	processor PaymentProcessorService
	clientID  string
}

func TestPaymentPlanService(t *testing.T) {
	suite.Run(t, new(PaymentPlanServiceSuite))
}

func (s *PaymentPlanServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.params = newTestServiceParams(&s.BaseServiceTestSuite)
	s.service = NewPaymentPlanService(s.params)
	s.processor = NewPaymentProcessorService(s.params)
	s.clientID = createTestClient(s.GetContext(), s.T(), s.params, "Jane Doe", "jane@example.com")
}

func (s *PaymentPlanServiceSuite) createPlan(caseID, total, down string, n int) *dto.PaymentPlanResponse {
	req := dto.CreatePaymentPlanRequest{
		ClientID:         s.clientID,
		CaseID:           caseID,
		TotalAmount:      dec(total),
		DownPayment:      dec(down),
		NumberOfPayments: n,
	}
	if req.DownPayment.IsPositive() {
		req.DownPaymentMethod = types.PaymentMethodCash
	}
	resp, err := s.service.CreatePaymentPlan(s.GetContext(), req)
	s.Require().NoError(err)
	return resp
}

func (s *PaymentPlanServiceSuite) payInstallment(caseID, amount string) *dto.PaymentResponse {
	resp, err := s.processor.ProcessPayment(s.GetContext(), dto.ProcessPaymentRequest{
		ClientID:      s.clientID,
		Amount:        dec(amount),
		PaymentMethod: types.PaymentMethodCash,
		CaseID:        lo.ToPtr(caseID),
	})
	s.Require().NoError(err)
	return resp
}

func (s *PaymentPlanServiceSuite) TestCreatePaymentPlanWithDownPayment() {
	resp := s.createPlan("case-9", "3000", "300", 9)

	s.Equal(types.PaymentPlanStatusActive, resp.PlanStatus)
	assertDecimal(s.T(), "2700", resp.RemainingBalance)
	assertDecimal(s.T(), "300", resp.MonthlyPayment)
	s.Len(resp.Schedule, 9)
	assertDecimal(s.T(), "2700", resp.Schedule.Sum())
	s.NoError(resp.Validate())

	for i, inst := range resp.Schedule {
		s.Equal(i+1, inst.InstallmentNumber)
		s.Equal(types.InstallmentStatusPending, inst.Status)
		if i > 0 {
			s.True(inst.DueDate.After(resp.Schedule[i-1].DueDate))
		}
	}
	s.Require().NotNil(resp.NextPaymentDate)
	s.True(resp.NextPaymentDate.Equal(resp.Schedule[0].DueDate))
	s.True(resp.EndDate.Equal(resp.Schedule[8].DueDate))

	s.Require().NotNil(resp.DownPaymentReceipt)
	s.Equal(types.PaymentStatusSucceeded, resp.DownPaymentReceipt.PaymentStatus)
	s.Equal(types.PaymentPurposeDownPayment, resp.DownPaymentReceipt.Purpose)
	assertDecimal(s.T(), "300", resp.DownPaymentReceipt.Amount)
	s.Require().NotNil(resp.DownPaymentID)
	s.Equal(resp.DownPaymentReceipt.ID, *resp.DownPaymentID)

	// the down payment never settles an installment
	stored, err := s.service.GetPaymentPlan(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Zero(stored.CompletedPayments)

	s.Len(s.GetNotifier().GetEmails(types.EmailTemplatePaymentPlanAgreement), 1)
	s.Len(s.GetNotifier().GetNotifications(types.NotificationTypePaymentPlanCreated), 1)
}

func (s *PaymentPlanServiceSuite) TestScheduleAbsorbsRemainder() {
	resp := s.createPlan("case-1", "1000", "0", 3)

	assertDecimal(s.T(), "333.33", resp.MonthlyPayment)
	assertDecimal(s.T(), "333.33", resp.Schedule[0].Amount)
	assertDecimal(s.T(), "333.33", resp.Schedule[1].Amount)
	assertDecimal(s.T(), "333.34", resp.Schedule[2].Amount)
	assertDecimal(s.T(), "1000", resp.Schedule.Sum())
	s.Nil(resp.DownPaymentReceipt)
}

func (s *PaymentPlanServiceSuite) TestCreatePaymentPlanValidation() {
	tests := []struct {
		name string
		req  dto.CreatePaymentPlanRequest
	}{
		{
			name: "zero installments",
			req: dto.CreatePaymentPlanRequest{
				ClientID:    s.clientID,
				CaseID:      "case-1",
				TotalAmount: dec("1000"),
			},
		},
		{
			name: "down payment above total",
			req: dto.CreatePaymentPlanRequest{
				ClientID:          s.clientID,
				CaseID:            "case-1",
				TotalAmount:       dec("1000"),
				DownPayment:       dec("1500"),
				NumberOfPayments:  3,
				DownPaymentMethod: types.PaymentMethodCash,
			},
		},
		{
			name: "down payment without method",
			req: dto.CreatePaymentPlanRequest{
				ClientID:         s.clientID,
				CaseID:           "case-1",
				TotalAmount:      dec("1000"),
				DownPayment:      dec("100"),
				NumberOfPayments: 3,
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.CreatePaymentPlan(s.GetContext(), tt.req)
			s.Error(err)
			s.True(ierr.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func (s *PaymentPlanServiceSuite) TestOneActivePlanPerCase() {
	s.createPlan("case-1", "1000", "0", 2)

	_, err := s.service.CreatePaymentPlan(s.GetContext(), dto.CreatePaymentPlanRequest{
		ClientID:         s.clientID,
		CaseID:           "case-1",
		TotalAmount:      dec("500"),
		NumberOfPayments: 2,
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))

	// another case is fine
	s.createPlan("case-2", "500", "0", 2)
}

func (s *PaymentPlanServiceSuite) TestCasePaymentSettlesNextInstallment() {
	plan := s.createPlan("case-9", "3000", "300", 9)

	payment := s.payInstallment("case-9", "300")
	s.Equal(types.PaymentStatusSucceeded, payment.PaymentStatus)
	s.Equal(types.PaymentPurposeInstallment, payment.Purpose)
	s.Require().NotNil(payment.PaymentPlanID)
	s.Equal(plan.ID, *payment.PaymentPlanID)

	got, err := s.service.GetPaymentPlan(s.GetContext(), plan.ID)
	s.NoError(err)
	s.Equal(1, got.CompletedPayments)
	s.Equal(types.InstallmentStatusPaid, got.Schedule[0].Status)
	s.NotNil(got.Schedule[0].PaidDate)
	s.Require().NotNil(got.Schedule[0].PaymentID)
	s.Equal(payment.ID, *got.Schedule[0].PaymentID)
	s.Equal(types.InstallmentStatusPending, got.Schedule[1].Status)
	s.Require().NotNil(got.NextPaymentDate)
	s.True(got.NextPaymentDate.Equal(got.Schedule[1].DueDate))
	s.NoError(got.Validate())
}

func (s *PaymentPlanServiceSuite) TestApplyScheduledPaymentIsIdempotent() {
	plan := s.createPlan("case-1", "900", "0", 3)
	payment := s.payInstallment("case-1", "300")

	again, err := s.service.ApplyScheduledPayment(s.GetContext(), "case-1", payment.ID)
	s.NoError(err)
	s.Equal(plan.ID, again.ID)
	s.Equal(1, again.CompletedPayments)
	s.Equal(types.InstallmentStatusPending, again.Schedule[1].Status)
}

func (s *PaymentPlanServiceSuite) TestPaymentAbovePlanBalanceIsRejected() {
	s.createPlan("case-9", "3000", "300", 9)

	_, err := s.processor.ProcessPayment(s.GetContext(), dto.ProcessPaymentRequest{
		ClientID:      s.clientID,
		Amount:        dec("3000"),
		PaymentMethod: types.PaymentMethodCash,
		CaseID:        lo.ToPtr("case-9"),
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *PaymentPlanServiceSuite) TestPaymentCoveringSeveralInstallments() {
	plan := s.createPlan("case-1", "900", "0", 3)

	payment := s.payInstallment("case-1", "600")

	got, err := s.service.GetPaymentPlan(s.GetContext(), plan.ID)
	s.NoError(err)
	s.Equal(2, got.CompletedPayments)
	for _, inst := range got.Schedule[:2] {
		s.Equal(types.InstallmentStatusPaid, inst.Status)
		s.Require().NotNil(inst.PaymentID)
		s.Equal(payment.ID, *inst.PaymentID)
	}
	s.Equal(types.InstallmentStatusPending, got.Schedule[2].Status)
	assertDecimal(s.T(), "300", got.Schedule.PayableTotal())
	s.True(got.NextPaymentDate.Equal(got.Schedule[2].DueDate))
}

func (s *PaymentPlanServiceSuite) TestPaymentNotMatchingInstallmentsIsRejected() {
	plan := s.createPlan("case-1", "900", "0", 3)

	for _, amount := range []string{"1", "299.99", "450", "750"} {
		_, err := s.processor.ProcessPayment(s.GetContext(), dto.ProcessPaymentRequest{
			ClientID:      s.clientID,
			Amount:        dec(amount),
			PaymentMethod: types.PaymentMethodCash,
			CaseID:        lo.ToPtr("case-1"),
		})
		s.True(ierr.IsValidation(err), "amount %s", amount)
	}

	got, err := s.service.GetPaymentPlan(s.GetContext(), plan.ID)
	s.NoError(err)
	s.Zero(got.CompletedPayments)
	assertDecimal(s.T(), "900", got.Schedule.PayableTotal())

	payments, err := s.processor.ListPayments(s.GetContext(), types.NewPaymentFilter())
	s.NoError(err)
	s.Empty(payments.Items)
}

func (s *PaymentPlanServiceSuite) TestApplyingMismatchedAmountLeavesPlanUnchanged() {
	plan := s.createPlan("case-1", "900", "0", 3)
	retainer, err := s.processor.ProcessPayment(s.GetContext(), dto.ProcessPaymentRequest{
		ClientID:      s.clientID,
		Amount:        dec("450"),
		PaymentMethod: types.PaymentMethodCash,
		CaseID:        lo.ToPtr("case-1"),
		Purpose:       types.PaymentPurposeRetainer,
	})
	s.Require().NoError(err)

	_, err = s.service.ApplyScheduledPayment(s.GetContext(), "case-1", retainer.ID)
	s.True(ierr.IsValidation(err))

	got, err := s.service.GetPaymentPlan(s.GetContext(), plan.ID)
	s.NoError(err)
	s.Zero(got.CompletedPayments)
	s.Equal(1, got.Version)
}

func (s *PaymentPlanServiceSuite) TestInstallmentWithoutPlan() {
	_, err := s.processor.ProcessPayment(s.GetContext(), dto.ProcessPaymentRequest{
		ClientID:      s.clientID,
		Amount:        dec("100"),
		PaymentMethod: types.PaymentMethodCash,
		CaseID:        lo.ToPtr("case-none"),
		Purpose:       types.PaymentPurposeInstallment,
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))

	// without an explicit purpose the payment is taken as a general case payment
	resp, err := s.processor.ProcessPayment(s.GetContext(), dto.ProcessPaymentRequest{
		ClientID:      s.clientID,
		Amount:        dec("100"),
		PaymentMethod: types.PaymentMethodCash,
		CaseID:        lo.ToPtr("case-none"),
	})
	s.NoError(err)
	s.Equal(types.PaymentPurposeGeneral, resp.Purpose)
	s.Nil(resp.PaymentPlanID)
}

func (s *PaymentPlanServiceSuite) TestRetainerDoesNotTouchPlan() {
	plan := s.createPlan("case-1", "900", "0", 3)

	resp, err := s.processor.ProcessPayment(s.GetContext(), dto.ProcessPaymentRequest{
		ClientID:      s.clientID,
		Amount:        dec("5000"),
		PaymentMethod: types.PaymentMethodCash,
		CaseID:        lo.ToPtr("case-1"),
		Purpose:       types.PaymentPurposeRetainer,
	})
	s.NoError(err)
	s.Nil(resp.PaymentPlanID)

	got, err := s.service.GetPaymentPlan(s.GetContext(), plan.ID)
	s.NoError(err)
	s.Zero(got.CompletedPayments)
}

func (s *PaymentPlanServiceSuite) TestPlanCompletes() {
	plan := s.createPlan("case-1", "200", "0", 2)

	s.payInstallment("case-1", "100")
	s.payInstallment("case-1", "100")

	got, err := s.service.GetPaymentPlan(s.GetContext(), plan.ID)
	s.NoError(err)
	s.Equal(types.PaymentPlanStatusCompleted, got.PlanStatus)
	s.Equal(2, got.CompletedPayments)
	s.Nil(got.NextPaymentDate)

	// the case has no active plan any more
	_, err = s.GetStores().PaymentPlanRepo.GetActiveByCase(s.GetContext(), "case-1")
	s.True(ierr.IsNotFound(err))
}

func (s *PaymentPlanServiceSuite) TestDeclinedDownPaymentCancelsPlan() {
	s.GetGateway().On("Charge", mock.Anything, mock.Anything).Return(&gateway.ChargeResult{
		ID:            "ch_declined",
		Status:        gateway.ChargeStatusFailed,
		FailureReason: "Your card was declined.",
	}, nil).Once()

	_, err := s.service.CreatePaymentPlan(s.GetContext(), dto.CreatePaymentPlanRequest{
		ClientID:          s.clientID,
		CaseID:            "case-1",
		TotalAmount:       dec("3000"),
		DownPayment:       dec("300"),
		NumberOfPayments:  9,
		DownPaymentMethod: types.PaymentMethodCreditCard,
		DownPaymentToken:  "pm_card_declined",
	})
	s.Error(err)
	s.True(ierr.IsPaymentGateway(err))
	s.GetGateway().AssertExpectations(s.T())

	filter := types.NewPaymentPlanFilter()
	filter.CaseID = "case-1"
	plans, err := s.service.ListPaymentPlans(s.GetContext(), filter)
	s.NoError(err)
	s.Require().Len(plans.Items, 1)
	s.Equal(types.PaymentPlanStatusCancelled, plans.Items[0].PlanStatus)
	s.Equal("down payment failed", plans.Items[0].Metadata["cancel_reason"])

	// the failed attempt is on record and a new plan can be set up
	s.Len(s.GetNotifier().GetNotifications(types.NotificationTypePaymentFailed), 1)
	s.createPlan("case-1", "3000", "300", 9)
}

func (s *PaymentPlanServiceSuite) TestWaiveInstallment() {
	plan := s.createPlan("case-1", "900", "0", 3)

	got, err := s.service.WaiveInstallment(s.GetContext(), plan.ID, dto.WaiveInstallmentRequest{InstallmentNumber: 3})
	s.NoError(err)
	s.Equal(types.InstallmentStatusWaived, got.Schedule[2].Status)
	assertDecimal(s.T(), "600", got.Schedule.PayableTotal())

	_, err = s.service.WaiveInstallment(s.GetContext(), plan.ID, dto.WaiveInstallmentRequest{InstallmentNumber: 3})
	s.True(ierr.IsInvalidOperation(err))

	_, err = s.service.WaiveInstallment(s.GetContext(), plan.ID, dto.WaiveInstallmentRequest{InstallmentNumber: 7})
	s.True(ierr.IsNotFound(err))

	// the plan completes once the rest is paid
	s.payInstallment("case-1", "300")
	s.payInstallment("case-1", "300")
	got, err = s.service.GetPaymentPlan(s.GetContext(), plan.ID)
	s.NoError(err)
	s.Equal(types.PaymentPlanStatusCompleted, got.PlanStatus)
}

func (s *PaymentPlanServiceSuite) TestMarkLateInstallmentsDefaultsPlan() {
	start := time.Now().UTC().AddDate(0, -4, -10)
	resp, err := s.service.CreatePaymentPlan(s.GetContext(), dto.CreatePaymentPlanRequest{
		ClientID:         s.clientID,
		CaseID:           "case-1",
		TotalAmount:      dec("1200"),
		NumberOfPayments: 6,
		StartDate:        &start,
	})
	s.Require().NoError(err)

	marked, err := s.service.MarkLateInstallments(s.GetContext(), time.Now().UTC())
	s.NoError(err)
	s.Equal(4, marked)

	got, err := s.service.GetPaymentPlan(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Equal(types.PaymentPlanStatusDefaulted, got.PlanStatus)
	s.Equal(4, got.MissedPayments)
	for i := 0; i < 4; i++ {
		s.Equal(types.InstallmentStatusLate, got.Schedule[i].Status)
	}
	s.Equal(types.InstallmentStatusPending, got.Schedule[4].Status)

	defaulted := s.GetNotifier().GetNotifications(types.NotificationTypePaymentPlanDefaulted)
	s.Require().Len(defaulted, 1)
	s.Equal(resp.ID, defaulted[0].Metadata["payment_plan_id"])

	// defaulted plans are skipped by later sweeps
	marked, err = s.service.MarkLateInstallments(s.GetContext(), time.Now().UTC())
	s.NoError(err)
	s.Zero(marked)
}

func (s *PaymentPlanServiceSuite) TestLateInstallmentWithinGracePeriod() {
	start := time.Now().UTC().AddDate(0, -1, 2)
	resp, err := s.service.CreatePaymentPlan(s.GetContext(), dto.CreatePaymentPlanRequest{
		ClientID:         s.clientID,
		CaseID:           "case-1",
		TotalAmount:      dec("600"),
		NumberOfPayments: 3,
		StartDate:        &start,
	})
	s.Require().NoError(err)

	// the first installment is not due yet
	marked, err := s.service.MarkLateInstallments(s.GetContext(), time.Now().UTC())
	s.NoError(err)
	s.Zero(marked)

	// two days past due is still inside the grace period
	marked, err = s.service.MarkLateInstallments(s.GetContext(), time.Now().UTC().AddDate(0, 0, 4))
	s.NoError(err)
	s.Zero(marked)

	marked, err = s.service.MarkLateInstallments(s.GetContext(), time.Now().UTC().AddDate(0, 0, 15))
	s.NoError(err)
	s.Equal(1, marked)

	got, err := s.service.GetPaymentPlan(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Equal(types.PaymentPlanStatusActive, got.PlanStatus)
	s.Equal(1, got.MissedPayments)

	// a late installment is still payable
	s.payInstallment("case-1", "200")
	got, err = s.service.GetPaymentPlan(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Equal(types.InstallmentStatusPaid, got.Schedule[0].Status)
}

func (s *PaymentPlanServiceSuite) TestCancelPaymentPlan() {
	plan := s.createPlan("case-1", "900", "0", 3)

	got, err := s.service.CancelPaymentPlan(s.GetContext(), plan.ID)
	s.NoError(err)
	s.Equal(types.PaymentPlanStatusCancelled, got.PlanStatus)
	s.Nil(got.NextPaymentDate)

	again, err := s.service.CancelPaymentPlan(s.GetContext(), plan.ID)
	s.NoError(err)
	s.Equal(types.PaymentPlanStatusCancelled, again.PlanStatus)
}
