package service

import (
	"testing"
	"time"

	"github.com/casebill/casebill/internal/api/dto"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/testutil"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type BillingSummaryServiceSuite struct {
	testutil.BaseServiceTestSuite
	params   ServiceParams
	service  BillingSummaryService
	invoices InvoiceService
	clientID string

	// fixture
	openInvoice    *dto.InvoiceResponse
	overdueInvoice *dto.InvoiceResponse
}

func TestBillingSummaryService(t *testing.T) {
	suite.Run(t, new(BillingSummaryServiceSuite))
}

func (s *BillingSummaryServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.params = newTestServiceParams(&s.BaseServiceTestSuite)
	s.service = NewBillingSummaryService(s.params)
	s.invoices = NewInvoiceService(s.params)
	s.clientID = createTestClient(s.GetContext(), s.T(), s.params, "Jane Doe", "jane@example.com")
	s.setupFixture()
}

// setupFixture books one partly paid invoice and one past due invoice, plus a
// draft and a cancelled invoice that never count, a funded trust account on
// case-1 and a three month payment plan on case-2
func (s *BillingSummaryServiceSuite) setupFixture() {
	ctx := s.GetContext()
	processor := NewPaymentProcessorService(s.params)

	open, err := s.invoices.CreateInvoice(ctx, dto.CreateInvoiceRequest{
		CaseID:          "case-1",
		ClientID:        s.clientID,
		LineItems:       []dto.LineItemRequest{legalServices("4", "250"), expenseItem("Filing fee", "150")},
		SendImmediately: true,
	})
	s.Require().NoError(err)
	_, err = processor.ProcessPayment(ctx, dto.ProcessPaymentRequest{
		ClientID:      s.clientID,
		Amount:        dec("500"),
		PaymentMethod: types.PaymentMethodCash,
		InvoiceID:     lo.ToPtr(open.ID),
	})
	s.Require().NoError(err)
	s.openInvoice, err = s.invoices.GetInvoice(ctx, open.ID)
	s.Require().NoError(err)

	pastDue := time.Now().UTC().AddDate(0, 0, -3)
	s.overdueInvoice, err = s.invoices.CreateInvoice(ctx, dto.CreateInvoiceRequest{
		CaseID:          "case-3",
		ClientID:        s.clientID,
		LineItems:       []dto.LineItemRequest{legalServices("1", "100")},
		DueDate:         &pastDue,
		SendImmediately: true,
	})
	s.Require().NoError(err)

	_, err = s.invoices.CreateInvoice(ctx, dto.CreateInvoiceRequest{
		CaseID:    "case-1",
		ClientID:  s.clientID,
		LineItems: []dto.LineItemRequest{legalServices("10", "250")},
	})
	s.Require().NoError(err)

	cancelled, err := s.invoices.CreateInvoice(ctx, dto.CreateInvoiceRequest{
		CaseID:          "case-1",
		ClientID:        s.clientID,
		LineItems:       []dto.LineItemRequest{legalServices("2", "250")},
		SendImmediately: true,
	})
	s.Require().NoError(err)
	_, err = s.invoices.CancelInvoice(ctx, cancelled.ID, dto.CancelInvoiceRequest{Reason: "issued in error"})
	s.Require().NoError(err)

	trust := NewTrustAccountService(s.params)
	for _, t := range []types.TrustTransactionType{types.TrustTransactionTypeDeposit, types.TrustTransactionTypeHold} {
		amount := "800"
		if t == types.TrustTransactionTypeHold {
			amount = "100"
		}
		_, err = trust.ProcessTrustTransaction(ctx, dto.TrustTransactionRequest{
			ClientID:    s.clientID,
			CaseID:      "case-1",
			Type:        t,
			Amount:      dec(amount),
			Description: "Retainer",
			ApprovedBy:  "partner@firm.test",
		})
		s.Require().NoError(err)
	}

	_, err = NewPaymentPlanService(s.params).CreatePaymentPlan(ctx, dto.CreatePaymentPlanRequest{
		ClientID:         s.clientID,
		CaseID:           "case-2",
		TotalAmount:      dec("1200"),
		NumberOfPayments: 3,
	})
	s.Require().NoError(err)
}

func (s *BillingSummaryServiceSuite) TestClientBillingSummary() {
	summary, err := s.service.GetClientBillingSummary(s.GetContext(), s.clientID)
	s.Require().NoError(err)

	billed := s.openInvoice.TotalAmount.Add(s.overdueInvoice.TotalAmount)
	s.True(billed.Equal(summary.TotalBilled), "billed %s, got %s", billed, summary.TotalBilled)
	assertDecimal(s.T(), "500", summary.TotalPaid)
	s.Equal(2, summary.OpenInvoices)

	outstanding := s.openInvoice.BalanceDue.Add(s.overdueInvoice.BalanceDue)
	s.True(outstanding.Equal(summary.Outstanding), "outstanding %s, got %s", outstanding, summary.Outstanding)
	s.True(s.overdueInvoice.TotalAmount.Equal(summary.Overdue))

	s.Len(summary.RecentPayments, 1)
	assertDecimal(s.T(), "800", summary.TrustBalance)
	assertDecimal(s.T(), "700", summary.TrustAvailable)
	s.Len(summary.TrustAccounts, 1)

	s.Require().Len(summary.ActivePaymentPlans, 1)
	s.Require().Len(summary.UpcomingInstallments, 3)
	for i, inst := range summary.UpcomingInstallments {
		s.Equal("case-2", inst.CaseID)
		assertDecimal(s.T(), "400", inst.Amount)
		if i > 0 {
			s.True(inst.DueDate.After(summary.UpcomingInstallments[i-1].DueDate))
		}
	}
}

func (s *BillingSummaryServiceSuite) TestClientBillingSummaryUnknownClient() {
	_, err := s.service.GetClientBillingSummary(s.GetContext(), "client_missing")
	s.True(ierr.IsNotFound(err))
}

func (s *BillingSummaryServiceSuite) TestFinancialReport() {
	now := time.Now().UTC()
	report, err := s.service.GenerateFinancialReport(s.GetContext(), dto.FinancialReportRequest{
		ClientID:  s.clientID,
		StartDate: now.AddDate(0, 0, -1),
		EndDate:   now.AddDate(0, 0, 1),
	})
	s.Require().NoError(err)

	s.Equal(2, report.InvoiceCount)
	s.Equal(1, report.PaymentCount)
	billed := s.openInvoice.TotalAmount.Add(s.overdueInvoice.TotalAmount)
	s.True(billed.Equal(report.TotalBilled))
	assertDecimal(s.T(), "500", report.TotalPaid)
	assertDecimal(s.T(), "150", report.TotalExpenses)
	s.True(billed.Sub(report.TotalExpenses).Equal(report.NetIncome))

	s.Nil(report.Invoices)
	s.Nil(report.Payments)
	s.Nil(report.TrustActivity)
}

func (s *BillingSummaryServiceSuite) TestFinancialReportForCaseWithDetails() {
	now := time.Now().UTC()
	report, err := s.service.GenerateFinancialReport(s.GetContext(), dto.FinancialReportRequest{
		ClientID:       s.clientID,
		CaseID:         "case-1",
		StartDate:      now.AddDate(0, 0, -1),
		EndDate:        now.AddDate(0, 0, 1),
		IncludeDetails: true,
	})
	s.Require().NoError(err)

	s.Equal(1, report.InvoiceCount)
	s.Require().Len(report.Invoices, 1)
	s.Equal(s.openInvoice.ID, report.Invoices[0].ID)
	s.True(s.openInvoice.TotalAmount.Equal(report.TotalBilled))

	// the invoice payment carries no case but belongs to a case-1 invoice
	s.Require().Len(report.Payments, 1)
	assertDecimal(s.T(), "500", report.TotalPaid)

	s.Require().Len(report.TrustActivity, 2)
	s.Equal(types.TrustTransactionTypeDeposit, report.TrustActivity[0].Type)
	s.Equal(types.TrustTransactionTypeHold, report.TrustActivity[1].Type)
}

func (s *BillingSummaryServiceSuite) TestFinancialReportOutsidePeriod() {
	now := time.Now().UTC()
	report, err := s.service.GenerateFinancialReport(s.GetContext(), dto.FinancialReportRequest{
		ClientID:  s.clientID,
		StartDate: now.AddDate(-1, 0, 0),
		EndDate:   now.AddDate(0, -6, 0),
	})
	s.Require().NoError(err)
	s.Equal(0, report.InvoiceCount)
	s.Equal(0, report.PaymentCount)
	assertDecimal(s.T(), "0", report.TotalBilled)
}

func (s *BillingSummaryServiceSuite) TestFinancialReportValidation() {
	now := time.Now().UTC()
	_, err := s.service.GenerateFinancialReport(s.GetContext(), dto.FinancialReportRequest{
		ClientID:  s.clientID,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, -1),
	})
	s.True(ierr.IsValidation(err))

	_, err = s.service.GenerateFinancialReport(s.GetContext(), dto.FinancialReportRequest{ClientID: s.clientID})
	s.True(ierr.IsValidation(err))
}
