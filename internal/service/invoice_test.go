package service

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/casebill/casebill/internal/api/dto"
	"github.com/casebill/casebill/internal/domain/invoice"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/s3"
	"github.com/casebill/casebill/internal/testutil"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type InvoiceServiceSuite struct {
	testutil.BaseServiceTestSuite
	params    ServiceParams
	service   InvoiceService
	processor PaymentProcessorService
	clientID  string
}

func TestInvoiceService(t *testing.T) {
	suite.Run(t, new(InvoiceServiceSuite))
}

func (s *InvoiceServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.params = newTestServiceParams(&s.BaseServiceTestSuite)
	s.service = NewInvoiceService(s.params)
	s.processor = NewPaymentProcessorService(s.params)
	s.clientID = createTestClient(s.GetContext(), s.T(), s.params, "Jane Doe", "jane@example.com")
}

func (s *InvoiceServiceSuite) createInvoice(items ...dto.LineItemRequest) *dto.InvoiceResponse {
	resp, err := s.service.CreateInvoice(s.GetContext(), dto.CreateInvoiceRequest{
		CaseID:    "case-1",
		ClientID:  s.clientID,
		LineItems: items,
	})
	s.Require().NoError(err)
	return resp
}

func (s *InvoiceServiceSuite) payCash(invoiceID, amount string) *dto.PaymentResponse {
	resp, err := s.processor.ProcessPayment(s.GetContext(), dto.ProcessPaymentRequest{
		ClientID:      s.clientID,
		Amount:        dec(amount),
		PaymentMethod: types.PaymentMethodCash,
		InvoiceID:     lo.ToPtr(invoiceID),
	})
	s.Require().NoError(err)
	return resp
}

func (s *InvoiceServiceSuite) TestCreateInvoiceComputesTotals() {
	resp := s.createInvoice(legalServices("4", "250"))

	s.Equal(types.InvoiceStatusDraft, resp.InvoiceStatus)
	assertDecimal(s.T(), "1000", resp.Subtotal)
	assertDecimal(s.T(), "0.0475", resp.TaxRate)
	assertDecimal(s.T(), "47.50", resp.TaxAmount)
	assertDecimal(s.T(), "1047.50", resp.TotalAmount)
	assertDecimal(s.T(), "1047.50", resp.BalanceDue)
	assertDecimal(s.T(), "0", resp.PaidAmount)
	s.Equal(fmt.Sprintf("INV-%d-00001", resp.IssuedDate.Year()), resp.InvoiceNumber)
	s.True(resp.IssuedDate.AddDate(0, 0, s.GetConfig().Billing.InvoiceDueDays).Equal(resp.DueDate))

	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), resp.ID)
	s.NoError(err)
	s.NoError(stored.Validate())
}

func (s *InvoiceServiceSuite) TestCreateInvoiceWithDiscountAndExpenses() {
	discount := dec("-100")
	resp := s.createInvoice(
		legalServices("2", "300"),
		expenseItem("Court reporter", "150"),
		dto.LineItemRequest{
			Description: "Courtesy discount",
			Category:    types.LineItemCategoryDiscount,
			Amount:      &discount,
		},
	)

	// tax is charged on the 750 subtotal, discounts come off after tax
	assertDecimal(s.T(), "750", resp.Subtotal)
	assertDecimal(s.T(), "35.63", resp.TaxAmount)
	assertDecimal(s.T(), "100", resp.DiscountAmount)
	assertDecimal(s.T(), "685.63", resp.TotalAmount)
	assertDecimal(s.T(), "150", resp.ExpenseTotal())
}

func (s *InvoiceServiceSuite) TestCreateInvoiceValidation() {
	tests := []struct {
		name string
		req  dto.CreateInvoiceRequest
	}{
		{
			name: "no line items",
			req:  dto.CreateInvoiceRequest{CaseID: "case-1", ClientID: s.clientID},
		},
		{
			name: "missing case",
			req: dto.CreateInvoiceRequest{
				ClientID:  s.clientID,
				LineItems: []dto.LineItemRequest{legalServices("1", "100")},
			},
		},
		{
			name: "negative line amount",
			req: dto.CreateInvoiceRequest{
				CaseID:    "case-1",
				ClientID:  s.clientID,
				LineItems: []dto.LineItemRequest{expenseItem("Refund", "-10")},
			},
		},
		{
			name: "discount larger than invoice",
			req: dto.CreateInvoiceRequest{
				CaseID:         "case-1",
				ClientID:       s.clientID,
				LineItems:      []dto.LineItemRequest{legalServices("1", "100")},
				DiscountAmount: dec("500"),
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.CreateInvoice(s.GetContext(), tt.req)
			s.Error(err)
			s.True(ierr.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func (s *InvoiceServiceSuite) TestCreateInvoiceUnknownClient() {
	_, err := s.service.CreateInvoice(s.GetContext(), dto.CreateInvoiceRequest{
		CaseID:    "case-1",
		ClientID:  "client_missing",
		LineItems: []dto.LineItemRequest{legalServices("1", "100")},
	})
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *InvoiceServiceSuite) TestInvoiceNumbersAreSequential() {
	first := s.createInvoice(legalServices("1", "100"))
	second := s.createInvoice(legalServices("1", "100"))

	year := first.IssuedDate.Year()
	s.Equal(invoice.FormatInvoiceNumber(year, 1), first.InvoiceNumber)
	s.Equal(invoice.FormatInvoiceNumber(year, 2), second.InvoiceNumber)
}

func (s *InvoiceServiceSuite) TestTakenInvoiceNumberAdvancesSequence() {
	first := s.createInvoice(legalServices("1", "100"))
	year := first.IssuedDate.Year()

	// an imported invoice already holds the number the counter hands out next
	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), first.ID)
	s.Require().NoError(err)
	imported := *stored
	imported.ID = types.GenerateUUID()
	imported.InvoiceNumber = invoice.FormatInvoiceNumber(year, 2)
	s.Require().NoError(s.GetStores().InvoiceRepo.Create(s.GetContext(), &imported))

	next := s.createInvoice(legalServices("1", "100"))
	s.Equal(invoice.FormatInvoiceNumber(year, 3), next.InvoiceNumber)

	after := s.createInvoice(legalServices("1", "100"))
	s.Equal(invoice.FormatInvoiceNumber(year, 4), after.InvoiceNumber)

	store := s.GetStores().InvoiceRepo.(*testutil.InMemoryInvoiceStore)
	s.Zero(store.ReservationsInTx())
}

func (s *InvoiceServiceSuite) TestConcurrentInvoiceNumbersAreUnique() {
	const n = 10

	var wg sync.WaitGroup
	numbers := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := s.service.CreateInvoice(s.GetContext(), dto.CreateInvoiceRequest{
				CaseID:    "case-1",
				ClientID:  s.clientID,
				LineItems: []dto.LineItemRequest{legalServices("1", "100")},
			})
			if err != nil {
				errs <- err
				return
			}
			numbers <- resp.InvoiceNumber
		}()
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		s.NoError(err)
	}

	year := time.Now().UTC().Year()
	seen := make(map[string]bool)
	for number := range numbers {
		s.False(seen[number], "duplicate invoice number %s", number)
		seen[number] = true
	}
	s.Len(seen, n)
	for i := 1; i <= n; i++ {
		s.True(seen[invoice.FormatInvoiceNumber(year, int64(i))], "missing sequence %d", i)
	}
}

func (s *InvoiceServiceSuite) TestFullPaymentMarksInvoicePaid() {
	inv := s.createInvoice(legalServices("4", "250"))

	payment := s.payCash(inv.ID, "1047.50")
	s.Equal(types.PaymentStatusSucceeded, payment.PaymentStatus)
	s.NotNil(payment.ReceiptNumber)

	got, err := s.service.GetInvoice(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, got.InvoiceStatus)
	assertDecimal(s.T(), "0", got.BalanceDue)
	assertDecimal(s.T(), "1047.50", got.PaidAmount)
	s.NotNil(got.PaidDate)
	s.Contains(got.AppliedPaymentIDs, payment.ID)

	receipts := s.GetNotifier().GetEmails(types.EmailTemplatePaymentReceipt)
	s.Require().Len(receipts, 1)
	s.Equal(got.InvoiceNumber, receipts[0].Data["invoice_number"])
}

func (s *InvoiceServiceSuite) TestPartialPayments() {
	inv := s.createInvoice(legalServices("4", "250"))

	s.payCash(inv.ID, "500")
	got, err := s.service.GetInvoice(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPartiallyPaid, got.InvoiceStatus)
	assertDecimal(s.T(), "547.50", got.BalanceDue)
	s.Nil(got.PaidDate)

	s.payCash(inv.ID, "547.50")
	got, err = s.service.GetInvoice(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, got.InvoiceStatus)
	s.True(got.PaidAmount.Add(got.BalanceDue).Equal(got.TotalAmount))
}

func (s *InvoiceServiceSuite) TestApplyPaymentIsIdempotent() {
	inv := s.createInvoice(legalServices("4", "250"))
	payment := s.payCash(inv.ID, "500")

	again, err := s.service.ApplyPayment(s.GetContext(), payment.ID, inv.ID)
	s.NoError(err)
	assertDecimal(s.T(), "500", again.PaidAmount)
	assertDecimal(s.T(), "547.50", again.BalanceDue)
	s.Len(again.AppliedPaymentIDs, 1)
}

func (s *InvoiceServiceSuite) TestPaymentLargerThanBalanceIsRejected() {
	inv := s.createInvoice(legalServices("4", "250"))

	_, err := s.processor.ProcessPayment(s.GetContext(), dto.ProcessPaymentRequest{
		ClientID:      s.clientID,
		Amount:        dec("2000"),
		PaymentMethod: types.PaymentMethodCash,
		InvoiceID:     lo.ToPtr(inv.ID),
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))

	// nothing was recorded and the invoice is untouched
	s.Empty(s.GetStores().PaymentRepo.(*testutil.InMemoryPaymentStore).CreatedInOrder())
	got, err := s.service.GetInvoice(s.GetContext(), inv.ID)
	s.NoError(err)
	assertDecimal(s.T(), "1047.50", got.BalanceDue)
}

func (s *InvoiceServiceSuite) TestPaymentFromAnotherClientIsRejected() {
	inv := s.createInvoice(legalServices("1", "100"))
	otherID := createTestClient(s.GetContext(), s.T(), s.params, "John Roe", "john@example.com")

	_, err := s.processor.ProcessPayment(s.GetContext(), dto.ProcessPaymentRequest{
		ClientID:      otherID,
		Amount:        dec("50"),
		PaymentMethod: types.PaymentMethodCash,
		InvoiceID:     lo.ToPtr(inv.ID),
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *InvoiceServiceSuite) TestSendInvoice() {
	inv := s.createInvoice(legalServices("4", "250"))

	sent, err := s.service.SendInvoice(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusSent, sent.InvoiceStatus)
	s.NotNil(sent.SentDate)
	s.Equal("https://documents.test/invoice/"+inv.ID+".html", sent.DocumentURL)

	doc := s.GetDocuments().Get(inv.ID, s3.DocumentTypeInvoice)
	s.Require().NotNil(doc)
	s.Contains(string(doc.Data), inv.InvoiceNumber)

	emails := s.GetNotifier().GetEmails(types.EmailTemplateInvoice)
	s.Require().Len(emails, 1)
	s.Equal("jane@example.com", emails[0].To)
	s.Equal(inv.InvoiceNumber, emails[0].Data["invoice_number"])
	s.Equal("1047.50", emails[0].Data["balance_due"])
	s.Len(s.GetNotifier().GetNotifications(types.NotificationTypeInvoiceSent), 1)
}

func (s *InvoiceServiceSuite) TestSendImmediately() {
	resp, err := s.service.CreateInvoice(s.GetContext(), dto.CreateInvoiceRequest{
		CaseID:          "case-1",
		ClientID:        s.clientID,
		LineItems:       []dto.LineItemRequest{legalServices("1", "100")},
		SendImmediately: true,
	})
	s.NoError(err)
	s.Equal(types.InvoiceStatusSent, resp.InvoiceStatus)
}

func (s *InvoiceServiceSuite) TestSendImmediatelyWithoutEmailKeepsDraft() {
	noEmail := createTestClient(s.GetContext(), s.T(), s.params, "No Email", "")

	resp, err := s.service.CreateInvoice(s.GetContext(), dto.CreateInvoiceRequest{
		CaseID:          "case-1",
		ClientID:        noEmail,
		LineItems:       []dto.LineItemRequest{legalServices("1", "100")},
		SendImmediately: true,
	})
	s.NoError(err)
	s.Equal(types.InvoiceStatusDraft, resp.InvoiceStatus)
	s.Empty(s.GetNotifier().GetEmails(types.EmailTemplateInvoice))

	failed := s.GetNotifier().GetNotifications(types.NotificationTypeInvoiceSendFailed)
	s.Require().Len(failed, 1)
	s.Equal(resp.ID, failed[0].Metadata["invoice_id"])
}

func (s *InvoiceServiceSuite) TestMarkInvoiceViewed() {
	inv := s.createInvoice(legalServices("1", "100"))

	_, err := s.service.MarkInvoiceViewed(s.GetContext(), inv.ID)
	s.True(ierr.IsInvalidOperation(err), "drafts cannot be viewed")

	_, err = s.service.SendInvoice(s.GetContext(), inv.ID)
	s.Require().NoError(err)

	viewed, err := s.service.MarkInvoiceViewed(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusViewed, viewed.InvoiceStatus)
	s.NotNil(viewed.ViewedDate)
}

func (s *InvoiceServiceSuite) TestCancelInvoice() {
	inv := s.createInvoice(legalServices("1", "100"))

	cancelled, err := s.service.CancelInvoice(s.GetContext(), inv.ID, dto.CancelInvoiceRequest{Reason: "billed in error"})
	s.NoError(err)
	s.Equal(types.InvoiceStatusCancelled, cancelled.InvoiceStatus)
	s.NotNil(cancelled.CancelledDate)
	s.Equal("billed in error", cancelled.Metadata["cancel_reason"])

	_, err = s.processor.ProcessPayment(s.GetContext(), dto.ProcessPaymentRequest{
		ClientID:      s.clientID,
		Amount:        dec("10"),
		PaymentMethod: types.PaymentMethodCash,
		InvoiceID:     lo.ToPtr(inv.ID),
	})
	s.True(ierr.IsValidation(err))
}

func (s *InvoiceServiceSuite) TestCancelInvoiceWithPaymentIsRejected() {
	inv := s.createInvoice(legalServices("1", "100"))
	s.payCash(inv.ID, "50")

	_, err := s.service.CancelInvoice(s.GetContext(), inv.ID, dto.CancelInvoiceRequest{})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *InvoiceServiceSuite) TestMarkOverdueInvoices() {
	pastDue := time.Now().UTC().AddDate(0, 0, -1)
	overdue, err := s.service.CreateInvoice(s.GetContext(), dto.CreateInvoiceRequest{
		CaseID:    "case-1",
		ClientID:  s.clientID,
		LineItems: []dto.LineItemRequest{legalServices("1", "100")},
		DueDate:   &pastDue,
	})
	s.Require().NoError(err)
	_, err = s.service.SendInvoice(s.GetContext(), overdue.ID)
	s.Require().NoError(err)

	current := s.createInvoice(legalServices("1", "100"))
	_, err = s.service.SendInvoice(s.GetContext(), current.ID)
	s.Require().NoError(err)

	// drafts past their due date are left alone
	_, err = s.service.CreateInvoice(s.GetContext(), dto.CreateInvoiceRequest{
		CaseID:    "case-1",
		ClientID:  s.clientID,
		LineItems: []dto.LineItemRequest{legalServices("1", "100")},
		DueDate:   &pastDue,
	})
	s.Require().NoError(err)

	updated, err := s.service.MarkOverdueInvoices(s.GetContext(), time.Now().UTC())
	s.NoError(err)
	s.Equal(1, updated)

	got, err := s.service.GetInvoice(s.GetContext(), overdue.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusOverdue, got.InvoiceStatus)

	got, err = s.service.GetInvoice(s.GetContext(), current.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusSent, got.InvoiceStatus)

	again, err := s.service.MarkOverdueInvoices(s.GetContext(), time.Now().UTC())
	s.NoError(err)
	s.Zero(again)
}

func (s *InvoiceServiceSuite) TestListInvoices() {
	s.createInvoice(legalServices("1", "100"))
	s.createInvoice(legalServices("1", "200"))

	filter := types.NewInvoiceFilter()
	filter.ClientID = s.clientID
	resp, err := s.service.ListInvoices(s.GetContext(), filter)
	s.NoError(err)
	s.Len(resp.Items, 2)
	s.Equal(2, resp.Pagination.Total)
}

func (s *InvoiceServiceSuite) TestInvoicesAreScopedToTenant() {
	inv := s.createInvoice(legalServices("1", "100"))

	other := testutil.TenantContext("tenant_other")
	_, err := s.service.GetInvoice(other, inv.ID)
	s.True(ierr.IsNotFound(err))

	list, err := s.service.ListInvoices(other, types.NewInvoiceFilter())
	s.Require().NoError(err)
	s.Empty(list.Items)
}
