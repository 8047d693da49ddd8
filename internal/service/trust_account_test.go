package service

import (
	"sync"
	"testing"

	"github.com/casebill/casebill/internal/api/dto"
	"github.com/casebill/casebill/internal/domain/trustaccount"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/testutil"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type TrustAccountServiceSuite struct {
	testutil.BaseServiceTestSuite
	params   ServiceParams
	service  TrustAccountService
	clientID string
}

func TestTrustAccountService(t *testing.T) {
	suite.Run(t, new(TrustAccountServiceSuite))
}

func (s *TrustAccountServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.params = newTestServiceParams(&s.BaseServiceTestSuite)
	s.service = NewTrustAccountService(s.params)
	s.clientID = createTestClient(s.GetContext(), s.T(), s.params, "Jane Doe", "jane@example.com")
}

func (s *TrustAccountServiceSuite) post(txType types.TrustTransactionType, caseID, amount string) (*dto.TrustTransactionResponse, error) {
	return s.service.ProcessTrustTransaction(s.GetContext(), dto.TrustTransactionRequest{
		ClientID:    s.clientID,
		CaseID:      caseID,
		Type:        txType,
		Amount:      dec(amount),
		Description: string(txType) + " " + amount,
		ApprovedBy:  "partner@firm.test",
	})
}

func (s *TrustAccountServiceSuite) mustPost(txType types.TrustTransactionType, caseID, amount string) *dto.TrustTransactionResponse {
	resp, err := s.post(txType, caseID, amount)
	s.Require().NoError(err)
	return resp
}

func (s *TrustAccountServiceSuite) TestDepositOpensAccount() {
	resp := s.mustPost(types.TrustTransactionTypeDeposit, "case-1", "500")

	s.NotEmpty(resp.Account.AccountNumber)
	s.Equal(types.TrustAccountStatusActive, resp.Account.AccountStatus)
	assertDecimal(s.T(), "500", resp.Account.CurrentBalance)
	assertDecimal(s.T(), "0", resp.Account.HeldAmount)
	assertDecimal(s.T(), "500", resp.Account.AvailableBalance)

	s.Equal(types.TrustEntryDirectionCredit, resp.Transaction.Direction)
	assertDecimal(s.T(), "500", resp.Transaction.ResultingBalance)
	s.Equal("partner@firm.test", resp.Transaction.ApprovedBy)

	// a second deposit reuses the account
	again := s.mustPost(types.TrustTransactionTypeDeposit, "case-1", "250")
	s.Equal(resp.Account.ID, again.Account.ID)
	assertDecimal(s.T(), "750", again.Account.CurrentBalance)

	logs, err := s.GetStores().AuditLogRepo.ListByEntity(s.GetContext(), types.AuditEntityTrustAccount, resp.Account.ID)
	s.NoError(err)
	s.Len(logs, 2)

	s.Len(s.GetNotifier().GetNotifications(types.NotificationTypeTrustAccountActivity), 2)
}

func (s *TrustAccountServiceSuite) TestWithdrawalBeyondAvailableFails() {
	s.mustPost(types.TrustTransactionTypeDeposit, "case-1", "500")
	hold := s.mustPost(types.TrustTransactionTypeHold, "case-1", "200")
	assertDecimal(s.T(), "500", hold.Account.CurrentBalance)
	assertDecimal(s.T(), "200", hold.Account.HeldAmount)
	assertDecimal(s.T(), "300", hold.Account.AvailableBalance)

	_, err := s.post(types.TrustTransactionTypeWithdrawal, "case-1", "400")
	s.Error(err)
	s.True(ierr.IsInsufficientFunds(err), "expected insufficient funds, got %v", err)

	account, err := s.service.GetTrustAccount(s.GetContext(), hold.Account.ID)
	s.NoError(err)
	assertDecimal(s.T(), "500", account.CurrentBalance)
	assertDecimal(s.T(), "200", account.HeldAmount)
	assertDecimal(s.T(), "300", account.AvailableBalance)
	s.Equal(hold.Account.Version, account.Version)
	s.Len(s.GetStores().TrustAccountRepo.(*testutil.InMemoryTrustAccountStore).Transactions(), 2)

	// the available part can still be withdrawn
	resp := s.mustPost(types.TrustTransactionTypeWithdrawal, "case-1", "300")
	assertDecimal(s.T(), "200", resp.Account.CurrentBalance)
	assertDecimal(s.T(), "0", resp.Account.AvailableBalance)
}

func (s *TrustAccountServiceSuite) TestRejectedFirstPostingOpensNoAccount() {
	for _, txType := range []types.TrustTransactionType{
		types.TrustTransactionTypeWithdrawal,
		types.TrustTransactionTypeHold,
		types.TrustTransactionTypeRelease,
	} {
		_, err := s.post(txType, "case-new", "50")
		s.Error(err, txType)
	}

	_, err := s.service.ProcessTrustTransaction(s.GetContext(), dto.TrustTransactionRequest{
		ClientID:    s.clientID,
		CaseID:      "case-new",
		Type:        types.TrustTransactionTypeTransfer,
		Amount:      dec("50"),
		Description: "Settlement share",
		ApprovedBy:  "partner@firm.test",
		TransferTo:  &dto.TransferDestination{ClientID: s.clientID, CaseID: "case-other"},
	})
	s.True(ierr.IsInsufficientFunds(err))

	accounts, err := s.service.ListTrustAccounts(s.GetContext(), types.NewTrustAccountFilter())
	s.NoError(err)
	s.Empty(accounts.Items)
	s.Empty(s.GetStores().TrustAccountRepo.(*testutil.InMemoryTrustAccountStore).Transactions())

	// the pair can still be opened by a deposit
	resp := s.mustPost(types.TrustTransactionTypeDeposit, "case-new", "50")
	assertDecimal(s.T(), "50", resp.Account.CurrentBalance)
}

func (s *TrustAccountServiceSuite) TestHoldAndRelease() {
	s.mustPost(types.TrustTransactionTypeDeposit, "case-1", "500")
	s.mustPost(types.TrustTransactionTypeHold, "case-1", "200")

	_, err := s.post(types.TrustTransactionTypeHold, "case-1", "400")
	s.True(ierr.IsInsufficientFunds(err))

	_, err = s.post(types.TrustTransactionTypeRelease, "case-1", "250")
	s.True(ierr.IsValidation(err))

	resp := s.mustPost(types.TrustTransactionTypeRelease, "case-1", "200")
	assertDecimal(s.T(), "500", resp.Account.CurrentBalance)
	assertDecimal(s.T(), "0", resp.Account.HeldAmount)
	assertDecimal(s.T(), "500", resp.Account.AvailableBalance)
	s.Equal(types.TrustEntryDirectionNone, resp.Transaction.Direction)
}

func (s *TrustAccountServiceSuite) TestTransactionValidation() {
	tests := []struct {
		name string
		req  dto.TrustTransactionRequest
	}{
		{
			name: "missing approver",
			req: dto.TrustTransactionRequest{
				ClientID:    s.clientID,
				CaseID:      "case-1",
				Type:        types.TrustTransactionTypeDeposit,
				Amount:      dec("100"),
				Description: "Retainer",
			},
		},
		{
			name: "zero amount",
			req: dto.TrustTransactionRequest{
				ClientID:    s.clientID,
				CaseID:      "case-1",
				Type:        types.TrustTransactionTypeDeposit,
				Amount:      decimal.Zero,
				Description: "Retainer",
				ApprovedBy:  "partner@firm.test",
			},
		},
		{
			name: "transfer without destination",
			req: dto.TrustTransactionRequest{
				ClientID:    s.clientID,
				CaseID:      "case-1",
				Type:        types.TrustTransactionTypeTransfer,
				Amount:      dec("100"),
				Description: "Move funds",
				ApprovedBy:  "partner@firm.test",
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.ProcessTrustTransaction(s.GetContext(), tt.req)
			s.Error(err)
			s.True(ierr.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func (s *TrustAccountServiceSuite) TestTransferMovesFundsAtomically() {
	otherID := createTestClient(s.GetContext(), s.T(), s.params, "John Roe", "john@example.com")
	source := s.mustPost(types.TrustTransactionTypeDeposit, "case-1", "1000")

	resp, err := s.service.ProcessTrustTransaction(s.GetContext(), dto.TrustTransactionRequest{
		ClientID:    s.clientID,
		CaseID:      "case-1",
		Type:        types.TrustTransactionTypeTransfer,
		Amount:      dec("250"),
		Description: "Settlement share",
		ApprovedBy:  "partner@firm.test",
		TransferTo:  &dto.TransferDestination{ClientID: otherID, CaseID: "case-2"},
	})
	s.Require().NoError(err)

	s.Equal(source.Account.ID, resp.Account.ID)
	assertDecimal(s.T(), "750", resp.Account.CurrentBalance)
	s.Require().NotNil(resp.CounterpartyAccount)
	assertDecimal(s.T(), "250", resp.CounterpartyAccount.CurrentBalance)

	s.Equal(types.TrustEntryDirectionDebit, resp.Transaction.Direction)
	s.Require().NotNil(resp.CounterpartyEntry)
	s.Equal(types.TrustEntryDirectionCredit, resp.CounterpartyEntry.Direction)
	s.Require().NotNil(resp.Transaction.CounterpartyAccountID)
	s.Equal(resp.CounterpartyAccount.ID, *resp.Transaction.CounterpartyAccountID)

	for _, id := range []string{resp.Account.ID, resp.CounterpartyAccount.ID} {
		logs, err := s.GetStores().AuditLogRepo.ListByEntity(s.GetContext(), types.AuditEntityTrustAccount, id)
		s.NoError(err)
		s.NotEmpty(logs)
	}
}

func (s *TrustAccountServiceSuite) TestTransferBeyondAvailableChangesNothing() {
	otherID := createTestClient(s.GetContext(), s.T(), s.params, "John Roe", "john@example.com")
	source := s.mustPost(types.TrustTransactionTypeDeposit, "case-1", "100")

	_, err := s.service.ProcessTrustTransaction(s.GetContext(), dto.TrustTransactionRequest{
		ClientID:    s.clientID,
		CaseID:      "case-1",
		Type:        types.TrustTransactionTypeTransfer,
		Amount:      dec("250"),
		Description: "Settlement share",
		ApprovedBy:  "partner@firm.test",
		TransferTo:  &dto.TransferDestination{ClientID: otherID, CaseID: "case-2"},
	})
	s.True(ierr.IsInsufficientFunds(err))

	account, err := s.service.GetTrustAccount(s.GetContext(), source.Account.ID)
	s.NoError(err)
	assertDecimal(s.T(), "100", account.CurrentBalance)

	// the destination is only opened by a transfer that goes through
	_, err = s.GetStores().TrustAccountRepo.GetByClientCase(s.GetContext(), otherID, "case-2")
	s.True(ierr.IsNotFound(err))
	s.Len(s.GetStores().TrustAccountRepo.(*testutil.InMemoryTrustAccountStore).Transactions(), 1)
}

func (s *TrustAccountServiceSuite) TestTransferToSameAccountIsRejected() {
	s.mustPost(types.TrustTransactionTypeDeposit, "case-1", "100")

	_, err := s.service.ProcessTrustTransaction(s.GetContext(), dto.TrustTransactionRequest{
		ClientID:    s.clientID,
		CaseID:      "case-1",
		Type:        types.TrustTransactionTypeTransfer,
		Amount:      dec("50"),
		Description: "Loop",
		ApprovedBy:  "partner@firm.test",
		TransferTo:  &dto.TransferDestination{ClientID: s.clientID, CaseID: "case-1"},
	})
	s.True(ierr.IsValidation(err))
}

func (s *TrustAccountServiceSuite) TestLedgerReplayMatchesBalances() {
	s.mustPost(types.TrustTransactionTypeDeposit, "case-1", "1000")
	s.mustPost(types.TrustTransactionTypeHold, "case-1", "300")
	s.mustPost(types.TrustTransactionTypeWithdrawal, "case-1", "150.25")
	s.mustPost(types.TrustTransactionTypeRelease, "case-1", "100")
	last := s.mustPost(types.TrustTransactionTypeDeposit, "case-1", "49.75")

	filter := types.NewNoLimitTrustTransactionFilter()
	filter.TrustAccountID = last.Account.ID
	filter.Order = lo.ToPtr(types.OrderAsc)
	txns, err := s.GetStores().TrustAccountRepo.ListTransactions(s.GetContext(), filter)
	s.Require().NoError(err)
	s.Len(txns, 5)

	res, err := trustaccount.Replay(txns)
	s.NoError(err)
	assertDecimal(s.T(), "899.50", res.Balance)
	assertDecimal(s.T(), "200", res.Held)
	assertDecimal(s.T(), "899.50", last.Account.CurrentBalance)
	assertDecimal(s.T(), "699.50", last.Account.AvailableBalance)

	verified, err := s.service.VerifyTrustAccount(s.GetContext(), last.Account.ID)
	s.NoError(err)
	s.True(verified.Consistent)
	s.Equal(5, verified.Transactions)
	s.Empty(verified.Error)
	assertDecimal(s.T(), "899.50", verified.ReplayedBalance)
	assertDecimal(s.T(), "200", verified.ReplayedHeld)
}

func (s *TrustAccountServiceSuite) TestVerifyDetectsDrift() {
	resp := s.mustPost(types.TrustTransactionTypeDeposit, "case-1", "500")

	store := s.GetStores().TrustAccountRepo.(*testutil.InMemoryTrustAccountStore)
	s.Require().NoError(store.CorruptBalance(s.GetContext(), resp.Account.ID, func(a *trustaccount.TrustAccount) {
		a.CurrentBalance = dec("650")
		a.AvailableBalance = dec("650")
	}))

	verified, err := s.service.VerifyTrustAccount(s.GetContext(), resp.Account.ID)
	s.NoError(err)
	s.False(verified.Consistent)
	s.NotEmpty(verified.Error)
	assertDecimal(s.T(), "650", verified.CurrentBalance)
	assertDecimal(s.T(), "500", verified.ReplayedBalance)
}

func (s *TrustAccountServiceSuite) TestVerifyAllReportsOnlyDriftedAccounts() {
	healthy := s.mustPost(types.TrustTransactionTypeDeposit, "case-1", "300")
	drifted := s.mustPost(types.TrustTransactionTypeDeposit, "case-2", "500")

	store := s.GetStores().TrustAccountRepo.(*testutil.InMemoryTrustAccountStore)
	s.Require().NoError(store.CorruptBalance(s.GetContext(), drifted.Account.ID, func(a *trustaccount.TrustAccount) {
		a.CurrentBalance = dec("450")
		a.AvailableBalance = dec("450")
	}))

	sweep, err := s.service.VerifyAllTrustAccounts(s.GetContext())
	s.Require().NoError(err)
	s.Equal(2, sweep.Checked)
	s.Require().Len(sweep.Inconsistent, 1)
	s.Equal(drifted.Account.ID, sweep.Inconsistent[0].TrustAccountID)
	s.NotEqual(healthy.Account.ID, sweep.Inconsistent[0].TrustAccountID)
}

func (s *TrustAccountServiceSuite) TestConcurrentPostingsKeepLedgerConsistent() {
	service := NewTrustAccountService(withRetries(s.params, 100))
	opened := s.mustPost(types.TrustTransactionTypeDeposit, "case-1", "100")

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := service.ProcessTrustTransaction(s.GetContext(), dto.TrustTransactionRequest{
				ClientID:    s.clientID,
				CaseID:      "case-1",
				Type:        types.TrustTransactionTypeDeposit,
				Amount:      dec("10"),
				Description: "Deposit",
				ApprovedBy:  "partner@firm.test",
			})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := service.ProcessTrustTransaction(s.GetContext(), dto.TrustTransactionRequest{
				ClientID:    s.clientID,
				CaseID:      "case-1",
				Type:        types.TrustTransactionTypeWithdrawal,
				Amount:      dec("5"),
				Description: "Withdrawal",
				ApprovedBy:  "partner@firm.test",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}

	account, err := s.service.GetTrustAccount(s.GetContext(), opened.Account.ID)
	s.NoError(err)
	assertDecimal(s.T(), "140", account.CurrentBalance)

	verified, err := s.service.VerifyTrustAccount(s.GetContext(), opened.Account.ID)
	s.NoError(err)
	s.True(verified.Consistent, verified.Error)
	s.Equal(1+2*n, verified.Transactions)
}

func (s *TrustAccountServiceSuite) TestCloseTrustAccount() {
	resp := s.mustPost(types.TrustTransactionTypeDeposit, "case-1", "100")

	_, err := s.service.CloseTrustAccount(s.GetContext(), resp.Account.ID, dto.CloseTrustAccountRequest{ApprovedBy: "partner@firm.test"})
	s.True(ierr.IsInvalidOperation(err), "accounts holding funds stay open")

	s.mustPost(types.TrustTransactionTypeWithdrawal, "case-1", "100")
	closed, err := s.service.CloseTrustAccount(s.GetContext(), resp.Account.ID, dto.CloseTrustAccountRequest{ApprovedBy: "partner@firm.test"})
	s.NoError(err)
	s.Equal(types.TrustAccountStatusClosed, closed.AccountStatus)
	s.NotNil(closed.ClosedAt)

	_, err = s.post(types.TrustTransactionTypeDeposit, "case-1", "50")
	s.True(ierr.IsInvalidOperation(err))
}

func (s *TrustAccountServiceSuite) TestListTrustTransactions() {
	resp := s.mustPost(types.TrustTransactionTypeDeposit, "case-1", "100")
	s.mustPost(types.TrustTransactionTypeWithdrawal, "case-1", "40")

	filter := types.NewTrustTransactionFilter()
	filter.TrustAccountID = resp.Account.ID
	list, err := s.service.ListTrustTransactions(s.GetContext(), filter)
	s.NoError(err)
	s.Require().Len(list.Items, 2)
	s.Equal(2, list.Pagination.Total)
	// newest first
	s.Equal(types.TrustTransactionTypeWithdrawal, list.Items[0].Type)
	assertDecimal(s.T(), "60", list.Items[0].ResultingBalance)
}

func (s *TrustAccountServiceSuite) TestTrustAccountPayment() {
	s.mustPost(types.TrustTransactionTypeDeposit, "case-1", "500")
	processor := NewPaymentProcessorService(s.params)

	paid, err := processor.ProcessPayment(s.GetContext(), dto.ProcessPaymentRequest{
		ClientID:      s.clientID,
		Amount:        dec("200"),
		PaymentMethod: types.PaymentMethodTrustAccount,
		CaseID:        lo.ToPtr("case-1"),
		Purpose:       types.PaymentPurposeGeneral,
		ApprovedBy:    "partner@firm.test",
	})
	s.Require().NoError(err)
	s.Equal(types.PaymentStatusSucceeded, paid.PaymentStatus)
	s.NotNil(paid.ExternalTransactionID)

	account, err := s.GetStores().TrustAccountRepo.GetByClientCase(s.GetContext(), s.clientID, "case-1")
	s.NoError(err)
	assertDecimal(s.T(), "300", account.CurrentBalance)

	_, err = processor.ProcessPayment(s.GetContext(), dto.ProcessPaymentRequest{
		ClientID:      s.clientID,
		Amount:        dec("400"),
		PaymentMethod: types.PaymentMethodTrustAccount,
		CaseID:        lo.ToPtr("case-1"),
		Purpose:       types.PaymentPurposeGeneral,
		ApprovedBy:    "partner@firm.test",
	})
	s.True(ierr.IsInsufficientFunds(err))

	failed := s.GetNotifier().GetNotifications(types.NotificationTypePaymentFailed)
	s.Len(failed, 1)
	account, err = s.GetStores().TrustAccountRepo.GetByClientCase(s.GetContext(), s.clientID, "case-1")
	s.NoError(err)
	assertDecimal(s.T(), "300", account.CurrentBalance)
}
