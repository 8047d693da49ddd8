package service

import (
	"context"
	"sort"
	"time"

	"github.com/casebill/casebill/internal/api/dto"
	"github.com/casebill/casebill/internal/domain/invoice"
	"github.com/casebill/casebill/internal/domain/payment"
	"github.com/casebill/casebill/internal/domain/paymentplan"
	"github.com/casebill/casebill/internal/domain/trustaccount"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
)

const (
	recentPaymentsWindow = 90 * 24 * time.Hour
	recentPaymentsLimit  = 10
	upcomingLimit        = 5
)

// BillingSummaryService builds read-only views over invoices, payments,
// payment plans and trust accounts
type BillingSummaryService interface {
	GetClientBillingSummary(ctx context.Context, clientID string) (*dto.ClientBillingSummaryResponse, error)
	GenerateFinancialReport(ctx context.Context, req dto.FinancialReportRequest) (*dto.FinancialReportResponse, error)
}

type billingSummaryService struct {
	ServiceParams
}

func NewBillingSummaryService(params ServiceParams) BillingSummaryService {
	return &billingSummaryService{ServiceParams: params}
}

func (s *billingSummaryService) GetClientBillingSummary(ctx context.Context, clientID string) (*dto.ClientBillingSummaryResponse, error) {
	if _, err := s.ClientRepo.Get(ctx, clientID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var (
		invoices []*invoice.Invoice
		payments []*payment.Payment
		plans    []*paymentplan.PaymentPlan
		accounts []*trustaccount.TrustAccount
	)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		filter := types.NewNoLimitInvoiceFilter()
		filter.ClientID = clientID
		var err error
		invoices, err = s.InvoiceRepo.List(ctx, filter)
		return err
	})
	p.Go(func(ctx context.Context) error {
		filter := types.NewPaymentFilter()
		filter.ClientID = clientID
		filter.Limit = lo.ToPtr(recentPaymentsLimit)
		filter.TimeRangeFilter = &types.TimeRangeFilter{
			StartTime: lo.ToPtr(now.Add(-recentPaymentsWindow)),
			EndTime:   lo.ToPtr(now),
		}
		var err error
		payments, err = s.PaymentRepo.List(ctx, filter)
		return err
	})
	p.Go(func(ctx context.Context) error {
		filter := types.NewNoLimitPaymentPlanFilter()
		filter.ClientID = clientID
		filter.Status = []types.PaymentPlanStatus{types.PaymentPlanStatusActive}
		var err error
		plans, err = s.PaymentPlanRepo.List(ctx, filter)
		return err
	})
	p.Go(func(ctx context.Context) error {
		filter := types.NewNoLimitTrustAccountFilter()
		filter.ClientID = clientID
		var err error
		accounts, err = s.TrustAccountRepo.List(ctx, filter)
		return err
	})
	if err := p.Wait(); err != nil {
		s.Logger.Errorw("failed to load billing summary",
			"client_id", clientID,
			"error", err,
		)
		return nil, err
	}

	resp := &dto.ClientBillingSummaryResponse{
		ClientID:             clientID,
		TotalBilled:          decimal.Zero,
		TotalPaid:            decimal.Zero,
		Outstanding:          decimal.Zero,
		Overdue:              decimal.Zero,
		RecentPayments:       payments,
		ActivePaymentPlans:   plans,
		UpcomingInstallments: upcomingInstallments(plans, upcomingLimit),
		TrustAccounts:        accounts,
		TrustBalance:         decimal.Zero,
		TrustAvailable:       decimal.Zero,
		GeneratedAt:          now,
	}

	for _, inv := range invoices {
		if inv.InvoiceStatus == types.InvoiceStatusDraft || inv.InvoiceStatus == types.InvoiceStatusCancelled {
			continue
		}
		resp.TotalBilled = resp.TotalBilled.Add(inv.TotalAmount)
		resp.TotalPaid = resp.TotalPaid.Add(inv.PaidAmount)
		if !inv.InvoiceStatus.IsOpen() {
			continue
		}
		resp.OpenInvoices++
		resp.Outstanding = resp.Outstanding.Add(inv.BalanceDue)
		if inv.InvoiceStatus == types.InvoiceStatusOverdue || inv.IsOverdue(now) {
			resp.Overdue = resp.Overdue.Add(inv.BalanceDue)
		}
	}

	for _, a := range accounts {
		resp.TrustBalance = resp.TrustBalance.Add(a.CurrentBalance)
		resp.TrustAvailable = resp.TrustAvailable.Add(a.AvailableBalance)
	}

	return resp, nil
}

// upcomingInstallments returns the earliest payable installments across plans
func upcomingInstallments(plans []*paymentplan.PaymentPlan, limit int) []dto.UpcomingInstallment {
	upcoming := make([]dto.UpcomingInstallment, 0)
	for _, plan := range plans {
		for _, inst := range plan.Schedule {
			if !inst.Status.IsPayable() {
				continue
			}
			upcoming = append(upcoming, dto.UpcomingInstallment{
				PaymentPlanID:     plan.ID,
				CaseID:            plan.CaseID,
				InstallmentNumber: inst.InstallmentNumber,
				DueDate:           inst.DueDate,
				Amount:            inst.Amount,
				Status:            string(inst.Status),
			})
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].DueDate.Before(upcoming[j].DueDate)
	})
	if len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}
	return upcoming
}

func (s *billingSummaryService) GenerateFinancialReport(ctx context.Context, req dto.FinancialReportRequest) (*dto.FinancialReportResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.ClientRepo.Get(ctx, req.ClientID); err != nil {
		return nil, err
	}

	period := &types.TimeRangeFilter{
		StartTime: lo.ToPtr(req.StartDate),
		EndTime:   lo.ToPtr(req.EndDate),
	}

	var (
		invoices []*invoice.Invoice
		payments []*payment.Payment
		activity []*trustaccount.Transaction
	)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		// every invoice of the case, payments may settle invoices issued earlier
		filter := types.NewNoLimitInvoiceFilter()
		filter.ClientID = req.ClientID
		filter.CaseID = req.CaseID
		var err error
		invoices, err = s.InvoiceRepo.List(ctx, filter)
		return err
	})
	p.Go(func(ctx context.Context) error {
		filter := types.NewNoLimitPaymentFilter()
		filter.ClientID = req.ClientID
		filter.PaymentStatus = []types.PaymentStatus{types.PaymentStatusSucceeded}
		filter.TimeRangeFilter = period
		var err error
		payments, err = s.PaymentRepo.List(ctx, filter)
		return err
	})
	if req.IncludeDetails && req.CaseID != "" {
		p.Go(func(ctx context.Context) error {
			var err error
			activity, err = s.trustActivity(ctx, req.ClientID, req.CaseID, period)
			return err
		})
	}
	if err := p.Wait(); err != nil {
		s.Logger.Errorw("failed to load financial report",
			"client_id", req.ClientID,
			"case_id", req.CaseID,
			"error", err,
		)
		return nil, err
	}

	if req.CaseID != "" {
		caseInvoices := lo.SliceToMap(invoices, func(inv *invoice.Invoice) (string, struct{}) {
			return inv.ID, struct{}{}
		})
		payments = lo.Filter(payments, func(pay *payment.Payment, _ int) bool {
			if lo.FromPtr(pay.CaseID) == req.CaseID {
				return true
			}
			_, ok := caseInvoices[lo.FromPtr(pay.InvoiceID)]
			return ok
		})
	}
	invoices = lo.Filter(invoices, func(inv *invoice.Invoice, _ int) bool {
		if inv.InvoiceStatus == types.InvoiceStatusDraft || inv.InvoiceStatus == types.InvoiceStatusCancelled {
			return false
		}
		return period.Contains(inv.IssuedDate)
	})

	resp := &dto.FinancialReportResponse{
		ClientID:      req.ClientID,
		CaseID:        req.CaseID,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		TotalBilled:   decimal.Zero,
		TotalPaid:     decimal.Zero,
		TotalExpenses: decimal.Zero,
		InvoiceCount:  len(invoices),
		PaymentCount:  len(payments),
		GeneratedAt:   time.Now().UTC(),
	}
	for _, inv := range invoices {
		resp.TotalBilled = resp.TotalBilled.Add(inv.TotalAmount)
		resp.TotalExpenses = resp.TotalExpenses.Add(inv.ExpenseTotal())
	}
	for _, pay := range payments {
		resp.TotalPaid = resp.TotalPaid.Add(pay.Amount)
	}
	resp.NetIncome = resp.TotalBilled.Sub(resp.TotalExpenses)

	if req.IncludeDetails {
		resp.Invoices = invoices
		resp.Payments = payments
		resp.TrustActivity = activity
	}
	return resp, nil
}

func (s *billingSummaryService) trustActivity(ctx context.Context, clientID, caseID string, period *types.TimeRangeFilter) ([]*trustaccount.Transaction, error) {
	accounts, err := s.TrustAccountRepo.List(ctx, &types.TrustAccountFilter{
		QueryFilter: types.NewNoLimitQueryFilter(),
		ClientID:    clientID,
		CaseID:      caseID,
	})
	if err != nil || len(accounts) == 0 {
		return nil, err
	}

	filter := types.NewNoLimitTrustTransactionFilter()
	filter.TrustAccountID = accounts[0].ID
	filter.TimeRangeFilter = period
	filter.Order = lo.ToPtr(types.OrderAsc)
	return s.TrustAccountRepo.ListTransactions(ctx, filter)
}
