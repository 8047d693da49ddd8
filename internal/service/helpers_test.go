package service

import (
	"context"
	"testing"

	"github.com/casebill/casebill/internal/api/dto"
	"github.com/casebill/casebill/internal/testutil"
	"github.com/casebill/casebill/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// newTestServiceParams wires the in-memory stores and fakes of the base suite
func newTestServiceParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	stores := s.GetStores()
	return ServiceParams{
		Logger:           s.GetLogger(),
		Config:           s.GetConfig(),
		DB:               s.GetDB(),
		Cache:            s.GetCache(),
		ClientRepo:       stores.ClientRepo,
		InvoiceRepo:      stores.InvoiceRepo,
		PaymentRepo:      stores.PaymentRepo,
		PaymentPlanRepo:  stores.PaymentPlanRepo,
		TrustAccountRepo: stores.TrustAccountRepo,
		AuditLogRepo:     stores.AuditLogRepo,
		TaxRates:         s.GetTaxRates(),
		Gateway:          s.GetGateway(),
		Notifier:         s.GetNotifier(),
		Renderer:         s.GetRenderer(),
		Documents:        s.GetDocuments(),
	}
}

// withRetries returns params whose retry budget tolerates heavy contention
func withRetries(params ServiceParams, maxRetries uint64) ServiceParams {
	cfg := *params.Config
	cfg.Retry.MaxRetries = maxRetries
	params.Config = &cfg
	return params
}

func createTestClient(ctx context.Context, t *testing.T, params ServiceParams, name, email string) string {
	resp, err := NewClientService(params).CreateClient(ctx, dto.CreateClientRequest{
		Name:  name,
		Email: email,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return resp.ID
}

// legalServices is a single billable line item worth hours x rate
func legalServices(hours, rate string) dto.LineItemRequest {
	return dto.LineItemRequest{
		Description: "Legal services",
		Category:    types.LineItemCategoryLegalServices,
		Quantity:    decimal.RequireFromString(hours),
		Rate:        decimal.RequireFromString(rate),
	}
}

func expenseItem(description, amount string) dto.LineItemRequest {
	a := decimal.RequireFromString(amount)
	return dto.LineItemRequest{
		Description: description,
		Category:    types.LineItemCategoryExpenses,
		Quantity:    decimal.NewFromInt(1),
		Rate:        a,
		Amount:      &a,
	}
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	want := decimal.RequireFromString(expected)
	assert.Truef(t, want.Equal(actual), "expected %s, got %s %v", want.String(), actual.String(), msgAndArgs)
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func strPtr(s string) *string {
	return &s
}
