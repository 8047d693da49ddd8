package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/casebill/casebill/internal/api/cron"
	"github.com/casebill/casebill/internal/api/dto"
	v1 "github.com/casebill/casebill/internal/api/v1"
	"github.com/casebill/casebill/internal/auth"
	"github.com/casebill/casebill/internal/config"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/gateway"
	"github.com/casebill/casebill/internal/service"
	"github.com/casebill/casebill/internal/testutil"
	"github.com/casebill/casebill/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
)

const (
	testAPIKey  = "test-api-key"
	testCronKey = "test-cron-key"
)

type RouterSuite struct {
	testutil.BaseServiceTestSuite
	router *gin.Engine
	parser *stubParser
}

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, new(RouterSuite))
}

type stubParser struct {
	event *gateway.Event
	err   error
}

func (p *stubParser) ParseWebhookEvent([]byte, string) (*gateway.Event, error) {
	return p.event, p.err
}

func (s *RouterSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	cfg := *s.GetConfig()
	cfg.Auth.APIKey.Keys = map[string]config.APIKeyDetails{
		auth.HashAPIKey(testAPIKey): {TenantID: types.DefaultTenantID, UserID: types.DefaultUserID, Name: "test", IsActive: true},
	}
	cfg.Cron.APIKey = testCronKey

	stores := s.GetStores()
	params := service.ServiceParams{
		Logger:           s.GetLogger(),
		Config:           &cfg,
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

	invoices := service.NewInvoiceService(params)
	payments := service.NewPaymentProcessorService(params)
	plans := service.NewPaymentPlanService(params)
	trust := service.NewTrustAccountService(params)
	s.parser = &stubParser{}

	s.router = NewRouter(Handlers{
		Health:       v1.NewHealthHandler(),
		Client:       v1.NewClientHandler(service.NewClientService(params), service.NewBillingSummaryService(params)),
		Invoice:      v1.NewInvoiceHandler(invoices),
		Payment:      v1.NewPaymentHandler(payments),
		PaymentPlan:  v1.NewPaymentPlanHandler(plans),
		TrustAccount: v1.NewTrustAccountHandler(trust),
		Webhook:      v1.NewWebhookHandler(s.parser, payments, s.GetLogger()),
		CronBilling:  cron.NewBillingHandler(invoices, plans, trust, s.GetLogger()),
	}, &cfg, s.GetLogger(), nil)
}

func (s *RouterSuite) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			s.Require().NoError(json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) authed(method, path string, body any) *httptest.ResponseRecorder {
	return s.do(method, path, body, map[string]string{"x-api-key": testAPIKey})
}

func (s *RouterSuite) errorCode(w *httptest.ResponseRecorder) string {
	var resp ierr.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.False(resp.Success)
	return resp.Error.Code
}

func (s *RouterSuite) TestHealthSetsRequestIDAndSecureHeaders() {
	w := s.do(http.MethodGet, "/health", nil, nil)
	s.Equal(http.StatusOK, w.Code)
	s.NotEmpty(w.Header().Get(types.HeaderRequestID))
	s.Equal("DENY", w.Header().Get("X-Frame-Options"))
	s.Equal("nosniff", w.Header().Get("X-Content-Type-Options"))

	w = s.do(http.MethodGet, "/health", nil, map[string]string{types.HeaderRequestID: "req-123"})
	s.Equal("req-123", w.Header().Get(types.HeaderRequestID))
}

func (s *RouterSuite) TestAPIKeyIsRequired() {
	w := s.do(http.MethodGet, "/v1/clients", nil, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/v1/clients", nil, map[string]string{"x-api-key": "wrong"})
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.authed(http.MethodGet, "/v1/clients", nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *RouterSuite) TestCreateAndGetClient() {
	w := s.authed(http.MethodPost, "/v1/clients", dto.CreateClientRequest{Name: "Jane Doe", Email: "jane@example.com"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var created map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &created))
	id, _ := created["id"].(string)
	s.Require().NotEmpty(id)

	w = s.authed(http.MethodGet, "/v1/clients/"+id, nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.authed(http.MethodGet, "/v1/clients/"+id+"/billing-summary", nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *RouterSuite) TestErrorsAreRenderedWithCodes() {
	w := s.authed(http.MethodGet, "/v1/clients/client_missing", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(ierr.ErrCodeNotFound, s.errorCode(w))

	w = s.authed(http.MethodPost, "/v1/clients", `{"name":`)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(ierr.ErrCodeValidation, s.errorCode(w))

	w = s.authed(http.MethodPost, "/v1/clients", dto.CreateClientRequest{Email: "not-an-email"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(ierr.ErrCodeValidation, s.errorCode(w))
}

func (s *RouterSuite) TestTrustOverdraftIsUnprocessable() {
	w := s.authed(http.MethodPost, "/v1/clients", dto.CreateClientRequest{Name: "Jane Doe", Email: "jane@example.com"})
	s.Require().Equal(http.StatusCreated, w.Code)
	var created map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &created))
	clientID := created["id"].(string)

	deposit := map[string]any{
		"client_id":   clientID,
		"case_id":     "case-1",
		"type":        types.TrustTransactionTypeDeposit,
		"amount":      "500",
		"description": "Retainer",
		"approved_by": "partner@firm.test",
	}
	w = s.authed(http.MethodPost, "/v1/trust-accounts/transactions", deposit)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	withdrawal := map[string]any{
		"client_id":   clientID,
		"case_id":     "case-1",
		"type":        types.TrustTransactionTypeWithdrawal,
		"amount":      "800",
		"description": "Settlement",
		"approved_by": "partner@firm.test",
	}
	w = s.authed(http.MethodPost, "/v1/trust-accounts/transactions", withdrawal)
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal(ierr.ErrCodeInsufficientFunds, s.errorCode(w))
}

func (s *RouterSuite) TestCronRequiresCronKey() {
	w := s.do(http.MethodPost, "/v1/cron/invoices/mark-overdue", nil, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	// an API key is not a cron key
	w = s.authed(http.MethodPost, "/v1/cron/invoices/mark-overdue", nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/v1/cron/invoices/mark-overdue", nil, map[string]string{"x-api-key": testCronKey})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var resp dto.SweepResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(0, resp.Updated)

	w = s.do(http.MethodPost, "/v1/cron/trust-accounts/verify", nil, map[string]string{"x-api-key": testCronKey})
	s.Equal(http.StatusOK, w.Code)
}

func (s *RouterSuite) TestStripeWebhook() {
	w := s.do(http.MethodPost, "/v1/webhooks/stripe", `{}`, nil)
	s.Equal(http.StatusBadRequest, w.Code, "signature header is required")

	s.parser.err = ierr.NewError("bad signature").Mark(ierr.ErrValidation)
	w = s.do(http.MethodPost, "/v1/webhooks/stripe", `{}`, map[string]string{"Stripe-Signature": "t=1,v1=bad"})
	s.Equal(http.StatusBadRequest, w.Code)

	s.parser.err = nil
	w = s.do(http.MethodPost, "/v1/webhooks/stripe", `{}`, map[string]string{"Stripe-Signature": "t=1,v1=ok"})
	s.Equal(http.StatusOK, w.Code, "uninteresting events are acknowledged")

	s.parser.event = &gateway.Event{ID: "evt_1", Type: gateway.EventPaymentSucceeded, ChargeID: "pi_unknown"}
	w = s.do(http.MethodPost, "/v1/webhooks/stripe", `{}`, map[string]string{"Stripe-Signature": "t=1,v1=ok"})
	s.Equal(http.StatusOK, w.Code, "charges we never made are ignored")
}
