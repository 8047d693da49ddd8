package testutil

import (
	"context"
	"time"

	"github.com/casebill/casebill/internal/cache"
	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/document"
	"github.com/casebill/casebill/internal/domain/auditlog"
	"github.com/casebill/casebill/internal/domain/client"
	"github.com/casebill/casebill/internal/domain/invoice"
	"github.com/casebill/casebill/internal/domain/payment"
	"github.com/casebill/casebill/internal/domain/paymentplan"
	"github.com/casebill/casebill/internal/domain/trustaccount"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/tax"
	"github.com/casebill/casebill/internal/types"
	"github.com/casebill/casebill/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	ClientRepo       client.Repository
	InvoiceRepo      invoice.Repository
	PaymentRepo      payment.Repository
	PaymentPlanRepo  paymentplan.Repository
	TrustAccountRepo trustaccount.Repository
	AuditLogRepo     auditlog.Repository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	stores    Stores
	db        *MockPostgresClient
	logger    *logger.Logger
	config    *config.Configuration
	cache     cache.Cache
	taxRates  tax.RateProvider
	gateway   *MockGateway
	notifier  *InMemoryNotifier
	renderer  document.Renderer
	documents *InMemoryDocumentStore
	now       time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	// Initialize validator
	validator.NewValidator()

	s.config = config.GetDefaultConfig()
	s.config.Billing.FirmName = "Test Firm LLP"
	s.logger = logger.NewNoopLogger()

	renderer, err := document.NewRenderer()
	if err != nil {
		s.T().Fatalf("failed to create document renderer: %v", err)
	}
	s.renderer = renderer
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.setupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupContext() {
	s.ctx = TenantContext(types.DefaultTenantID)
}

func (s *BaseServiceTestSuite) setupStores() {
	auditLogs := NewInMemoryAuditLogStore()
	s.stores = Stores{
		ClientRepo:       NewInMemoryClientStore(),
		InvoiceRepo:      NewInMemoryInvoiceStore(),
		PaymentRepo:      NewInMemoryPaymentStore(),
		PaymentPlanRepo:  NewInMemoryPaymentPlanStore(),
		TrustAccountRepo: NewInMemoryTrustAccountStore(auditLogs),
		AuditLogRepo:     auditLogs,
	}

	s.db = NewMockPostgresClient(s.logger)
	s.cache = cache.NewInMemoryCache(s.config.Cache)
	s.taxRates = tax.NewRateProvider(s.stores.ClientRepo, s.cache, s.config, s.logger)
	s.gateway = NewMockGateway()
	s.notifier = NewInMemoryNotifier()
	s.documents = NewInMemoryDocumentStore()
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.ClientRepo.(*InMemoryClientStore).Clear()
	s.stores.InvoiceRepo.(*InMemoryInvoiceStore).Clear()
	s.stores.PaymentRepo.(*InMemoryPaymentStore).Clear()
	s.stores.PaymentPlanRepo.(*InMemoryPaymentPlanStore).Clear()
	s.stores.TrustAccountRepo.(*InMemoryTrustAccountStore).Clear()
	s.stores.AuditLogRepo.(*InMemoryAuditLogStore).Clear()
	s.notifier.Clear()
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() *MockPostgresClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

func (s *BaseServiceTestSuite) GetTaxRates() tax.RateProvider {
	return s.taxRates
}

// GetGateway returns the card gateway mock. Tests set expectations on it.
func (s *BaseServiceTestSuite) GetGateway() *MockGateway {
	return s.gateway
}

// GetNotifier returns the recorder of notifications and emails
func (s *BaseServiceTestSuite) GetNotifier() *InMemoryNotifier {
	return s.notifier
}

func (s *BaseServiceTestSuite) GetRenderer() document.Renderer {
	return s.renderer
}

func (s *BaseServiceTestSuite) GetDocuments() *InMemoryDocumentStore {
	return s.documents
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}
