package service

import (
	"github.com/casebill/casebill/internal/cache"
	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/document"
	"github.com/casebill/casebill/internal/domain/auditlog"
	"github.com/casebill/casebill/internal/domain/client"
	"github.com/casebill/casebill/internal/domain/invoice"
	"github.com/casebill/casebill/internal/domain/payment"
	"github.com/casebill/casebill/internal/domain/paymentplan"
	"github.com/casebill/casebill/internal/domain/trustaccount"
	"github.com/casebill/casebill/internal/gateway"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/notification"
	"github.com/casebill/casebill/internal/postgres"
	"github.com/casebill/casebill/internal/s3"
	"github.com/casebill/casebill/internal/sentry"
	"github.com/casebill/casebill/internal/tax"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	Sentry *sentry.Service
	Cache  cache.Cache

	// Repositories
	ClientRepo       client.Repository
	InvoiceRepo      invoice.Repository
	PaymentRepo      payment.Repository
	PaymentPlanRepo  paymentplan.Repository
	TrustAccountRepo trustaccount.Repository
	AuditLogRepo     auditlog.Repository

	TaxRates  tax.RateProvider
	Gateway   gateway.Gateway
	Notifier  notification.Publisher
	Renderer  document.Renderer
	Documents s3.Service // nil when document storage is disabled
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	sentry *sentry.Service,
	c cache.Cache,
	clientRepo client.Repository,
	invoiceRepo invoice.Repository,
	paymentRepo payment.Repository,
	paymentPlanRepo paymentplan.Repository,
	trustAccountRepo trustaccount.Repository,
	auditLogRepo auditlog.Repository,
	taxRates tax.RateProvider,
	gw gateway.Gateway,
	notifier notification.Publisher,
	renderer document.Renderer,
	documents s3.Service,
) ServiceParams {
	return ServiceParams{
		Logger:           logger,
		Config:           config,
		DB:               db,
		Sentry:           sentry,
		Cache:            c,
		ClientRepo:       clientRepo,
		InvoiceRepo:      invoiceRepo,
		PaymentRepo:      paymentRepo,
		PaymentPlanRepo:  paymentPlanRepo,
		TrustAccountRepo: trustAccountRepo,
		AuditLogRepo:     auditLogRepo,
		TaxRates:         taxRates,
		Gateway:          gw,
		Notifier:         notifier,
		Renderer:         renderer,
		Documents:        documents,
	}
}
