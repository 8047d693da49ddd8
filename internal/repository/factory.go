package repository

import (
	"github.com/casebill/casebill/internal/domain/auditlog"
	"github.com/casebill/casebill/internal/domain/client"
	"github.com/casebill/casebill/internal/domain/invoice"
	"github.com/casebill/casebill/internal/domain/payment"
	"github.com/casebill/casebill/internal/domain/paymentplan"
	"github.com/casebill/casebill/internal/domain/trustaccount"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/postgres"
	postgresRepo "github.com/casebill/casebill/internal/repository/postgres"
	"go.uber.org/fx"
)

// Module provides every billing repository backed by Postgres
func Module() fx.Option {
	return fx.Provide(
		NewClientRepository,
		NewInvoiceRepository,
		NewPaymentRepository,
		NewPaymentPlanRepository,
		NewTrustAccountRepository,
		NewAuditLogRepository,
	)
}

func NewClientRepository(db *postgres.DB, logger *logger.Logger) client.Repository {
	return postgresRepo.NewClientRepository(db, logger)
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return postgresRepo.NewInvoiceRepository(db, logger)
}

func NewPaymentRepository(db *postgres.DB, logger *logger.Logger) payment.Repository {
	return postgresRepo.NewPaymentRepository(db, logger)
}

func NewPaymentPlanRepository(db *postgres.DB, logger *logger.Logger) paymentplan.Repository {
	return postgresRepo.NewPaymentPlanRepository(db, logger)
}

func NewTrustAccountRepository(db *postgres.DB, logger *logger.Logger) trustaccount.Repository {
	return postgresRepo.NewTrustAccountRepository(db, logger)
}

func NewAuditLogRepository(db *postgres.DB, logger *logger.Logger) auditlog.Repository {
	return postgresRepo.NewAuditLogRepository(db, logger)
}
