package api

import (
	"github.com/casebill/casebill/internal/api/cron"
	v1 "github.com/casebill/casebill/internal/api/v1"
	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/rest/middleware"
	"github.com/casebill/casebill/internal/sentry"
	"github.com/casebill/casebill/internal/types"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health       *v1.HealthHandler
	Client       *v1.ClientHandler
	Invoice      *v1.InvoiceHandler
	Payment      *v1.PaymentHandler
	PaymentPlan  *v1.PaymentPlanHandler
	TrustAccount *v1.TrustAccountHandler
	Webhook      *v1.WebhookHandler
	CronBilling  *cron.BillingHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger, sentrySvc *sentry.Service) *gin.Engine {
	if cfg.Deployment.Mode != types.ModeLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.SentryMiddleware(cfg),
		middleware.RequestIDMiddleware,
		middleware.SecureHeadersMiddleware(cfg),
		middleware.CORSMiddleware(cfg),
		middleware.ErrorHandler(logger, sentrySvc),
	)

	router.GET("/health", handlers.Health.Health)

	// stripe signs webhooks, they skip api key auth
	router.POST("/v1/webhooks/stripe", handlers.Webhook.HandleStripeWebhook)

	cronGroup := router.Group("/v1/cron", middleware.CronAuthMiddleware(cfg, logger))
	{
		cronGroup.POST("/invoices/mark-overdue", handlers.CronBilling.MarkOverdueInvoices)
		cronGroup.POST("/payment-plans/mark-late", handlers.CronBilling.MarkLateInstallments)
		cronGroup.POST("/trust-accounts/verify", handlers.CronBilling.VerifyTrustAccounts)
	}

	v1Private := router.Group("/v1", middleware.AuthenticateMiddleware(cfg, logger))

	clients := v1Private.Group("/clients")
	{
		clients.POST("", handlers.Client.CreateClient)
		clients.GET("", handlers.Client.ListClients)
		clients.GET("/:id", handlers.Client.GetClient)
		clients.PUT("/:id", handlers.Client.UpdateClient)
		clients.GET("/:id/billing-summary", handlers.Client.GetBillingSummary)
	}

	v1Private.GET("/reports/financial", handlers.Client.GetFinancialReport)

	invoices := v1Private.Group("/invoices")
	{
		invoices.POST("", handlers.Invoice.CreateInvoice)
		invoices.GET("", handlers.Invoice.ListInvoices)
		invoices.GET("/:id", handlers.Invoice.GetInvoice)
		invoices.POST("/:id/send", handlers.Invoice.SendInvoice)
		invoices.POST("/:id/payments", handlers.Invoice.ApplyPayment)
		invoices.POST("/:id/viewed", handlers.Invoice.MarkViewed)
		invoices.POST("/:id/cancel", handlers.Invoice.CancelInvoice)
	}

	payments := v1Private.Group("/payments")
	{
		payments.POST("", handlers.Payment.ProcessPayment)
		payments.GET("", handlers.Payment.ListPayments)
		payments.GET("/:id", handlers.Payment.GetPayment)
		payments.POST("/:id/confirm", handlers.Payment.ConfirmPayment)
		payments.POST("/:id/refund", handlers.Payment.RefundPayment)
	}

	plans := v1Private.Group("/payment-plans")
	{
		plans.POST("", handlers.PaymentPlan.CreatePaymentPlan)
		plans.GET("", handlers.PaymentPlan.ListPaymentPlans)
		plans.GET("/:id", handlers.PaymentPlan.GetPaymentPlan)
		plans.POST("/:id/cancel", handlers.PaymentPlan.CancelPaymentPlan)
		plans.POST("/:id/waive", handlers.PaymentPlan.WaiveInstallment)
	}

	trust := v1Private.Group("/trust-accounts")
	{
		trust.POST("/transactions", handlers.TrustAccount.ProcessTransaction)
		trust.GET("", handlers.TrustAccount.ListTrustAccounts)
		trust.GET("/:id", handlers.TrustAccount.GetTrustAccount)
		trust.GET("/:id/transactions", handlers.TrustAccount.ListTransactions)
		trust.GET("/:id/verify", handlers.TrustAccount.VerifyTrustAccount)
		trust.POST("/:id/close", handlers.TrustAccount.CloseTrustAccount)
	}

	return router
}
