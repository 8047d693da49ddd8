package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/casebill/casebill/internal/api"
	"github.com/casebill/casebill/internal/api/cron"
	v1 "github.com/casebill/casebill/internal/api/v1"
	"github.com/casebill/casebill/internal/cache"
	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/document"
	"github.com/casebill/casebill/internal/gateway"
	"github.com/casebill/casebill/internal/integration/stripe"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/notification"
	"github.com/casebill/casebill/internal/postgres"
	pubsubRouter "github.com/casebill/casebill/internal/pubsub/router"
	"github.com/casebill/casebill/internal/repository"
	"github.com/casebill/casebill/internal/s3"
	"github.com/casebill/casebill/internal/sentry"
	"github.com/casebill/casebill/internal/service"
	"github.com/casebill/casebill/internal/tax"
	"github.com/casebill/casebill/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// @title Casebill API
// @version 1.0
// @description Billing ledger for law firm invoices, payments, payment plans and trust accounts
// @BasePath /v1
// @schemes http https
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name x-api-key

func init() {
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	opts = append(opts,
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
		),
		sentry.Module(),
		postgres.Module(),
		cache.Module(),
		repository.Module(),
		notification.Module,
		fx.Provide(
			tax.NewRateProvider,
			stripe.NewGateway,
			gateway.WebhookParserFor,
			document.NewRenderer,
			s3.NewService,
		),
	)

	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,

			service.NewClientService,
			service.NewInvoiceService,
			service.NewPaymentProcessorService,
			service.NewPaymentPlanService,
			service.NewTrustAccountService,
			service.NewBillingSummaryService,
		),
	)

	opts = append(opts,
		fx.Provide(
			provideHandlers,
			api.NewRouter,
		),
		fx.Invoke(startServer),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideHandlers(
	logger *logger.Logger,
	parser gateway.WebhookParser,
	clientService service.ClientService,
	invoiceService service.InvoiceService,
	paymentService service.PaymentProcessorService,
	planService service.PaymentPlanService,
	trustService service.TrustAccountService,
	summaryService service.BillingSummaryService,
) api.Handlers {
	return api.Handlers{
		Health:       v1.NewHealthHandler(),
		Client:       v1.NewClientHandler(clientService, summaryService),
		Invoice:      v1.NewInvoiceHandler(invoiceService),
		Payment:      v1.NewPaymentHandler(paymentService),
		PaymentPlan:  v1.NewPaymentPlanHandler(planService),
		TrustAccount: v1.NewTrustAccountHandler(trustService),
		Webhook:      v1.NewWebhookHandler(parser, paymentService, logger),
		CronBilling:  cron.NewBillingHandler(invoiceService, planService, trustService, logger),
	}
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	router *pubsubRouter.Router,
	notificationHandler notification.Handler,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, log)
		startMessageRouter(lc, router, notificationHandler, log)
	case types.ModeAPI:
		startAPIServer(lc, r, cfg, log)
	case types.ModeNotificationWorker:
		startMessageRouter(lc, router, notificationHandler, log)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return srv.Shutdown(ctx)
		},
	})
}

func startMessageRouter(
	lc fx.Lifecycle,
	router *pubsubRouter.Router,
	notificationHandler notification.Handler,
	logger *logger.Logger,
) {
	// handlers must be registered before the router runs
	notificationHandler.RegisterHandler(router)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting message router")
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Errorw("message router failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping message router")
			return router.Close()
		},
	})
}
