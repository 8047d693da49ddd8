package postgres

import (
	"context"
	"time"

	"github.com/casebill/casebill/internal/logger"
	sentryService "github.com/casebill/casebill/internal/sentry"
)

// SentryClient traces every transaction and logs the ones that roll back
type SentryClient struct {
	client IClient
	sentry *sentryService.Service
	logger *logger.Logger
}

func NewSentryClient(client IClient, sentry *sentryService.Service, logger *logger.Logger) IClient {
	return &SentryClient{
		client: client,
		sentry: sentry,
		logger: logger,
	}
}

func (c *SentryClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	span, spanCtx := c.sentry.StartDBSpan(ctx, "postgres.transaction", map[string]interface{}{
		"operation": "transaction",
	})
	if span != nil {
		defer span.Finish()
	}

	start := time.Now()
	err := c.client.WithTx(spanCtx, fn)
	if err != nil {
		c.logger.WithContext(ctx).Debugw("transaction rolled back",
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
	}
	return err
}
