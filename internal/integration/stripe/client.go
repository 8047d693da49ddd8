package stripe

import (
	"context"
	"time"

	"github.com/casebill/casebill/internal/config"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/gateway"
	"github.com/casebill/casebill/internal/logger"
	"github.com/stripe/stripe-go/v82"
	"golang.org/x/time/rate"
)

// Client charges cards through Stripe PaymentIntents
type Client struct {
	api           *stripe.Client
	limiter       *rate.Limiter
	webhookSecret string
	timeout       time.Duration
	logger        *logger.Logger
}

var _ gateway.Gateway = (*Client)(nil)

// NewClient creates a new Stripe client from the gateway config
func NewClient(cfg config.GatewayConfig, logger *logger.Logger) (*Client, error) {
	if cfg.StripeSecretKey == "" {
		return nil, ierr.NewError("stripe secret key is not configured").
			WithHint("Set gateway.stripe_secret_key to enable card payments").
			Mark(ierr.ErrValidation)
	}
	return newClient(stripe.NewClient(cfg.StripeSecretKey, nil), cfg, logger), nil
}

func newClient(api *stripe.Client, cfg config.GatewayConfig, logger *logger.Logger) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		api:           api,
		limiter:       rate.NewLimiter(limit, burst),
		webhookSecret: cfg.StripeWebhookKey,
		timeout:       cfg.Timeout,
		logger:        logger,
	}
}

// NewGateway returns the Stripe client when configured, otherwise a gateway
// that rejects every card charge
func NewGateway(cfg *config.Configuration, logger *logger.Logger) (gateway.Gateway, error) {
	if cfg.Gateway.Provider != "stripe" {
		logger.Warnw("no payment gateway configured, card payments are disabled")
		return gateway.Unavailable{}, nil
	}
	return NewClient(cfg.Gateway, logger)
}

// wait applies the outbound rate limit and the call timeout
func (c *Client) wait(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			if err := c.limiter.Wait(ctx); err != nil {
				cancel()
				return nil, nil, err
			}
			return ctx, cancel, nil
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	return ctx, func() {}, nil
}
