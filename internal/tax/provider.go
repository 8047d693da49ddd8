package tax

import (
	"context"

	"github.com/casebill/casebill/internal/cache"
	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/domain/client"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// RateProvider returns the sales tax rate that applies to a client's invoices
type RateProvider interface {
	RateFor(ctx context.Context, clientID string) (decimal.Decimal, error)
}

type jurisdictionRateProvider struct {
	clientRepo client.Repository
	cache      cache.Cache
	cfg        config.BillingConfig
	logger     *logger.Logger
	group      singleflight.Group
}

// NewRateProvider resolves rates from the client's jurisdiction using the
// configured rate table. Results are cached per client and concurrent misses
// for the same client share one lookup.
func NewRateProvider(clientRepo client.Repository, c cache.Cache, cfg *config.Configuration, logger *logger.Logger) RateProvider {
	return &jurisdictionRateProvider{
		clientRepo: clientRepo,
		cache:      c,
		cfg:        cfg.Billing,
		logger:     logger,
	}
}

func (p *jurisdictionRateProvider) RateFor(ctx context.Context, clientID string) (decimal.Decimal, error) {
	if clientID == "" {
		return decimal.Zero, ierr.NewError("client id is required").
			WithHint("Client id is required to look up a tax rate").
			Mark(ierr.ErrValidation)
	}

	key := cache.GenerateKey(cache.PrefixTaxRate, types.GetTenantID(ctx), clientID)
	if cached, ok := p.cache.Get(ctx, key); ok {
		if rate, err := decimal.NewFromString(cached); err == nil {
			return rate, nil
		}
		p.cache.Delete(ctx, key)
	}

	v, err, shared := p.group.Do(key, func() (interface{}, error) {
		c, err := p.clientRepo.Get(ctx, clientID)
		if err != nil {
			return nil, err
		}
		rate := p.cfg.TaxRateFor(c.Jurisdiction)
		p.cache.Set(ctx, key, rate.String(), p.cfg.TaxRateCacheTTL)
		return rate, nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	rate := v.(decimal.Decimal)
	p.logger.Debugw("resolved tax rate",
		"client_id", clientID,
		"rate", rate.String(),
		"shared", shared,
	)
	return rate, nil
}

// Invalidate drops the cached rate of a client, used when its jurisdiction changes
func Invalidate(ctx context.Context, c cache.Cache, clientID string) {
	c.Delete(ctx, cache.GenerateKey(cache.PrefixTaxRate, types.GetTenantID(ctx), clientID))
}
