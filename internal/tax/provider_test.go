package tax

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/casebill/casebill/internal/cache"
	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/domain/client"
	ierr "github.com/casebill/casebill/internal/errors"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingClientRepo struct {
	client.Repository
	clients map[string]*client.Client
	gets    atomic.Int32
}

func (r *countingClientRepo) Get(_ context.Context, id string) (*client.Client, error) {
	r.gets.Add(1)
	c, ok := r.clients[id]
	if !ok {
		return nil, ierr.NewError("client not found").Mark(ierr.ErrNotFound)
	}
	return c, nil
}

func newProvider(t *testing.T) (*countingClientRepo, RateProvider, cache.Cache) {
	t.Helper()
	repo := &countingClientRepo{clients: map[string]*client.Client{
		"client_ny": {ID: "client_ny", Name: "Acme", Jurisdiction: "NY"},
		"client_tx": {ID: "client_tx", Name: "Lone Star", Jurisdiction: "tx"},
	}}
	cfg := config.GetDefaultConfig()
	cfg.Billing.JurisdictionTaxRates = map[string]float64{"ny": 0.08875}
	c := cache.NewInMemoryCache(cfg.Cache)
	return repo, NewRateProvider(repo, c, cfg, logger.NewNoopLogger()), c
}

func TestRateForJurisdiction(t *testing.T) {
	_, provider, _ := newProvider(t)
	ctx := types.SetTenantID(context.Background(), "tenant_1")

	rate, err := provider.RateFor(ctx, "client_ny")
	require.NoError(t, err)
	assert.Equal(t, "0.08875", rate.String())

	rate, err = provider.RateFor(ctx, "client_tx")
	require.NoError(t, err)
	assert.Equal(t, "0.0475", rate.String())
}

func TestRateForCachesPerClient(t *testing.T) {
	repo, provider, c := newProvider(t)
	ctx := types.SetTenantID(context.Background(), "tenant_1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := provider.RateFor(ctx, "client_ny")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	first := repo.gets.Load()
	assert.GreaterOrEqual(t, first, int32(1))

	_, err := provider.RateFor(ctx, "client_ny")
	require.NoError(t, err)
	assert.Equal(t, first, repo.gets.Load())

	Invalidate(ctx, c, "client_ny")
	_, err = provider.RateFor(ctx, "client_ny")
	require.NoError(t, err)
	assert.Equal(t, first+1, repo.gets.Load())
}

func TestRateForErrors(t *testing.T) {
	_, provider, _ := newProvider(t)
	ctx := context.Background()

	_, err := provider.RateFor(ctx, "")
	assert.True(t, ierr.IsValidation(err))

	_, err = provider.RateFor(ctx, "client_missing")
	assert.True(t, ierr.IsNotFound(err))
}
