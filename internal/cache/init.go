package cache

import (
	"context"

	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/types"
	"go.uber.org/fx"
)

// Module provides the configured cache backend
func Module() fx.Option {
	return fx.Provide(NewCache)
}

// NewCache builds the backend named by cfg.Cache.Backend. When Redis cannot be
// reached the process falls back to the in-memory cache.
func NewCache(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) Cache {
	log.Infow("initializing cache", "backend", cfg.Cache.Backend)

	if cfg.Cache.Backend != types.CacheBackendRedis {
		return NewInMemoryCache(cfg.Cache)
	}

	client, err := NewRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		log.Errorw("redis unavailable, falling back to in-memory cache",
			"address", cfg.Redis.Address,
			"error", err,
		)
		return NewInMemoryCache(cfg.Cache)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return NewRedisCache(client, cfg.Redis.KeyPrefix, cfg.Cache.DefaultTTL, log)
}
