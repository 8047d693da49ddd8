package cache

import (
	"context"
	"time"

	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/logger"
	"github.com/redis/go-redis/v9"
)

// RedisCache implements the Cache interface on a shared Redis so every API
// replica sees the same entries
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *logger.Logger
}

// NewRedisClient dials Redis and checks the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func NewRedisCache(client *redis.Client, keyPrefix string, ttl time.Duration, logger *logger.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	return &RedisCache{client: client, keyPrefix: keyPrefix, ttl: ttl, logger: logger}
}

func (c *RedisCache) key(k string) string {
	return c.keyPrefix + k
}

// Get retrieves a value from the cache. Redis errors count as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	span := startSpan(ctx, "redis", "get", key)
	defer finishSpan(span)

	value, err := c.client.Get(ctx, c.key(key)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Warnw("redis cache get failed", "key", key, "error", err)
		return "", false
	}
	return value, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value string, expiration time.Duration) {
	if expiration <= 0 {
		expiration = c.ttl
	}
	if err := c.client.Set(ctx, c.key(key), value, expiration).Err(); err != nil {
		c.logger.Warnw("redis cache set failed", "key", key, "error", err)
	}
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		c.logger.Warnw("redis cache delete failed", "key", key, "error", err)
	}
}

// DeleteByPrefix walks matching keys with SCAN so large keyspaces are not blocked
func (c *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) {
	iter := c.client.Scan(ctx, 0, c.key(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warnw("redis cache delete failed", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warnw("redis cache scan failed", "prefix", prefix, "error", err)
	}
}

// Flush removes every key under the configured key prefix
func (c *RedisCache) Flush(ctx context.Context) {
	c.DeleteByPrefix(ctx, "")
}
