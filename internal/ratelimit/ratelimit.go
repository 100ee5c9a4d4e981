// Package ratelimit throttles admin mutations per client IP.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"jewelry-backend/internal/config"
	"jewelry-backend/internal/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const storePrefix = "jewelry:ratelimit"

// NewRedisClient connects to cfg.RedisAddr and pings it.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}

// NewLimiter builds a limiter for cfg.AdminRateLimit. A nil client keeps
// counters in process memory, which is only correct for a single instance.
func NewLimiter(cfg *config.Config, client *redis.Client) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.AdminRateLimit)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", cfg.AdminRateLimit, err)
	}

	var store limiter.Store
	if client == nil {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: storePrefix})
	} else {
		store, err = sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: storePrefix, MaxRetry: 3})
		if err != nil {
			return nil, fmt.Errorf("redis limiter store: %w", err)
		}
	}
	return limiter.New(store, rate), nil
}

// Middleware rejects requests over the limit with 429. A failing store lets
// the request through and logs, so a Redis outage does not block admins.
func Middleware(l *limiter.Limiter, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := l.Get(c.UserContext(), c.IP())
		if err != nil {
			log.Warn("rate limiter unavailable", "error", err.Error(), "path", c.Path())
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset, 10))

		if res.Reached {
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}
