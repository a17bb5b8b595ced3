package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/cassiomorais/storefront/pkg/retry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewClient creates a Redis client and waits until it answers PING, retrying
// with exponential backoff.
func NewClient(ctx context.Context, cfg *config.RedisConfig, logger zerolog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	policy := retry.Connect(cfg.ConnectRetries, cfg.ConnectRetryDelay)
	policy.OnRetry = func(n uint, err error) {
		logger.Warn().Err(err).Uint("attempt", n).Str("addr", cfg.RedisAddr()).Msg("Redis not ready, retrying")
	}

	if err := retry.Do(ctx, policy, func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", policy.MaxAttempts, err)
	}

	return client, nil
}
