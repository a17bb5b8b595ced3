// Package retry wraps retry-go for startup dependencies (Redis, Postgres).
// Checkout calls to the backend and processor are never retried.
package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// OnRetry is called after every failed attempt.
	OnRetry func(attempt uint, err error)
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Connect returns the configuration used for dependency connects. Zero values
// fall back to DefaultConfig.
func Connect(attempts uint, delay time.Duration) Config {
	cfg := DefaultConfig()
	if attempts > 0 {
		cfg.MaxAttempts = attempts
	}
	if delay > 0 {
		cfg.InitialDelay = delay
	}
	return cfg
}

// Do executes a function with exponential backoff retry
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if cfg.OnRetry != nil {
				cfg.OnRetry(n+1, err)
			}
		}),
	)
}

// DoWithResult executes a function with exponential backoff retry and returns a result
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
