package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/storefront/internal/infrastructure/redis"
	"github.com/cassiomorais/storefront/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App holds the process-wide dependencies. Redis is nil unless enabled and
// Pool is nil unless the process asked for the journal database.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics

	tracer *sdktrace.TracerProvider
}

// Option selects optional dependencies.
type Option func(*options)

type options struct {
	database bool
	validate func(*config.Config) error
}

// WithDatabase connects the outcome journal database.
func WithDatabase() Option {
	return func(o *options) { o.database = true }
}

// WithValidation runs extra, process-specific config checks.
func WithValidation(fn func(*config.Config) error) Option {
	return func(o *options) { o.validate = fn }
}

func New(ctx context.Context, serviceName string, metricsNamespace string, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.validate != nil {
		if err := o.validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout).
		With().Str("service", serviceName).Str("instance", cfg.InstanceID).Logger()
	logger.Info().Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	app.Metrics = observability.NewMetrics(metricsNamespace, nil)
	logger.Info().Msg("Metrics initialized")

	if cfg.Redis.Enabled {
		app.Redis, err = infraRedis.NewClient(ctx, &cfg.Redis, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Connected to Redis")
	}

	if o.database {
		app.Pool, err = postgres.NewPool(ctx, &cfg.Database, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info().Msg("Connected to PostgreSQL")
	}

	return app, nil
}

// Close releases connections and flushes pending spans.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.tracer != nil {
		if err := observability.Shutdown(context.Background(), a.tracer); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
}
