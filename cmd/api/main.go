package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/storefront/internal/bootstrap"
	"github.com/cassiomorais/storefront/internal/controller"
	"github.com/cassiomorais/storefront/internal/domain/checkout"
	"github.com/cassiomorais/storefront/internal/infrastructure/backend"
	infraRedis "github.com/cassiomorais/storefront/internal/infrastructure/redis"
	"github.com/cassiomorais/storefront/internal/providers"
	"github.com/cassiomorais/storefront/internal/repository/memory"
	"github.com/cassiomorais/storefront/internal/service"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
)

const janitorInterval = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "storefront-api", "storefront")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()
	cfg := app.Config

	// --- Collaborators ---
	backendClient, err := backend.NewClient(cfg.Backend,
		backend.WithMetrics(app.Metrics),
		backend.WithLogger(app.Logger),
	)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to create backend client")
	}

	processor, err := providers.NewFromConfig(cfg.Processor, nil)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to create payment processor")
	}
	processorFactory := providers.NewFactory([]providers.Processor{processor},
		providers.WithStateChangeHook(func(name string, from, to gobreaker.State) {
			app.Logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
			app.Metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}),
	)

	// --- Attempt storage ---
	g, gCtx := errgroup.WithContext(ctx)

	var repo checkout.Repository
	switch cfg.Session.Store {
	case "redis":
		repo = infraRedis.NewAttemptStore(app.Redis, cfg.Session.AttemptTTL, cfg.Session.LockTTL)
	default:
		memRepo := memory.NewAttemptRepository(cfg.Session.AttemptTTL)
		g.Go(func() error { return memRepo.RunJanitor(gCtx, janitorInterval) })
		repo = memRepo
	}
	app.Logger.Info().Str("store", cfg.Session.Store).Msg("Attempt store ready")

	var publisher service.OutcomePublisher
	if app.Redis != nil {
		publisher = infraRedis.NewStreamProducer(app.Redis)
	}

	// --- Services ---
	catalogSvc := service.NewCatalogService(backendClient, app.Logger)
	checkoutSvc := service.NewCheckoutService(repo, backendClient, processorFactory, publisher, app.Metrics, app.Logger,
		service.CheckoutConfig{
			Mode:               checkout.Mode(cfg.Checkout.Mode),
			PaymentMethodTypes: cfg.Checkout.PaymentMethodTypes,
			Processor:          processor.Name(),
			ReturnURL:          cfg.Processor.ReturnURL,
			ConfirmTimeout:     cfg.Checkout.ConfirmTimeout,
			AsyncGracePeriod:   cfg.Checkout.AsyncGracePeriod,
		},
	)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		RedisClient:         app.Redis,
		CatalogService:      catalogSvc,
		CheckoutService:     checkoutSvc,
		PublishableKey:      cfg.Processor.PublishableKey,
		Metrics:             app.Metrics,
		CORSConfig:          cfg.Server.CORS,
		SubmitRatePerMinute: cfg.Server.ConfirmRatePerMinute,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		app.Logger.Info().Str("addr", addr).Str("mode", cfg.Checkout.Mode).Str("processor", processor.Name()).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		app.Logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error().Err(err).Msg("Server forced to shutdown")
		}
		// Confirmations already sent to the processor still resolve and publish.
		if err := checkoutSvc.Wait(shutdownCtx); err != nil {
			app.Logger.Warn().Err(err).Msg("In-flight confirmations did not finish")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Server error")
	}
	app.Logger.Info().Msg("Server exited")
}
