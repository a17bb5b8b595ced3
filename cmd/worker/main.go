package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/storefront/internal/bootstrap"
	"github.com/cassiomorais/storefront/internal/controller"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	infraRedis "github.com/cassiomorais/storefront/internal/infrastructure/redis"
	"github.com/cassiomorais/storefront/internal/repository/postgres"
	"github.com/cassiomorais/storefront/internal/service"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "storefront-worker", "storefront_worker",
		bootstrap.WithDatabase(),
		bootstrap.WithValidation((*config.Config).ValidateWorker),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	journalSvc := service.NewJournalService(postgres.NewJournalRepository(app.Pool), app.Logger)

	workerCfg := app.Config.Worker
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.OutcomeStream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to create consumer group")
	}

	processor := &outcomeProcessor{
		consumer: consumer,
		producer: infraRedis.NewStreamProducer(app.Redis),
		journal:  journalSvc,
		metrics:  app.Metrics,
		logger:   app.Logger,
	}

	opsAddr := fmt.Sprintf(":%d", workerCfg.OpsPort)
	opsSrv := &http.Server{
		Addr:         opsAddr,
		Handler:      controller.NewOpsRouter(app.Pool, app.Redis),
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
	}

	app.Logger.Info().
		Str("stream", infraRedis.OutcomeStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started, listening for outcomes...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return processor.Run(gCtx)
	})

	g.Go(func() error {
		app.Logger.Info().Str("addr", opsAddr).Msg("Starting ops server")
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		app.Logger.Info().Msg("Shutting down worker...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := opsSrv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error().Err(err).Msg("Ops server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
