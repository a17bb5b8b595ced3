package main

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/storefront/internal/infrastructure/redis"
	"github.com/cassiomorais/storefront/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const readErrorBackoff = time.Second

// outcomeProcessor moves outcome stream messages into the journal.
type outcomeProcessor struct {
	consumer *infraRedis.StreamConsumer
	producer *infraRedis.StreamProducer
	journal  *service.JournalService
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// Run consumes until ctx is done. Messages left unacked by a failed journal
// write are re-read from the pending list before the next batch.
func (p *outcomeProcessor) Run(ctx context.Context) error {
	retryPending := true
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var (
			msgs []redis.XMessage
			err  error
		)
		if retryPending {
			msgs, err = p.consumer.ReadPending(ctx)
		} else {
			msgs, err = p.consumer.Read(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error().Err(err).Str("stream", p.consumer.Stream()).Msg("Failed to read from stream")
			if !sleepCtx(ctx, readErrorBackoff) {
				return nil
			}
			continue
		}

		retryPending = false
		for _, msg := range msgs {
			if !p.handle(ctx, msg) {
				retryPending = true
			}
		}
		if retryPending && !sleepCtx(ctx, readErrorBackoff) {
			return nil
		}
	}
}

// handle reports false when the message stays pending for a retry.
func (p *outcomeProcessor) handle(ctx context.Context, msg redis.XMessage) bool {
	stream := p.consumer.Stream()
	start := time.Now()
	defer func() {
		p.metrics.WorkerProcessingDuration.WithLabelValues(stream).Observe(time.Since(start).Seconds())
	}()

	event, err := infraRedis.DecodeOutcomeEvent(msg)
	if err != nil {
		return p.deadLetter(ctx, msg, err)
	}

	if err := p.journal.Record(ctx, event); err != nil {
		if errors.Is(err, domainErrors.ErrValidationFailed) {
			return p.deadLetter(ctx, msg, err)
		}
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to journal outcome, will retry")
		p.metrics.WorkerMessagesProcessed.WithLabelValues(stream, "error").Inc()
		return false
	}

	p.ack(ctx, msg.ID)
	p.metrics.WorkerMessagesProcessed.WithLabelValues(stream, "success").Inc()
	return true
}

// deadLetter acks the message only once the DLQ holds a copy; otherwise it
// stays pending and the caller retries it.
func (p *outcomeProcessor) deadLetter(ctx context.Context, msg redis.XMessage, cause error) bool {
	p.logger.Warn().Err(cause).Str("message_id", msg.ID).Msg("Moving outcome message to DLQ")
	if err := p.producer.PublishToDLQ(ctx, msg, cause.Error()); err != nil {
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to publish to DLQ, will retry")
		p.metrics.WorkerMessagesProcessed.WithLabelValues(p.consumer.Stream(), "error").Inc()
		return false
	}
	p.ack(ctx, msg.ID)
	p.metrics.WorkerMessagesProcessed.WithLabelValues(p.consumer.Stream(), "dlq").Inc()
	return true
}

func (p *outcomeProcessor) ack(ctx context.Context, id string) {
	if err := p.consumer.Ack(ctx, id); err != nil {
		p.logger.Error().Err(err).Str("message_id", id).Msg("Failed to ack message")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
