package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/checkout"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	OutcomeStream = "checkout:outcomes"
	DLQStream     = "checkout:outcomes:dlq"
)

// outcomeStreamMaxLen caps the stream; the journal is the durable record.
const outcomeStreamMaxLen = 100_000

type outcomePayload struct {
	ID                string    `json:"id"`
	AttemptID         string    `json:"attempt_id"`
	ProductID         string    `json:"product_id"`
	AmountMinor       int64     `json:"amount_minor"`
	Currency          string    `json:"currency"`
	PaymentMethodType string    `json:"payment_method_type"`
	Outcome           string    `json:"outcome"`
	Reason            string    `json:"reason,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

type StreamProducer struct {
	client redis.Cmdable
}

func NewStreamProducer(client redis.Cmdable) *StreamProducer {
	return &StreamProducer{client: client}
}

// PublishOutcome appends a resolved attempt to the outcome stream.
func (p *StreamProducer) PublishOutcome(ctx context.Context, e *checkout.OutcomeEvent) error {
	payload, err := json.Marshal(outcomePayload{
		ID:                e.ID.String(),
		AttemptID:         e.AttemptID.String(),
		ProductID:         e.ProductID,
		AmountMinor:       e.AmountMinor,
		Currency:          e.Currency,
		PaymentMethodType: e.PaymentMethodType,
		Outcome:           string(e.Outcome),
		Reason:            e.Reason,
		OccurredAt:        e.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal outcome event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: OutcomeStream,
		MaxLen: outcomeStreamMaxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":   e.ID.String(),
			"attempt_id": e.AttemptID.String(),
			"outcome":    string(e.Outcome),
			"payload":    string(payload),
		},
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish outcome event: %w", err)
	}
	return nil
}

// PublishToDLQ parks a message the worker could not process.
func (p *StreamProducer) PublishToDLQ(ctx context.Context, msg redis.XMessage, reason string) error {
	values := map[string]any{
		"original_id": msg.ID,
		"reason":      reason,
		"timestamp":   time.Now().Unix(),
	}
	if payload, ok := msg.Values["payload"]; ok {
		values["payload"] = payload
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: DLQStream, Values: values}).Err(); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}
	return nil
}

// DecodeOutcomeEvent parses a stream message written by PublishOutcome.
func DecodeOutcomeEvent(msg redis.XMessage) (*checkout.OutcomeEvent, error) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, errors.New("message has no payload")
	}

	var p outcomePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode outcome payload: %w", err)
	}

	e := &checkout.OutcomeEvent{
		ProductID:         p.ProductID,
		AmountMinor:       p.AmountMinor,
		Currency:          p.Currency,
		PaymentMethodType: p.PaymentMethodType,
		Outcome:           checkout.Outcome(p.Outcome),
		Reason:            p.Reason,
		OccurredAt:        p.OccurredAt,
	}
	var err error
	if e.ID, err = parseUUID("id", p.ID); err != nil {
		return nil, err
	}
	if e.AttemptID, err = parseUUID("attempt_id", p.AttemptID); err != nil {
		return nil, err
	}
	return e, nil
}

type StreamConsumer struct {
	client        redis.Cmdable
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client redis.Cmdable,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) Stream() string { return c.stream }

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read returns new messages for this consumer, blocking up to blockDuration.
func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XMessage, error) {
	return c.read(ctx, ">", c.blockDuration)
}

// ReadPending returns messages delivered to this consumer but never acked,
// e.g. after a crash between processing and XACK.
func (c *StreamConsumer) ReadPending(ctx context.Context) ([]redis.XMessage, error) {
	return c.read(ctx, "0", -1)
}

func (c *StreamConsumer) read(ctx context.Context, id string, block time.Duration) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, id},
		Count:    c.batchSize,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var messages []redis.XMessage
	for _, s := range streams {
		messages = append(messages, s.Messages...)
	}
	return messages, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

func parseUUID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode outcome %s: %w", field, err)
	}
	return id, nil
}
