package providers

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
)

const mockDeclineMessage = "Your card was declined."

type MockProcessor struct {
	name        string
	failureRate float64 // 0.0 to 1.0
	latency     time.Duration
	status      string // forced intent status, empty for the default behaviour
	calls       atomic.Int64

	mu      sync.Mutex
	intents map[string]IntentResult
}

type MockProcessorOption func(*MockProcessor)

func WithFailureRate(rate float64) MockProcessorOption {
	return func(p *MockProcessor) { p.failureRate = rate }
}

func WithLatency(d time.Duration) MockProcessorOption {
	return func(p *MockProcessor) { p.latency = d }
}

// WithStatus makes every confirmation end in the given intent status.
func WithStatus(status string) MockProcessorOption {
	return func(p *MockProcessor) { p.status = status }
}

func NewMockProcessor(name string, opts ...MockProcessorOption) *MockProcessor {
	p := &MockProcessor{
		name:    name,
		latency: 100 * time.Millisecond,
		intents: make(map[string]IntentResult),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockProcessor) Name() string { return p.name }

// Calls reports how many confirmations were requested.
func (p *MockProcessor) Calls() int64 { return p.calls.Load() }

// ConfirmPayment succeeds for synchronous methods and answers "processing"
// for asynchronous ones, unless a failure is simulated or a status is forced.
func (p *MockProcessor) ConfirmPayment(ctx context.Context, req ConfirmRequest) (*IntentResult, error) {
	p.calls.Add(1)

	select {
	case <-time.After(p.latency):
	case <-ctx.Done():
		return nil, domainErrors.Confirmation("confirmation timed out", domainErrors.ErrProcessorTimeout)
	}

	methodType := req.PaymentMethodType
	if methodType == "" {
		methodType = "card"
	}
	result := IntentResult{ID: req.IntentID, PaymentMethodType: methodType}

	switch {
	case rand.Float64() < p.failureRate:
		result.Status = checkout.IntentRequiresPaymentMethod
		result.ErrorCode = "card_declined"
		result.ErrorMessage = mockDeclineMessage
	case p.status != "":
		result.Status = p.status
	case checkout.IsAsyncPaymentMethod(methodType):
		result.Status = checkout.IntentProcessing
	default:
		result.Status = checkout.IntentSucceeded
	}

	p.mu.Lock()
	p.intents[req.IntentID] = result
	p.mu.Unlock()

	if result.ErrorMessage != "" {
		return &result, domainErrors.Confirmation(result.ErrorMessage, nil)
	}
	return &result, nil
}

func (p *MockProcessor) RetrieveIntent(ctx context.Context, intentID, clientSecret string) (*IntentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, domainErrors.Confirmation("retrieve intent", err)
	}

	p.mu.Lock()
	result, ok := p.intents[intentID]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: intent %q: %w", p.name, intentID, domainErrors.ErrNotFound)
	}
	return &result, nil
}
