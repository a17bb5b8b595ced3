package providers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/sony/gobreaker/v2"
)

type Factory struct {
	processors      map[string]Processor
	circuitBreakers map[string]*gobreaker.CircuitBreaker[*IntentResult]
	onStateChange   func(name string, from, to gobreaker.State)
}

type FactoryOption func(*Factory)

// WithStateChangeHook is called whenever a processor breaker changes state.
func WithStateChangeHook(fn func(name string, from, to gobreaker.State)) FactoryOption {
	return func(f *Factory) { f.onStateChange = fn }
}

func NewFactory(processorsList []Processor, opts ...FactoryOption) *Factory {
	f := &Factory{
		processors:      make(map[string]Processor),
		circuitBreakers: make(map[string]*gobreaker.CircuitBreaker[*IntentResult]),
	}
	for _, o := range opts {
		o(f)
	}

	if len(processorsList) == 0 {
		f.Register(NewMockProcessor("mock", WithLatency(200*time.Millisecond)))
	}
	for _, p := range processorsList {
		f.Register(p)
	}

	return f
}

// NewFromConfig builds the processor selected by cfg.Name.
func NewFromConfig(cfg config.ProcessorConfig, hc *http.Client) (Processor, error) {
	switch cfg.Name {
	case "http":
		return NewHTTPProcessor(cfg, hc)
	case "mock", "":
		return NewMockProcessor("mock",
			WithLatency(cfg.MockLatency),
			WithFailureRate(cfg.MockFailureRate),
		), nil
	default:
		return nil, fmt.Errorf("unknown processor %q: %w", cfg.Name, domainErrors.ErrProcessorNotFound)
	}
}

func (f *Factory) Register(p Processor) {
	f.processors[p.Name()] = p
	f.circuitBreakers[p.Name()] = gobreaker.NewCircuitBreaker[*IntentResult](gobreaker.Settings{
		Name:        "processor_" + p.Name(),
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		// A decline is an answer from a healthy processor.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				!(errors.Is(err, domainErrors.ErrProcessorUnavailable) || errors.Is(err, domainErrors.ErrProcessorTimeout))
		},
		OnStateChange: f.onStateChange,
	})
}

func (f *Factory) Get(name string) (Processor, *gobreaker.CircuitBreaker[*IntentResult], error) {
	p, ok := f.processors[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown processor %q: %w", name, domainErrors.ErrProcessorNotFound)
	}
	return p, f.circuitBreakers[name], nil
}
