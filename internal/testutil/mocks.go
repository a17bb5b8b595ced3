package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cassiomorais/storefront/internal/domain/catalog"
	"github.com/cassiomorais/storefront/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/infrastructure/backend"
	"github.com/cassiomorais/storefront/internal/providers"
)

// --- Backend Mock ---

// MockBackend is a mock of the storefront backend API. Without function
// fields it serves the products it was given and mints intents in order.
type MockBackend struct {
	mu       sync.Mutex
	products map[string]*catalog.Product
	order    []string

	IntentRequests   []backend.IntentRequest
	CustomerRequests []checkout.CustomerRecord
	ProductLookups   int

	ListProductsFunc        func(ctx context.Context) ([]*catalog.Product, error)
	GetProductFunc          func(ctx context.Context, id string) (*catalog.Product, error)
	CreateCustomerFunc      func(ctx context.Context, rec checkout.CustomerRecord) (string, error)
	CreatePaymentIntentFunc func(ctx context.Context, req backend.IntentRequest) (*checkout.PaymentIntentHandle, error)
}

func NewMockBackend(products ...*catalog.Product) *MockBackend {
	m := &MockBackend{products: make(map[string]*catalog.Product)}
	for _, p := range products {
		m.AddProduct(p)
	}
	return m
}

func (m *MockBackend) AddProduct(p *catalog.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		m.order = append(m.order, p.ID)
	}
	m.products[p.ID] = p
}

func (m *MockBackend) ListProducts(ctx context.Context) ([]*catalog.Product, error) {
	if m.ListProductsFunc != nil {
		return m.ListProductsFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*catalog.Product, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.products[id].Clone())
	}
	return out, nil
}

func (m *MockBackend) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	m.mu.Lock()
	m.ProductLookups++
	m.mu.Unlock()
	if m.GetProductFunc != nil {
		return m.GetProductFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MockBackend) CreateCustomer(ctx context.Context, rec checkout.CustomerRecord) (string, error) {
	m.mu.Lock()
	m.CustomerRequests = append(m.CustomerRequests, rec)
	m.mu.Unlock()
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, rec)
	}
	return "cus_test", nil
}

func (m *MockBackend) CreatePaymentIntent(ctx context.Context, req backend.IntentRequest) (*checkout.PaymentIntentHandle, error) {
	m.mu.Lock()
	m.IntentRequests = append(m.IntentRequests, req)
	n := len(m.IntentRequests)
	m.mu.Unlock()
	if m.CreatePaymentIntentFunc != nil {
		return m.CreatePaymentIntentFunc(ctx, req)
	}
	return checkout.NewPaymentIntentHandle(intentSecret(n), "")
}

// IntentCount reports how many intents were requested.
func (m *MockBackend) IntentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.IntentRequests)
}

// --- Processor Mock ---

// MockProcessor is a function-field payment processor that counts calls.
type MockProcessor struct {
	NameValue string
	calls     atomic.Int64

	ConfirmPaymentFunc func(ctx context.Context, req providers.ConfirmRequest) (*providers.IntentResult, error)
	RetrieveIntentFunc func(ctx context.Context, intentID, clientSecret string) (*providers.IntentResult, error)
}

func (m *MockProcessor) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

func (m *MockProcessor) ConfirmPayment(ctx context.Context, req providers.ConfirmRequest) (*providers.IntentResult, error) {
	m.calls.Add(1)
	if m.ConfirmPaymentFunc != nil {
		return m.ConfirmPaymentFunc(ctx, req)
	}
	return &providers.IntentResult{ID: req.IntentID, Status: checkout.IntentSucceeded, PaymentMethodType: req.PaymentMethodType}, nil
}

func (m *MockProcessor) RetrieveIntent(ctx context.Context, intentID, clientSecret string) (*providers.IntentResult, error) {
	if m.RetrieveIntentFunc != nil {
		return m.RetrieveIntentFunc(ctx, intentID, clientSecret)
	}
	return nil, domainErrors.ErrNotFound
}

// Calls reports how many confirmations reached the processor.
func (m *MockProcessor) Calls() int64 { return m.calls.Load() }

// --- Outcome Publisher Mock ---

type MockPublisher struct {
	mu     sync.Mutex
	Events []*checkout.OutcomeEvent

	PublishOutcomeFunc func(ctx context.Context, e *checkout.OutcomeEvent) error
}

func (m *MockPublisher) PublishOutcome(ctx context.Context, e *checkout.OutcomeEvent) error {
	if m.PublishOutcomeFunc != nil {
		return m.PublishOutcomeFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, e)
	return nil
}

func (m *MockPublisher) Published() []*checkout.OutcomeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*checkout.OutcomeEvent(nil), m.Events...)
}

// --- Journal Mock ---

type MockJournal struct {
	mu   sync.Mutex
	seen map[string]bool

	RecordFunc func(ctx context.Context, e *checkout.OutcomeEvent) (bool, error)
}

func (m *MockJournal) Record(ctx context.Context, e *checkout.OutcomeEvent) (bool, error) {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	key := e.AttemptID.String()
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

// Len reports how many distinct attempts were journaled.
func (m *MockJournal) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
