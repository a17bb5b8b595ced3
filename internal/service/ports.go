package service

import (
	"context"

	"github.com/cassiomorais/storefront/internal/domain/catalog"
	"github.com/cassiomorais/storefront/internal/domain/checkout"
	"github.com/cassiomorais/storefront/internal/infrastructure/backend"
)

// Backend is the storefront backend API.
type Backend interface {
	ListProducts(ctx context.Context) ([]*catalog.Product, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	CreateCustomer(ctx context.Context, rec checkout.CustomerRecord) (string, error)
	CreatePaymentIntent(ctx context.Context, req backend.IntentRequest) (*checkout.PaymentIntentHandle, error)
}

// OutcomePublisher emits resolved attempts for the journal worker.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, e *checkout.OutcomeEvent) error
}

// Journal stores outcome events. Record reports false for redeliveries.
type Journal interface {
	Record(ctx context.Context, e *checkout.OutcomeEvent) (bool, error)
}
