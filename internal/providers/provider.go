package providers

import (
	"context"
)

// IntentResult is the processor's view of a payment intent after a call.
type IntentResult struct {
	ID                string
	Status            string // processor intent status, e.g. "succeeded", "processing"
	PaymentMethodType string
	ErrorCode         string
	ErrorMessage      string
}

// Processor confirms payment intents created by the backend.
type Processor interface {
	// Name returns the processor name.
	Name() string
	// ConfirmPayment confirms the intent with the buyer's payment method.
	ConfirmPayment(ctx context.Context, req ConfirmRequest) (*IntentResult, error)
	// RetrieveIntent reads the current intent status using its client secret.
	RetrieveIntent(ctx context.Context, intentID, clientSecret string) (*IntentResult, error)
}

type ConfirmRequest struct {
	IntentID          string
	ClientSecret      string
	PaymentMethod     string // tokenized method id from the payment widget
	PaymentMethodType string // e.g. "card", "sepa_debit"
	ReturnURL         string
}
