package checkout

import (
	"strings"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/catalog"
	"github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/google/uuid"
)

// Mode selects whether customer details are captured before the payment intent is created.
type Mode string

const (
	ModeCaptureCustomer Mode = "capture_customer"
	ModeSkipCapture     Mode = "skip_capture"
)

// Valid reports whether m is a known flow mode.
func (m Mode) Valid() bool {
	return m == ModeCaptureCustomer || m == ModeSkipCapture
}

// State is the confirmation state of a single checkout attempt.
type State string

const (
	StateIdle       State = "idle"
	StateReady      State = "ready"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Outcome is the result tag consumed by the router.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// CustomerRecord holds the buyer-identifying fields collected before payment.
type CustomerRecord struct {
	Name    string `validate:"required"`
	Email   string `validate:"required,email"`
	Address string `validate:"required"`
}

// Normalize trims surrounding whitespace from every field.
func (c CustomerRecord) Normalize() CustomerRecord {
	return CustomerRecord{
		Name:    strings.TrimSpace(c.Name),
		Email:   strings.TrimSpace(c.Email),
		Address: strings.TrimSpace(c.Address),
	}
}

// PaymentIntentHandle relays the processor's client secret for one attempt.
type PaymentIntentHandle struct {
	IntentID     string
	ClientSecret string
}

// NewPaymentIntentHandle builds a handle. When intentID is empty it is derived
// from the client secret, which has the form "<intent>_secret_<token>".
func NewPaymentIntentHandle(clientSecret, intentID string) (*PaymentIntentHandle, error) {
	if clientSecret == "" {
		return nil, errors.NewDomainError("missing_client_secret", "backend returned no client secret", errors.ErrIntentCreation)
	}
	if intentID == "" {
		if i := strings.Index(clientSecret, "_secret_"); i > 0 {
			intentID = clientSecret[:i]
		}
	}
	return &PaymentIntentHandle{IntentID: intentID, ClientSecret: clientSecret}, nil
}

// Attempt is the state carried through one pass of the checkout flow.
// It is created at flow entry and discarded on return to the catalog.
type Attempt struct {
	ID          uuid.UUID
	Mode        Mode
	ProductID   string
	ProductName string
	Quote       catalog.PriceQuote
	Customer    *CustomerRecord
	CustomerID  string
	Handle      *PaymentIntentHandle
	// Preparing is set while the backend is creating the intent.
	Preparing         bool
	State             State
	Outcome           Outcome
	PaymentMethodType string
	LastError         *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// NewAttempt starts an attempt for the product's default quote.
func NewAttempt(mode Mode, product *catalog.Product) (*Attempt, error) {
	if !mode.Valid() {
		return nil, errors.NewValidationError("mode", "unknown checkout mode "+string(mode))
	}
	quote, err := product.DefaultQuote()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Attempt{
		ID:          uuid.New(),
		Mode:        mode,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quote:       quote,
		State:       StateIdle,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanTransitionTo checks if the attempt can move to the given state
func (a *Attempt) CanTransitionTo(next State) bool {
	transitions := map[State][]State{
		StateIdle: {
			StateReady,
			StateFailed, // intent creation failed
		},
		StateReady: {
			StateSubmitting,
		},
		StateSubmitting: {
			StateSucceeded,
			StateFailed,
		},
		StateSucceeded: {},
		StateFailed:    {},
	}

	for _, allowed := range transitions[a.State] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the attempt to a new state
func (a *Attempt) TransitionTo(next State) error {
	if !a.CanTransitionTo(next) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(a.State)+" to "+string(next),
			errors.ErrInvalidStateTransition,
		)
	}

	now := time.Now()
	a.State = next
	a.UpdatedAt = now

	switch next {
	case StateSubmitting:
		a.Outcome = OutcomePending
	case StateSucceeded:
		a.Outcome = OutcomeSucceeded
		a.CompletedAt = &now
	case StateFailed:
		a.Outcome = OutcomeFailed
		a.CompletedAt = &now
	}
	return nil
}

// NeedsCustomer reports whether customer capture must run before the intent.
func (a *Attempt) NeedsCustomer() bool {
	return a.Mode == ModeCaptureCustomer && a.Customer == nil
}

// CaptureCustomer stores the latest buyer details. Details can be edited
// until a payment intent exists.
func (a *Attempt) CaptureCustomer(c CustomerRecord) error {
	if a.State != StateIdle || a.Handle != nil || a.Preparing {
		return errors.NewDomainError(
			"invalid_transition",
			"customer details are locked once payment is prepared",
			errors.ErrInvalidStateTransition,
		)
	}
	a.Customer = &c
	a.UpdatedAt = time.Now()
	return nil
}

// BeginPrepare claims intent creation for the caller. Only one claim can be
// held at a time, and none once the intent exists.
func (a *Attempt) BeginPrepare() error {
	switch {
	case a.Handle != nil:
		return errors.ErrIntentExists
	case a.Preparing:
		return errors.ErrIntentPreparing
	case a.State != StateIdle:
		return errors.NewDomainError(
			"invalid_transition",
			"cannot prepare payment in state "+string(a.State),
			errors.ErrInvalidStateTransition,
		)
	}
	a.Preparing = true
	a.UpdatedAt = time.Now()
	return nil
}

// AbortPrepare releases the claim without an intent.
func (a *Attempt) AbortPrepare() {
	a.Preparing = false
	a.UpdatedAt = time.Now()
}

// AttachHandle records the payment intent and readies the attempt for confirmation.
func (a *Attempt) AttachHandle(h *PaymentIntentHandle) error {
	if a.Handle != nil {
		return errors.ErrIntentExists
	}
	if err := a.TransitionTo(StateReady); err != nil {
		return err
	}
	a.Handle = h
	a.Preparing = false
	return nil
}

// BeginSubmit moves a ready attempt into submitting.
func (a *Attempt) BeginSubmit(paymentMethodType string) error {
	if err := a.TransitionTo(StateSubmitting); err != nil {
		return err
	}
	a.PaymentMethodType = paymentMethodType
	return nil
}

// MarkSucceeded resolves the attempt as succeeded.
func (a *Attempt) MarkSucceeded() error {
	return a.TransitionTo(StateSucceeded)
}

// MarkFailed resolves the attempt as failed with a reason.
func (a *Attempt) MarkFailed(reason string) error {
	if err := a.TransitionTo(StateFailed); err != nil {
		return err
	}
	a.Preparing = false
	a.LastError = &reason
	return nil
}

// IsTerminal reports whether the attempt has resolved.
func (a *Attempt) IsTerminal() bool {
	return a.State == StateSucceeded || a.State == StateFailed
}
