package checkout

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeEvent records a resolved attempt. It never carries customer details.
type OutcomeEvent struct {
	ID                uuid.UUID
	AttemptID         uuid.UUID
	ProductID         string
	AmountMinor       int64
	Currency          string
	PaymentMethodType string
	Outcome           Outcome
	Reason            string
	OccurredAt        time.Time
}

// NewOutcomeEvent builds the event for a terminal attempt.
func NewOutcomeEvent(a *Attempt) *OutcomeEvent {
	e := &OutcomeEvent{
		ID:                uuid.New(),
		AttemptID:         a.ID,
		ProductID:         a.ProductID,
		AmountMinor:       a.Quote.UnitAmount,
		Currency:          a.Quote.Currency,
		PaymentMethodType: a.PaymentMethodType,
		Outcome:           a.Outcome,
		OccurredAt:        time.Now().UTC(),
	}
	if a.LastError != nil {
		e.Reason = *a.LastError
	}
	return e
}
