package checkout

import (
	"context"

	"github.com/google/uuid"
)

// MutateFunc changes an attempt in place. Returning an error aborts the update.
type MutateFunc func(a *Attempt) error

// Repository holds attempt-scoped state between requests.
type Repository interface {
	Create(ctx context.Context, a *Attempt) error
	// Get returns a copy of the attempt or errors.ErrAttemptNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Attempt, error)
	// Update applies fn atomically with respect to other updates of the same attempt.
	Update(ctx context.Context, id uuid.UUID, fn MutateFunc) (*Attempt, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Clone returns a deep copy of the attempt.
func (a *Attempt) Clone() *Attempt {
	if a == nil {
		return nil
	}
	c := *a
	if a.Customer != nil {
		cust := *a.Customer
		c.Customer = &cust
	}
	if a.Handle != nil {
		h := *a.Handle
		c.Handle = &h
	}
	if a.LastError != nil {
		e := *a.LastError
		c.LastError = &e
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
