// Package memory holds checkout attempts in process memory for single-instance
// deployments and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/google/uuid"
)

type entry struct {
	attempt   *checkout.Attempt
	expiresAt time.Time
}

// AttemptRepository is a mutex-guarded attempt store with a sliding TTL.
// A zero TTL keeps attempts until they are deleted.
type AttemptRepository struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]entry
	ttl      time.Duration
	now      func() time.Time
}

var _ checkout.Repository = (*AttemptRepository)(nil)

func NewAttemptRepository(ttl time.Duration) *AttemptRepository {
	return &AttemptRepository{
		attempts: make(map[uuid.UUID]entry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *AttemptRepository) Create(_ context.Context, a *checkout.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lookup(a.ID); ok {
		return fmt.Errorf("attempt %s already exists", a.ID)
	}
	r.store(a.Clone())
	return nil
}

func (r *AttemptRepository) Get(_ context.Context, id uuid.UUID) (*checkout.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.lookup(id)
	if !ok {
		return nil, domainErrors.ErrAttemptNotFound
	}
	return a.Clone(), nil
}

// Update applies fn to a copy and commits it only when fn succeeds, so a
// failed mutation leaves the stored attempt untouched.
func (r *AttemptRepository) Update(_ context.Context, id uuid.UUID, fn checkout.MutateFunc) (*checkout.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.lookup(id)
	if !ok {
		return nil, domainErrors.ErrAttemptNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = r.now()
	r.store(next)
	return next.Clone(), nil
}

func (r *AttemptRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.attempts, id)
	return nil
}

// Len reports the number of live attempts.
func (r *AttemptRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

// Sweep drops expired attempts and returns how many were removed.
func (r *AttemptRepository) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, e := range r.attempts {
		if r.expired(e, now) {
			delete(r.attempts, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps expired attempts every interval until ctx is done.
func (r *AttemptRepository) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *AttemptRepository) lookup(id uuid.UUID) (*checkout.Attempt, bool) {
	e, ok := r.attempts[id]
	if !ok {
		return nil, false
	}
	if r.expired(e, r.now()) {
		delete(r.attempts, id)
		return nil, false
	}
	return e.attempt, true
}

func (r *AttemptRepository) store(a *checkout.Attempt) {
	e := entry{attempt: a}
	if r.ttl > 0 {
		e.expiresAt = r.now().Add(r.ttl)
	}
	r.attempts[a.ID] = e
}

func (r *AttemptRepository) expired(e entry, now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}
