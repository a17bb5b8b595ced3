package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/catalog"
	"github.com/cassiomorais/storefront/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const attemptKeyPrefix = "checkout:attempt:"

// AttemptStore keeps checkout attempts in Redis so that any API instance can
// serve any step of the flow. Updates are serialized with a DistributedLock.
type AttemptStore struct {
	client      redis.Cmdable
	ttl         time.Duration
	lockTTL     time.Duration
	lockTries   int
	lockBackoff time.Duration
}

func NewAttemptStore(client redis.Cmdable, ttl, lockTTL time.Duration) *AttemptStore {
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	return &AttemptStore{
		client:      client,
		ttl:         ttl,
		lockTTL:     lockTTL,
		lockTries:   50,
		lockBackoff: 20 * time.Millisecond,
	}
}

var _ checkout.Repository = (*AttemptStore)(nil)

func (s *AttemptStore) Create(ctx context.Context, a *checkout.Attempt) error {
	data, err := json.Marshal(toRecord(a))
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	ok, err := s.client.SetNX(ctx, attemptKey(a.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("store attempt %s: %w", a.ID, err)
	}
	if !ok {
		return fmt.Errorf("attempt %s already exists", a.ID)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, id uuid.UUID) (*checkout.Attempt, error) {
	data, err := s.client.Get(ctx, attemptKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domainErrors.ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt %s: %w", id, err)
	}

	var rec attemptRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode attempt %s: %w", id, err)
	}
	return rec.toDomain(), nil
}

// Update runs fn under the attempt lock. fn sees the latest stored copy; its
// changes are written back only when it returns nil.
func (s *AttemptStore) Update(ctx context.Context, id uuid.UUID, fn checkout.MutateFunc) (*checkout.Attempt, error) {
	lock := NewDistributedLock(s.client, attemptKey(id), s.lockTTL)
	if err := lock.AcquireWithRetry(ctx, s.lockTries, s.lockBackoff); err != nil {
		return nil, err
	}
	defer lock.Release(context.WithoutCancel(ctx))

	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(a); err != nil {
		return nil, err
	}

	a.UpdatedAt = time.Now()
	data, err := json.Marshal(toRecord(a))
	if err != nil {
		return nil, fmt.Errorf("marshal attempt: %w", err)
	}

	// XX: never resurrect an attempt deleted while we held the lock.
	ok, err := s.client.SetXX(ctx, attemptKey(id), data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("store attempt %s: %w", id, err)
	}
	if !ok {
		return nil, domainErrors.ErrAttemptNotFound
	}
	return a.Clone(), nil
}

func (s *AttemptStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, attemptKey(id)).Err(); err != nil {
		return fmt.Errorf("delete attempt %s: %w", id, err)
	}
	return nil
}

func attemptKey(id uuid.UUID) string {
	return attemptKeyPrefix + id.String()
}

type customerRecord struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type attemptRecord struct {
	ID                uuid.UUID       `json:"id"`
	Mode              string          `json:"mode"`
	ProductID         string          `json:"product_id"`
	ProductName       string          `json:"product_name"`
	PriceID           string          `json:"price_id,omitempty"`
	Amount            int64           `json:"amount"`
	Currency          string          `json:"currency"`
	Customer          *customerRecord `json:"customer,omitempty"`
	CustomerID        string          `json:"customer_id,omitempty"`
	IntentID          string          `json:"intent_id,omitempty"`
	ClientSecret      string          `json:"client_secret,omitempty"`
	Preparing         bool            `json:"preparing,omitempty"`
	State             string          `json:"state"`
	Outcome           string          `json:"outcome,omitempty"`
	PaymentMethodType string          `json:"payment_method_type,omitempty"`
	LastError         *string         `json:"last_error,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

func toRecord(a *checkout.Attempt) attemptRecord {
	rec := attemptRecord{
		ID:                a.ID,
		Mode:              string(a.Mode),
		ProductID:         a.ProductID,
		ProductName:       a.ProductName,
		PriceID:           a.Quote.ID,
		Amount:            a.Quote.UnitAmount,
		Currency:          a.Quote.Currency,
		CustomerID:        a.CustomerID,
		Preparing:         a.Preparing,
		State:             string(a.State),
		Outcome:           string(a.Outcome),
		PaymentMethodType: a.PaymentMethodType,
		LastError:         a.LastError,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
		CompletedAt:       a.CompletedAt,
	}
	if a.Customer != nil {
		rec.Customer = &customerRecord{Name: a.Customer.Name, Email: a.Customer.Email, Address: a.Customer.Address}
	}
	if a.Handle != nil {
		rec.IntentID = a.Handle.IntentID
		rec.ClientSecret = a.Handle.ClientSecret
	}
	return rec
}

func (r attemptRecord) toDomain() *checkout.Attempt {
	a := &checkout.Attempt{
		ID:                r.ID,
		Mode:              checkout.Mode(r.Mode),
		ProductID:         r.ProductID,
		ProductName:       r.ProductName,
		Quote:             catalog.PriceQuote{ID: r.PriceID, UnitAmount: r.Amount, Currency: r.Currency},
		CustomerID:        r.CustomerID,
		Preparing:         r.Preparing,
		State:             checkout.State(r.State),
		Outcome:           checkout.Outcome(r.Outcome),
		PaymentMethodType: r.PaymentMethodType,
		LastError:         r.LastError,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		CompletedAt:       r.CompletedAt,
	}
	if r.Customer != nil {
		a.Customer = &checkout.CustomerRecord{Name: r.Customer.Name, Email: r.Customer.Email, Address: r.Customer.Address}
	}
	if r.ClientSecret != "" {
		a.Handle = &checkout.PaymentIntentHandle{IntentID: r.IntentID, ClientSecret: r.ClientSecret}
	}
	return a
}
