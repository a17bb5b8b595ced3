package postgres

import (
	"context"
	"fmt"

	"github.com/cassiomorais/storefront/internal/domain/checkout"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JournalRepository persists resolved checkout outcomes. Rows carry no
// customer details.
type JournalRepository struct {
	pool *pgxpool.Pool
}

func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{pool: pool}
}

// Record stores the event and bumps the per-product totals in one
// transaction. Redelivered events (same id or attempt) are ignored and
// reported with recorded=false.
func (r *JournalRepository) Record(ctx context.Context, e *checkout.OutcomeEvent) (recorded bool, err error) {
	err = withTx(ctx, r.pool, func(q querier) error {
		tag, err := q.Exec(ctx,
			`INSERT INTO checkout_outcomes (id, attempt_id, product_id, amount_minor, currency, payment_method_type, outcome, reason, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT DO NOTHING`,
			e.ID, e.AttemptID, e.ProductID, e.AmountMinor, e.Currency,
			e.PaymentMethodType, string(e.Outcome), e.Reason, e.OccurredAt,
		)
		if err != nil {
			return fmt.Errorf("insert checkout outcome: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		recorded = true

		_, err = q.Exec(ctx,
			`INSERT INTO checkout_outcome_totals (product_id, currency, outcome, attempts, amount_minor)
			 VALUES ($1, $2, $3, 1, $4)
			 ON CONFLICT (product_id, currency, outcome)
			 DO UPDATE SET attempts = checkout_outcome_totals.attempts + 1,
			               amount_minor = checkout_outcome_totals.amount_minor + EXCLUDED.amount_minor,
			               updated_at = NOW()`,
			e.ProductID, e.Currency, string(e.Outcome), e.AmountMinor,
		)
		if err != nil {
			return fmt.Errorf("update checkout totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

// Ping reports whether the journal database is reachable.
func (r *JournalRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
