package service

import (
	"context"

	"github.com/cassiomorais/storefront/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/rs/zerolog"
)

// JournalService writes resolved checkout outcomes to the journal.
type JournalService struct {
	journal Journal
	logger  zerolog.Logger
}

func NewJournalService(journal Journal, logger zerolog.Logger) *JournalService {
	return &JournalService{journal: journal, logger: logger}
}

// Record stores a terminal outcome. Redelivered events are accepted without
// a second write.
func (s *JournalService) Record(ctx context.Context, e *checkout.OutcomeEvent) error {
	if e.Outcome != checkout.OutcomeSucceeded && e.Outcome != checkout.OutcomeFailed {
		return domainErrors.NewValidationError("outcome", "only terminal outcomes are journaled, got "+string(e.Outcome))
	}
	if e.AmountMinor <= 0 || e.Currency == "" {
		return domainErrors.NewValidationError("amount", "event has no price")
	}

	recorded, err := s.journal.Record(ctx, e)
	if err != nil {
		return err
	}

	logger := s.logger.With().Str("event_id", e.ID.String()).Str("attempt_id", e.AttemptID.String()).Logger()
	if !recorded {
		logger.Info().Msg("Outcome already journaled, skipping")
		return nil
	}
	logger.Info().Str("outcome", string(e.Outcome)).Str("product_id", e.ProductID).Msg("Outcome journaled")
	return nil
}
