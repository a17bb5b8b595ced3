package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/infrastructure/backend"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/cassiomorais/storefront/internal/providers"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var errAlreadySubmitted = errors.New("attempt already submitted")

// CheckoutConfig parameterizes the checkout flow.
type CheckoutConfig struct {
	Mode               checkout.Mode
	PaymentMethodTypes []string
	Processor          string
	// ReturnURL is sent to the processor for redirect-based methods.
	// "{attempt_id}" is replaced with the attempt id.
	ReturnURL        string
	ConfirmTimeout   time.Duration
	AsyncGracePeriod time.Duration
}

// ConfirmInput is what the payment widget submits.
type ConfirmInput struct {
	PaymentMethod     string
	PaymentMethodType string
}

// CheckoutService drives one attempt from product selection to a routed
// outcome: customer capture, intent creation, confirmation, status checks.
type CheckoutService struct {
	repo       checkout.Repository
	backend    Backend
	processors *providers.Factory
	publisher  OutcomePublisher
	validate   *validator.Validate
	metrics    *observability.Metrics
	logger     zerolog.Logger
	cfg        CheckoutConfig

	inflight sync.WaitGroup
}

// NewCheckoutService creates a CheckoutService. publisher may be nil when no
// outcome stream is configured.
func NewCheckoutService(
	repo checkout.Repository,
	backend Backend,
	processors *providers.Factory,
	publisher OutcomePublisher,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	cfg CheckoutConfig,
) *CheckoutService {
	if len(cfg.PaymentMethodTypes) == 0 {
		cfg.PaymentMethodTypes = []string{"card"}
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 30 * time.Second
	}
	return &CheckoutService{
		repo:       repo,
		backend:    backend,
		processors: processors,
		publisher:  publisher,
		validate:   validator.New(),
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// Start opens an attempt for the product. In skip-capture mode the payment
// intent is created right away.
func (s *CheckoutService) Start(ctx context.Context, productID string) (*checkout.Attempt, error) {
	if productID == "" {
		return nil, domainErrors.NewValidationError("product_id", "is required")
	}

	p, err := s.backend.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	a, err := checkout.NewAttempt(s.cfg.Mode, p)
	if err != nil {
		return nil, err
	}
	if a.Mode == checkout.ModeSkipCapture {
		if err := a.BeginPrepare(); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.metrics.CheckoutAttempts.WithLabelValues(string(a.Mode)).Inc()
	s.attemptLogger(a).Info().Str("mode", string(a.Mode)).Int64("amount", a.Quote.UnitAmount).Msg("Checkout attempt started")

	if a.Mode == checkout.ModeSkipCapture {
		return s.initiateIntent(ctx, a)
	}
	return a, nil
}

// CaptureCustomer stores the buyer's details and creates the payment intent.
// While the intent is being prepared, or once it exists, the attempt is
// returned unchanged and the backend is not called again.
func (s *CheckoutService) CaptureCustomer(ctx context.Context, id uuid.UUID, rec checkout.CustomerRecord) (*checkout.Attempt, error) {
	rec = rec.Normalize()
	if err := s.validateCustomer(rec); err != nil {
		return nil, err
	}

	a, err := s.repo.Update(ctx, id, func(a *checkout.Attempt) error {
		if a.Mode != checkout.ModeCaptureCustomer {
			return domainErrors.NewDomainError("invalid_transition", "attempt does not capture customer details", domainErrors.ErrInvalidStateTransition)
		}
		if a.Handle != nil {
			return domainErrors.ErrIntentExists
		}
		if a.Preparing {
			return domainErrors.ErrIntentPreparing
		}
		if err := a.CaptureCustomer(rec); err != nil {
			return err
		}
		return a.BeginPrepare()
	})
	if errors.Is(err, domainErrors.ErrIntentExists) || errors.Is(err, domainErrors.ErrIntentPreparing) {
		s.logger.Info().Str("attempt_id", id.String()).Msg("Payment already prepared or in preparation, skipping")
		return s.repo.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	return s.initiateIntent(ctx, a)
}

// Attempt returns the current attempt.
func (s *CheckoutService) Attempt(ctx context.Context, id uuid.UUID) (*checkout.Attempt, error) {
	return s.repo.Get(ctx, id)
}

// initiateIntent creates the single payment intent of the attempt. The
// caller must hold the preparing claim. A failure resolves the attempt as
// failed unless the caller went away, which only releases the claim.
func (s *CheckoutService) initiateIntent(ctx context.Context, a *checkout.Attempt) (*checkout.Attempt, error) {
	if a.Handle != nil {
		return a, nil
	}

	req := backend.IntentRequest{
		Amount:             a.Quote.UnitAmount,
		Currency:           a.Quote.Currency,
		PaymentMethodTypes: s.cfg.PaymentMethodTypes,
		CustomerID:         a.CustomerID,
		Metadata: map[string]string{
			"attempt_id": a.ID.String(),
			"product_id": a.ProductID,
		},
	}

	if a.Mode == checkout.ModeCaptureCustomer {
		if a.Customer == nil {
			s.abortPrepare(ctx, a.ID)
			return nil, domainErrors.ErrCustomerRequired
		}
		if req.CustomerID == "" {
			customerID, err := s.backend.CreateCustomer(ctx, *a.Customer)
			if err != nil {
				return nil, s.failIntent(ctx, a, err)
			}
			req.CustomerID = customerID
		}
	}

	handle, err := s.backend.CreatePaymentIntent(ctx, req)
	if err != nil {
		return nil, s.failIntent(ctx, a, err)
	}

	updated, err := s.repo.Update(ctx, a.ID, func(a *checkout.Attempt) error {
		if err := a.AttachHandle(handle); err != nil {
			return err
		}
		a.CustomerID = req.CustomerID
		return nil
	})
	if errors.Is(err, domainErrors.ErrIntentExists) {
		// A concurrent request attached its intent first; keep that one.
		return s.repo.Get(ctx, a.ID)
	}
	if err != nil {
		return nil, err
	}

	s.attemptLogger(updated).Info().Str("intent_id", handle.IntentID).Msg("Payment intent created")
	return updated, nil
}

func (s *CheckoutService) failIntent(ctx context.Context, a *checkout.Attempt, cause error) error {
	if ctx.Err() != nil {
		s.abortPrepare(ctx, a.ID)
		return ctx.Err()
	}
	if !errors.Is(cause, domainErrors.ErrIntentCreation) {
		cause = domainErrors.NewDomainError("intent_creation_failed", "could not prepare payment", errors.Join(domainErrors.ErrIntentCreation, cause))
	}

	s.attemptLogger(a).Error().Err(cause).Msg("Payment intent creation failed")
	if _, err := s.resolve(context.WithoutCancel(ctx), a.ID, time.Time{}, checkout.OutcomeFailed, "payment could not be prepared", ""); err != nil {
		s.logger.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Could not resolve attempt after intent failure")
	}
	return cause
}

func (s *CheckoutService) abortPrepare(ctx context.Context, id uuid.UUID) {
	_, err := s.repo.Update(context.WithoutCancel(ctx), id, func(a *checkout.Attempt) error {
		a.AbortPrepare()
		return nil
	})
	if err != nil && !errors.Is(err, domainErrors.ErrAttemptNotFound) {
		s.logger.Warn().Err(err).Str("attempt_id", id.String()).Msg("Could not release payment preparation")
	}
}

// Confirm submits the payment. Only the first submit of a ready attempt
// reaches the processor; later submits return the attempt as it is. The
// processor call is detached from ctx so it always resolves, bounded by
// the confirm timeout.
func (s *CheckoutService) Confirm(ctx context.Context, id uuid.UUID, in ConfirmInput) (*checkout.Attempt, error) {
	methodType := in.PaymentMethodType
	if methodType == "" {
		methodType = s.cfg.PaymentMethodTypes[0]
	}
	if !slices.Contains(s.cfg.PaymentMethodTypes, methodType) {
		return nil, domainErrors.NewValidationError("payment_method_type", "is not accepted for this checkout")
	}

	a, err := s.repo.Update(ctx, id, func(a *checkout.Attempt) error {
		if a.State == checkout.StateSubmitting || a.IsTerminal() {
			return errAlreadySubmitted
		}
		return a.BeginSubmit(methodType)
	})
	if errors.Is(err, errAlreadySubmitted) {
		s.metrics.DuplicateSubmits.Inc()
		s.logger.Info().Str("attempt_id", id.String()).Msg("Duplicate submit ignored")
		return s.repo.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	type result struct {
		attempt *checkout.Attempt
		err     error
	}
	done := make(chan result, 1)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		resolved, err := s.confirm(context.WithoutCancel(ctx), a, in.PaymentMethod)
		done <- result{resolved, err}
	}()

	select {
	case r := <-done:
		return r.attempt, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CheckoutService) confirm(ctx context.Context, a *checkout.Attempt, paymentMethod string) (*checkout.Attempt, error) {
	start := time.Now()
	s.metrics.ActiveConfirmations.Inc()
	defer s.metrics.ActiveConfirmations.Dec()

	logger := s.attemptLogger(a)

	processor, breaker, err := s.processors.Get(s.cfg.Processor)
	if err != nil {
		logger.Error().Err(err).Msg("Payment processor not configured")
		return s.resolve(ctx, a.ID, start, checkout.OutcomeFailed, "payment processor unavailable", a.PaymentMethodType)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	defer cancel()

	res, err := breaker.Execute(func() (*providers.IntentResult, error) {
		return processor.ConfirmPayment(callCtx, providers.ConfirmRequest{
			IntentID:          a.Handle.IntentID,
			ClientSecret:      a.Handle.ClientSecret,
			PaymentMethod:     paymentMethod,
			PaymentMethodType: a.PaymentMethodType,
			ReturnURL:         strings.ReplaceAll(s.cfg.ReturnURL, "{attempt_id}", a.ID.String()),
		})
	})
	methodType := a.PaymentMethodType
	if err == nil && res != nil && res.PaymentMethodType != "" {
		methodType = res.PaymentMethodType
	}
	outcome, reason := classifyConfirmation(res, err, methodType)
	logger.Info().Str("outcome", string(outcome)).Str("reason", reason).Str("payment_method_type", methodType).Msg("Processor answered confirmation")

	if outcome == checkout.OutcomePending {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.settleAsync(ctx, a.ID, start, methodType)
		}()
		return a, nil
	}

	return s.resolve(ctx, a.ID, start, outcome, reason, methodType)
}

// settleAsync reports an accepted asynchronous payment as succeeded once the
// grace period has passed.
func (s *CheckoutService) settleAsync(ctx context.Context, id uuid.UUID, start time.Time, methodType string) {
	timer := time.NewTimer(s.cfg.AsyncGracePeriod)
	defer timer.Stop()
	<-timer.C

	if _, err := s.resolve(ctx, id, start, checkout.OutcomeSucceeded, "", methodType); err != nil && !errors.Is(err, domainErrors.ErrAttemptNotFound) {
		s.logger.Error().Err(err).Str("attempt_id", id.String()).Msg("Failed to settle asynchronous payment")
	}
}

// resolve moves the attempt to its terminal outcome and publishes it. A
// non-empty methodType records the method the processor settled with. An
// attempt discarded in the meantime is left alone, and an attempt already
// resolved by someone else is returned as stored. A zero start skips the
// confirmation duration metric.
func (s *CheckoutService) resolve(ctx context.Context, id uuid.UUID, start time.Time, outcome checkout.Outcome, reason, methodType string) (*checkout.Attempt, error) {
	a, err := s.repo.Update(ctx, id, func(a *checkout.Attempt) error {
		if a.State == checkout.StateReady {
			if err := a.BeginSubmit(methodType); err != nil {
				return err
			}
		}
		if outcome == checkout.OutcomeSucceeded {
			if err := a.MarkSucceeded(); err != nil {
				return err
			}
		} else if err := a.MarkFailed(reason); err != nil {
			return err
		}
		if methodType != "" {
			a.PaymentMethodType = methodType
		}
		return nil
	})
	switch {
	case errors.Is(err, domainErrors.ErrAttemptNotFound):
		s.logger.Info().Str("attempt_id", id.String()).Str("outcome", string(outcome)).Msg("Attempt discarded before confirmation finished, dropping result")
		return nil, err
	case errors.Is(err, domainErrors.ErrInvalidStateTransition):
		return s.repo.Get(ctx, id)
	case err != nil:
		return nil, fmt.Errorf("resolve attempt: %w", err)
	}

	s.metrics.CheckoutOutcomes.WithLabelValues(string(a.Outcome), a.PaymentMethodType).Inc()
	if !start.IsZero() {
		s.metrics.ConfirmationDuration.WithLabelValues(string(a.Outcome)).Observe(time.Since(start).Seconds())
	}
	s.attemptLogger(a).Info().Str("state", string(a.State)).Str("outcome", string(a.Outcome)).Msg("Checkout attempt resolved")

	s.publish(ctx, a)
	return a, nil
}

func (s *CheckoutService) publish(ctx context.Context, a *checkout.Attempt) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOutcome(ctx, checkout.NewOutcomeEvent(a)); err != nil {
		s.attemptLogger(a).Error().Err(err).Msg("Failed to publish checkout outcome")
	}
}

// CheckStatus asks the processor for the intent's status, for example after
// a redirect back from a bank page, and resolves the attempt from the answer.
// Lookup failures leave the attempt unchanged.
func (s *CheckoutService) CheckStatus(ctx context.Context, id uuid.UUID) (*checkout.Attempt, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.IsTerminal() || a.Handle == nil {
		return a, nil
	}

	logger := s.attemptLogger(a)
	processor, breaker, err := s.processors.Get(s.cfg.Processor)
	if err != nil {
		return nil, err
	}

	res, err := breaker.Execute(func() (*providers.IntentResult, error) {
		return processor.RetrieveIntent(ctx, a.Handle.IntentID, a.Handle.ClientSecret)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Intent status unavailable")
		return a, nil
	}

	methodType := res.PaymentMethodType
	if methodType == "" {
		methodType = a.PaymentMethodType
	}

	switch res.Status {
	case checkout.IntentSucceeded:
		return s.resolve(ctx, id, time.Time{}, checkout.OutcomeSucceeded, "", methodType)
	case checkout.IntentCanceled:
		return s.resolve(ctx, id, time.Time{}, checkout.OutcomeFailed, "payment canceled", methodType)
	case checkout.IntentProcessing:
		if a.State == checkout.StateReady && checkout.IsAsyncPaymentMethod(methodType) {
			// Confirmed outside this service; start the grace period here.
			submitted, err := s.repo.Update(ctx, id, func(a *checkout.Attempt) error { return a.BeginSubmit(methodType) })
			if err != nil {
				return s.repo.Get(ctx, id)
			}
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				s.settleAsync(context.WithoutCancel(ctx), id, time.Now(), methodType)
			}()
			return submitted, nil
		}
		return a, nil
	case checkout.IntentRequiresPaymentMethod:
		if a.State == checkout.StateSubmitting && res.ErrorMessage != "" {
			return s.resolve(ctx, id, time.Time{}, checkout.OutcomeFailed, res.ErrorMessage, methodType)
		}
		return a, nil
	default:
		return a, nil
	}
}

// ReturnToCatalog discards the attempt together with its customer details
// and intent handle.
func (s *CheckoutService) ReturnToCatalog(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("attempt_id", id.String()).Msg("Checkout attempt discarded")
	return nil
}

// Wait blocks until in-flight confirmations and grace periods finish or ctx ends.
func (s *CheckoutService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CheckoutService) validateCustomer(rec checkout.CustomerRecord) error {
	err := s.validate.Struct(rec)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := "is required"
		if fe.Tag() == "email" {
			msg = "must be a valid email address"
		}
		return domainErrors.NewValidationError(strings.ToLower(fe.Field()), msg)
	}
	return err
}

func (s *CheckoutService) attemptLogger(a *checkout.Attempt) *zerolog.Logger {
	l := observability.ForAttempt(s.logger, a.ID.String(), a.ProductID)
	return &l
}

// classifyConfirmation turns the processor's answer into an outcome and a
// buyer-facing reason.
func classifyConfirmation(res *providers.IntentResult, err error, methodType string) (checkout.Outcome, string) {
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return checkout.OutcomeFailed, "payment processor unavailable"
		case errors.Is(err, domainErrors.ErrProcessorTimeout), errors.Is(err, context.DeadlineExceeded):
			return checkout.OutcomeFailed, "payment confirmation timed out"
		case res != nil && res.ErrorMessage != "":
			return checkout.OutcomeFailed, res.ErrorMessage
		}
		var de *domainErrors.DomainError
		if errors.As(err, &de) && de.Message != "" {
			return checkout.OutcomeFailed, de.Message
		}
		return checkout.OutcomeFailed, "payment confirmation failed"
	}
	if res == nil {
		return checkout.OutcomeFailed, "payment confirmation failed"
	}

	if res.PaymentMethodType != "" {
		methodType = res.PaymentMethodType
	}
	outcome := checkout.ClassifyIntentStatus(res.Status, methodType)
	if outcome != checkout.OutcomeFailed {
		return outcome, ""
	}
	if res.ErrorMessage != "" {
		return outcome, res.ErrorMessage
	}
	return outcome, "payment " + strings.ReplaceAll(res.Status, "_", " ")
}
