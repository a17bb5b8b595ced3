package errors

import (
	"errors"
	"fmt"
)

var (
	// Collaborator errors
	ErrNetwork  = errors.New("backend request failed")
	ErrNotFound = errors.New("resource not found")

	// Payment intent errors
	ErrIntentCreation   = errors.New("payment intent creation failed")
	ErrNoPriceAvailable = fmt.Errorf("no price available for product: %w", ErrIntentCreation)
	ErrIntentExists     = errors.New("payment intent already created for attempt")
	ErrIntentPreparing  = errors.New("payment intent is being prepared")

	// Confirmation errors
	ErrConfirmation         = errors.New("payment confirmation failed")
	ErrProcessorNotFound    = errors.New("payment processor not found")
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
	ErrProcessorTimeout     = errors.New("payment processor request timeout")

	// Attempt errors
	ErrAttemptNotFound        = errors.New("checkout attempt not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrCustomerRequired       = errors.New("customer details required before payment")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match any validation error with errors.Is(err, ErrValidationFailed).
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Network wraps cause as an ErrNetwork for the given backend operation.
func Network(op string, cause error) error {
	return NewDomainError("network_error", op, errors.Join(ErrNetwork, cause))
}

// Confirmation wraps cause as an ErrConfirmation carrying the processor's message.
func Confirmation(message string, cause error) error {
	if cause == nil {
		return NewDomainError("confirmation_failed", message, ErrConfirmation)
	}
	return NewDomainError("confirmation_failed", message, errors.Join(ErrConfirmation, cause))
}
