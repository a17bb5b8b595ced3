package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cassiomorais/storefront/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

// maxBodySize bounds JSON request bodies; the largest form is customer capture.
const maxBodySize = 64 << 10

type errorMapping struct {
	err    error
	status int
	code   string
	// message replaces err.Error() so collaborator details stay in the logs.
	message string
	// view is set when the error resolves the flow into a screen.
	view checkout.View
}

// Order matters: ErrNoPriceAvailable wraps ErrIntentCreation.
var errorMappings = []errorMapping{
	{err: domainErrors.ErrNoPriceAvailable, status: http.StatusUnprocessableEntity, code: "no_price"},
	{err: domainErrors.ErrAttemptNotFound, status: http.StatusNotFound, code: "attempt_not_found"},
	{err: domainErrors.ErrNotFound, status: http.StatusNotFound, code: "not_found"},
	{err: domainErrors.ErrInvalidStateTransition, status: http.StatusConflict, code: "invalid_state_transition"},
	{err: domainErrors.ErrCustomerRequired, status: http.StatusConflict, code: "customer_required"},
	{err: domainErrors.ErrLockAcquisitionFailed, status: http.StatusConflict, code: "conflict", message: "attempt is busy, please retry"},
	{err: domainErrors.ErrIntentCreation, status: http.StatusBadGateway, code: "intent_creation_failed", message: "payment could not be prepared", view: checkout.ViewError},
	{err: domainErrors.ErrNetwork, status: http.StatusBadGateway, code: "backend_unavailable", message: "storefront backend unavailable", view: checkout.ViewError},
	{err: domainErrors.ErrProcessorNotFound, status: http.StatusServiceUnavailable, code: "processor_unavailable", message: "payment processor unavailable", view: checkout.ViewError},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			if m.message != "" {
				resp.Error = m.message
			}
			resp.View = string(m.view)
			if m.status >= http.StatusInternalServerError {
				log.Warn().Err(err).Str("code", m.code).Msg("collaborator failure in handler")
			}
			writeJSON(w, m.status, resp)
			return
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	resp.View = string(checkout.ViewError)
	writeJSON(w, http.StatusInternalServerError, resp)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return domainErrors.NewValidationError(strings.ToLower(ve[0].Field()), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}

// attemptIDParam reads the attempt id from the {attemptID} path segment or,
// failing that, the "attempt" query parameter.
func attemptIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "attemptID")
	if raw == "" {
		raw = r.URL.Query().Get("attempt")
	}
	if raw == "" {
		return uuid.Nil, domainErrors.NewValidationError("attempt", "is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domainErrors.NewValidationError("attempt", "must be a valid id")
	}
	return id, nil
}
