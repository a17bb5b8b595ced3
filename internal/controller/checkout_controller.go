package controller

import (
	"net/http"

	"github.com/cassiomorais/storefront/internal/domain/checkout"
	"github.com/cassiomorais/storefront/internal/service"
)

// CheckoutController drives a checkout attempt over HTTP.
type CheckoutController struct {
	checkout       *service.CheckoutService
	catalog        *service.CatalogService
	publishableKey string
}

func NewCheckoutController(checkout *service.CheckoutService, catalog *service.CatalogService, publishableKey string) *CheckoutController {
	return &CheckoutController{checkout: checkout, catalog: catalog, publishableKey: publishableKey}
}

// Start handles POST /checkout
func (h *CheckoutController) Start(w http.ResponseWriter, r *http.Request) {
	var req StartCheckoutRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	a, err := h.checkout.Start(r.Context(), req.ProductID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromAttempt(a, h.publishableKey))
}

// CaptureCustomer handles POST /checkout/{attemptID}/customer
func (h *CheckoutController) CaptureCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := attemptIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CustomerRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	a, err := h.checkout.CaptureCustomer(r.Context(), id, checkout.CustomerRecord{
		Name:    req.Name,
		Email:   req.Email,
		Address: req.Address,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromAttempt(a, h.publishableKey))
}

// Payment handles GET /payment?attempt=
func (h *CheckoutController) Payment(w http.ResponseWriter, r *http.Request) {
	id, err := attemptIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	a, err := h.checkout.Attempt(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromAttempt(a, h.publishableKey))
}

// Confirm handles POST /checkout/{attemptID}/confirm. The body is optional.
func (h *CheckoutController) Confirm(w http.ResponseWriter, r *http.Request) {
	id, err := attemptIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req ConfirmRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	a, err := h.checkout.Confirm(r.Context(), id, service.ConfirmInput{
		PaymentMethod:     req.PaymentMethod,
		PaymentMethodType: req.PaymentMethodType,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromAttempt(a, h.publishableKey))
}

// Status handles GET /checkout/{attemptID}/status, the landing page after a
// redirect-based payment method.
func (h *CheckoutController) Status(w http.ResponseWriter, r *http.Request) {
	id, err := attemptIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	a, err := h.checkout.CheckStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromAttempt(a, h.publishableKey))
}

// Return handles POST /checkout/{attemptID}/return
func (h *CheckoutController) Return(w http.ResponseWriter, r *http.Request) {
	id, err := attemptIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.checkout.ReturnToCatalog(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromCatalogView(h.catalog.Catalog(r.Context())))
}

// Success handles GET /success
func (h *CheckoutController) Success(w http.ResponseWriter, r *http.Request) {
	h.terminal(w, r, checkout.ViewSuccess)
}

// Failure handles GET /error
func (h *CheckoutController) Failure(w http.ResponseWriter, r *http.Request) {
	h.terminal(w, r, checkout.ViewError)
}

// terminal renders a result screen. With an attempt it shows the attempt as
// it routes now; without one it offers only the way back.
func (h *CheckoutController) terminal(w http.ResponseWriter, r *http.Request, view checkout.View) {
	if r.URL.Query().Get("attempt") == "" {
		writeJSON(w, http.StatusOK, TerminalResponse{
			View:   string(view),
			Return: ActionResponse{Label: "Return to catalog", Method: "GET", Path: checkout.ViewCatalog.Path()},
		})
		return
	}

	id, err := attemptIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	a, err := h.checkout.Attempt(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromAttempt(a, h.publishableKey))
}
