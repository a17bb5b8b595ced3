package controller

import (
	"time"

	"github.com/cassiomorais/storefront/internal/domain/catalog"
	"github.com/cassiomorais/storefront/internal/domain/checkout"
	"github.com/cassiomorais/storefront/internal/service"
)

// --- Request DTOs ---

// StartCheckoutRequest opens an attempt for a product.
type StartCheckoutRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}

// CustomerRequest carries the customer capture form.
type CustomerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

// ConfirmRequest is posted by the payment widget.
type ConfirmRequest struct {
	PaymentMethod     string `json:"payment_method"`
	PaymentMethodType string `json:"payment_method_type"`
}

// --- Response DTOs ---

// PriceResponse is a unit price in minor units.
type PriceResponse struct {
	ID         string `json:"id"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
	Display    string `json:"display"`
}

// ProductResponse is one catalog item.
type ProductResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Images      []string        `json:"images,omitempty"`
	Prices      []PriceResponse `json:"prices"`
}

// CatalogResponse is the catalog view.
type CatalogResponse struct {
	View     string            `json:"view"`
	Products []ProductResponse `json:"products"`
	Degraded bool              `json:"degraded"`
}

// DetailResponse is the product detail view. Product is omitted when the
// id was absent or unknown.
type DetailResponse struct {
	View            string           `json:"view"`
	Product         *ProductResponse `json:"product,omitempty"`
	Price           *PriceResponse   `json:"price,omitempty"`
	CheckoutEnabled bool             `json:"checkout_enabled"`
	Degraded        bool             `json:"degraded"`
}

// ActionResponse describes a follow-up the shell can offer.
type ActionResponse struct {
	Label  string `json:"label"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

// AttemptResponse presents an attempt as the view it routes to. The client
// secret and publishable key are only present while the payment widget is
// on screen.
type AttemptResponse struct {
	AttemptID         string          `json:"attempt_id"`
	View              string          `json:"view"`
	Path              string          `json:"path"`
	Mode              string          `json:"mode"`
	State             string          `json:"state"`
	Outcome           string          `json:"outcome,omitempty"`
	ProductID         string          `json:"product_id"`
	ProductName       string          `json:"product_name"`
	Price             PriceResponse   `json:"price"`
	CustomerRequired  bool            `json:"customer_required"`
	ClientSecret      string          `json:"client_secret,omitempty"`
	PublishableKey    string          `json:"publishable_key,omitempty"`
	PaymentMethodType string          `json:"payment_method_type,omitempty"`
	Error             *string         `json:"error,omitempty"`
	Return            *ActionResponse `json:"return,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// TerminalResponse is the success or error screen reached without an attempt.
type TerminalResponse struct {
	View   string         `json:"view"`
	Return ActionResponse `json:"return"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	View  string `json:"view,omitempty"`
}

// --- Conversion helpers ---

func fromQuote(q catalog.PriceQuote) PriceResponse {
	return PriceResponse{ID: q.ID, UnitAmount: q.UnitAmount, Currency: q.Currency, Display: q.String()}
}

func fromProduct(p *catalog.Product) ProductResponse {
	resp := ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Images:      p.Images,
		Prices:      make([]PriceResponse, 0, len(p.Prices)),
	}
	for _, q := range p.Prices {
		resp.Prices = append(resp.Prices, fromQuote(q))
	}
	return resp
}

// FromCatalogView converts the catalog listing to its API response.
func FromCatalogView(v *service.CatalogView) *CatalogResponse {
	resp := &CatalogResponse{
		View:     string(checkout.ViewCatalog),
		Products: make([]ProductResponse, 0, len(v.Products)),
		Degraded: v.Degraded,
	}
	for _, p := range v.Products {
		resp.Products = append(resp.Products, fromProduct(p))
	}
	return resp
}

// FromDetailView converts a product detail to its API response.
func FromDetailView(v *service.DetailView) *DetailResponse {
	resp := &DetailResponse{
		View:            string(checkout.ViewDetail),
		CheckoutEnabled: v.CheckoutEnabled,
		Degraded:        v.Degraded,
	}
	if v.Product != nil {
		p := fromProduct(v.Product)
		resp.Product = &p
	}
	if v.Quote != nil {
		q := fromQuote(*v.Quote)
		resp.Price = &q
	}
	return resp
}

// FromAttempt converts an attempt to the view it currently routes to.
func FromAttempt(a *checkout.Attempt, publishableKey string) *AttemptResponse {
	view := a.View()
	resp := &AttemptResponse{
		AttemptID:         a.ID.String(),
		View:              string(view),
		Path:              view.Path(),
		Mode:              string(a.Mode),
		State:             string(a.State),
		Outcome:           string(a.Outcome),
		ProductID:         a.ProductID,
		ProductName:       a.ProductName,
		Price:             fromQuote(a.Quote),
		CustomerRequired:  a.NeedsCustomer(),
		PaymentMethodType: a.PaymentMethodType,
		Error:             a.LastError,
		CompletedAt:       a.CompletedAt,
	}
	if view == checkout.ViewPayment && a.Handle != nil {
		resp.ClientSecret = a.Handle.ClientSecret
		resp.PublishableKey = publishableKey
	}
	if a.IsTerminal() {
		resp.Return = returnAction(a.ID.String())
	}
	return resp
}

func returnAction(attemptID string) *ActionResponse {
	return &ActionResponse{
		Label:  "Return to catalog",
		Method: "POST",
		Path:   "/checkout/" + attemptID + "/return",
	}
}
