package backend

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/cassiomorais/storefront/internal/domain/catalog"
)

// flexibleID accepts product ids encoded as JSON strings or numbers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

type productDTO struct {
	ID          flexibleID `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Images      []string   `json:"images"`
}

type priceDTO struct {
	ID         string `json:"id"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
}

type productEnvelope struct {
	Product *productDTO `json:"product"`
	Prices  []priceDTO  `json:"prices"`
}

// toDomain converts the envelope; fallbackID is used when the product has no id.
func (e productEnvelope) toDomain(fallbackID string) *catalog.Product {
	quotes := make([]catalog.PriceQuote, 0, len(e.Prices))
	for _, p := range e.Prices {
		quotes = append(quotes, catalog.PriceQuote{ID: p.ID, UnitAmount: p.UnitAmount, Currency: p.Currency})
	}

	id := fallbackID
	var name, description string
	var images []string
	if e.Product != nil {
		if e.Product.ID != "" {
			id = string(e.Product.ID)
		}
		name = e.Product.Name
		description = e.Product.Description
		images = e.Product.Images
	}

	p := catalog.NewProduct(id, name, quotes)
	p.Description = description
	p.Images = images
	return p
}

// sortProducts orders products by id, numerically when both ids are numbers.
func sortProducts(products []*catalog.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		a, errA := strconv.ParseInt(products[i].ID, 10, 64)
		b, errB := strconv.ParseInt(products[j].ID, 10, 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return products[i].ID < products[j].ID
	})
}

type customerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type customerResponse struct {
	CustomerID string `json:"customer_id"`
}

type intentRequest struct {
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	CustomerID         string            `json:"customer_id,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type intentResponse struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
}

type errorBody struct {
	Error         string   `json:"error"`
	MissingParams []string `json:"missing_params"`
}
