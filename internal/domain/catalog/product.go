package catalog

import (
	"fmt"

	"github.com/cassiomorais/storefront/internal/domain/errors"
)

// PriceQuote is a unit price in the smallest currency unit (e.g. cents).
type PriceQuote struct {
	ID         string
	UnitAmount int64
	Currency   string
}

// Validate checks that the quote carries a positive amount and a currency.
func (q PriceQuote) Validate() error {
	if q.UnitAmount <= 0 {
		return errors.NewValidationError("unit_amount", "must be greater than zero")
	}
	if q.Currency == "" {
		return errors.NewValidationError("currency", "is required")
	}
	return nil
}

// String returns a human-readable representation of the quote.
func (q PriceQuote) String() string {
	return fmt.Sprintf("%d.%02d %s", q.UnitAmount/100, q.UnitAmount%100, q.Currency)
}

// Product is a read-only copy of a backend catalog item.
// Prices are kept in backend order; the first entry is the default quote.
type Product struct {
	ID          string
	Name        string
	Description string
	Images      []string
	Prices      []PriceQuote
}

// NewProduct builds a product, dropping quotes that violate the amount invariant.
func NewProduct(id, name string, prices []PriceQuote) *Product {
	valid := make([]PriceQuote, 0, len(prices))
	for _, q := range prices {
		if q.Validate() == nil {
			valid = append(valid, q)
		}
	}
	return &Product{ID: id, Name: name, Prices: valid}
}

// DefaultQuote returns the preferred price quote.
func (p *Product) DefaultQuote() (PriceQuote, error) {
	if p == nil || len(p.Prices) == 0 {
		return PriceQuote{}, errors.ErrNoPriceAvailable
	}
	return p.Prices[0], nil
}

// Purchasable reports whether checkout can start for the product.
func (p *Product) Purchasable() bool {
	return p != nil && len(p.Prices) > 0
}

// Clone returns a deep copy so callers cannot mutate shared catalog data.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	c.Images = append([]string(nil), p.Images...)
	c.Prices = append([]PriceQuote(nil), p.Prices...)
	return &c
}
