package testutil

import (
	"fmt"

	"github.com/cassiomorais/storefront/internal/domain/catalog"
	"github.com/cassiomorais/storefront/internal/domain/checkout"
)

// NewTestProduct returns a product priced at amount in usd.
func NewTestProduct(id, name string, amount int64) *catalog.Product {
	return catalog.NewProduct(id, name, []catalog.PriceQuote{{ID: "price_" + id, UnitAmount: amount, Currency: "usd"}})
}

// NewUnpricedProduct returns a product with no price quotes.
func NewUnpricedProduct(id, name string) *catalog.Product {
	return catalog.NewProduct(id, name, nil)
}

// NewTestCustomer returns a valid customer record.
func NewTestCustomer() checkout.CustomerRecord {
	return checkout.CustomerRecord{Name: "Ann Buyer", Email: "ann@example.com", Address: "1 Main St, Springfield"}
}

// NewReadyAttempt returns a skip-capture attempt holding an intent handle.
func NewReadyAttempt(p *catalog.Product) *checkout.Attempt {
	a, err := checkout.NewAttempt(checkout.ModeSkipCapture, p)
	if err != nil {
		panic(err)
	}
	h, err := checkout.NewPaymentIntentHandle(intentSecret(1), "")
	if err != nil {
		panic(err)
	}
	if err := a.AttachHandle(h); err != nil {
		panic(err)
	}
	return a
}

func intentSecret(n int) string {
	return fmt.Sprintf("pi_test%d_secret_%04d", n, n)
}
