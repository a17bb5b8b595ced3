package service

import (
	"context"
	"errors"

	"github.com/cassiomorais/storefront/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/rs/zerolog"
)

// CatalogService reads products for the catalog and detail views. Failures
// never escape: they degrade the view instead.
type CatalogService struct {
	backend Backend
	logger  zerolog.Logger
}

func NewCatalogService(backend Backend, logger zerolog.Logger) *CatalogService {
	return &CatalogService{backend: backend, logger: logger}
}

// CatalogView is the product listing. Degraded is set when the backend could
// not be reached and the list is empty for that reason.
type CatalogView struct {
	Products []*catalog.Product
	Degraded bool
}

// DetailView describes one product. Product is nil when no id was given or
// the id did not resolve.
type DetailView struct {
	Product         *catalog.Product
	Quote           *catalog.PriceQuote
	CheckoutEnabled bool
	Degraded        bool
}

func (s *CatalogService) Catalog(ctx context.Context) *CatalogView {
	products, err := s.backend.ListProducts(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Catalog unavailable, rendering degraded view")
		return &CatalogView{Products: []*catalog.Product{}, Degraded: true}
	}
	return &CatalogView{Products: products}
}

func (s *CatalogService) Detail(ctx context.Context, productID string) *DetailView {
	if productID == "" {
		return &DetailView{}
	}

	p, err := s.backend.GetProduct(ctx, productID)
	switch {
	case errors.Is(err, domainErrors.ErrNotFound):
		s.logger.Info().Str("product_id", productID).Msg("Product not found")
		return &DetailView{}
	case err != nil:
		s.logger.Warn().Err(err).Str("product_id", productID).Msg("Product detail unavailable")
		return &DetailView{Degraded: true}
	}

	view := &DetailView{Product: p}
	if q, err := p.DefaultQuote(); err == nil {
		view.Quote = &q
		view.CheckoutEnabled = true
	}
	return view
}
