package controller

import (
	"net/http"

	"github.com/cassiomorais/storefront/internal/service"
)

// CatalogController serves the catalog and product detail views.
type CatalogController struct {
	catalog *service.CatalogService
}

func NewCatalogController(catalog *service.CatalogService) *CatalogController {
	return &CatalogController{catalog: catalog}
}

// Catalog handles GET /
func (h *CatalogController) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, FromCatalogView(h.catalog.Catalog(r.Context())))
}

// Purchase handles GET /purchase?productId=
func (h *CatalogController) Purchase(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("productId")
	writeJSON(w, http.StatusOK, FromDetailView(h.catalog.Detail(r.Context(), productID)))
}
