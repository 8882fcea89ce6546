package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mobilia/backoffice/internal/platform/auth"
	"github.com/mobilia/backoffice/internal/platform/httpx"
	"github.com/mobilia/backoffice/internal/services"
)

// ProductHandlers serves the base products that staff pair into composite products.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewProductHandlers constructs the base product handlers.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{authn: authn, catalog: catalog}
}

// Routes registers /products beneath the provided router.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	route := r
	if h.authn != nil {
		route = route.With(h.authn.RequireFirebaseAuth())
	}
	route.Get("/products", h.listProducts)
	route.Get("/products/{productId}", h.getProduct)
}

type productListResponse struct {
	Items []baseProductPayload `json:"items"`
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "catalog service not available", http.StatusServiceUnavailable))
		return
	}
	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	items := make([]baseProductPayload, 0, len(products))
	for _, p := range products {
		items = append(items, buildBaseProductPayload(p))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{Items: items})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "catalog service not available", http.StatusServiceUnavailable))
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildBaseProductPayload(product))
}
