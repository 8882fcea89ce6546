package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mobilia/backoffice/internal/domain"
	"github.com/mobilia/backoffice/internal/platform/auth"
	"github.com/mobilia/backoffice/internal/platform/httpx"
	"github.com/mobilia/backoffice/internal/platform/pagination"
	"github.com/mobilia/backoffice/internal/services"
)

const (
	maxGenerateRequestBody       = 64 * 1024
	maxSpecialProductRequestBody = 1024 * 1024
	maxImageRequestBody          = 4 * 1024
)

// SpecialProductHandlers exposes composite product authoring endpoints.
type SpecialProductHandlers struct {
	authn    *auth.Authenticator
	products services.SpecialProductService
	createMW []func(http.Handler) http.Handler
}

// SpecialProductOption customises SpecialProductHandlers.
type SpecialProductOption func(*SpecialProductHandlers)

// WithCreateMiddlewares wraps POST /special-products, typically with the idempotency middleware.
func WithCreateMiddlewares(mw ...func(http.Handler) http.Handler) SpecialProductOption {
	return func(h *SpecialProductHandlers) {
		h.createMW = append(h.createMW, mw...)
	}
}

// NewSpecialProductHandlers constructs the composite product handlers.
func NewSpecialProductHandlers(authn *auth.Authenticator, svc services.SpecialProductService, opts ...SpecialProductOption) *SpecialProductHandlers {
	h := &SpecialProductHandlers{authn: authn, products: svc}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers /special-products beneath the provided router.
func (h *SpecialProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	route := r
	if h.authn != nil {
		route = route.With(h.authn.RequireFirebaseAuth())
	}

	route.Post("/special-products/generate-combinations", h.generateCombinations)
	route.Get("/special-products", h.listSpecialProducts)
	route.Get("/special-products/{productId}", h.getSpecialProduct)
	route.Put("/special-products/{productId}", h.updateSpecialProduct)
	route.Put("/special-products/{productId}/combinations/{key}/image", h.saveCombinationImage)

	create := route
	for _, mw := range h.createMW {
		if mw != nil {
			create = create.With(mw)
		}
	}
	create.Post("/special-products", h.createSpecialProduct)
}

type generateCombinationsRequest struct {
	ProductAID        string           `json:"productAId"`
	ProductBID        string           `json:"productBId"`
	SelectedVariantsA []variantPayload `json:"selectedVariantsA"`
	SelectedVariantsB []variantPayload `json:"selectedVariantsB"`
}

type generateCombinationsResponse struct {
	ProductA     baseProductPayload  `json:"productA"`
	ProductB     baseProductPayload  `json:"productB"`
	Combinations []descriptorPayload `json:"combinations"`
}

type specialProductListResponse struct {
	Items         []specialProductPayload `json:"items"`
	NextPageToken string                  `json:"nextPageToken,omitempty"`
}

type combinationImageRequest struct {
	FinalImage string `json:"finalImage"`
}

func (h *SpecialProductHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.products != nil {
		return true
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "special product service not available", http.StatusServiceUnavailable))
	return false
}

func (h *SpecialProductHandlers) generateCombinations(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	ctx := r.Context()

	var req generateCombinationsRequest
	if !decodeJSONBody(w, r, maxGenerateRequestBody, &req) {
		return
	}

	result, err := h.products.GenerateCombinations(ctx, services.GenerateCombinationsCommand{
		ProductAID: req.ProductAID,
		ProductBID: req.ProductBID,
		SelectionA: variantsFromPayload(req.SelectedVariantsA),
		SelectionB: variantsFromPayload(req.SelectedVariantsB),
	})
	if err != nil {
		writeSpecialProductError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, generateCombinationsResponse{
		ProductA:     buildBaseProductPayload(result.ProductA),
		ProductB:     buildBaseProductPayload(result.ProductB),
		Combinations: buildDescriptorPayloads(result.Combinations),
	})
}

func (h *SpecialProductHandlers) createSpecialProduct(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	ctx := r.Context()

	var req specialProductPayload
	if !decodeJSONBody(w, r, maxSpecialProductRequestBody, &req) {
		return
	}

	saved, err := h.products.Create(ctx, services.SaveSpecialProductCommand{
		Product: compositeFromPayload(req),
		ActorID: actorID(ctx),
	})
	if err != nil {
		writeSpecialProductError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/special-products/"+saved.ID)
	writeJSONResponse(w, http.StatusCreated, buildSpecialProductPayload(saved))
}

func (h *SpecialProductHandlers) updateSpecialProduct(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	ctx := r.Context()
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "special product id is required", http.StatusBadRequest))
		return
	}

	var req specialProductPayload
	if !decodeJSONBody(w, r, maxSpecialProductRequestBody, &req) {
		return
	}
	if id := strings.TrimSpace(req.ID); id != "" && id != productID {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "body id does not match path", http.StatusBadRequest))
		return
	}

	saved, err := h.products.Update(ctx, services.SaveSpecialProductCommand{
		ProductID: productID,
		Product:   compositeFromPayload(req),
		ActorID:   actorID(ctx),
	})
	if err != nil {
		writeSpecialProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSpecialProductPayload(saved))
}

func (h *SpecialProductHandlers) getSpecialProduct(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	ctx := r.Context()
	product, err := h.products.Get(ctx, chi.URLParam(r, "productId"))
	if err != nil {
		writeSpecialProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSpecialProductPayload(product))
}

func (h *SpecialProductHandlers) listSpecialProducts(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	ctx := r.Context()

	params, err := pagination.Parse(r)
	if err != nil {
		writeSpecialProductError(ctx, w, err)
		return
	}
	filter := services.SpecialProductListFilter{Pagination: params}
	if raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))); raw != "" {
		status := domain.CompositeStatus(raw)
		filter.Status = &status
	}

	page, err := h.products.List(ctx, filter)
	if err != nil {
		writeSpecialProductError(ctx, w, err)
		return
	}
	items := make([]specialProductPayload, 0, len(page.Items))
	for _, p := range page.Items {
		items = append(items, buildSpecialProductPayload(p))
	}
	writeJSONResponse(w, http.StatusOK, specialProductListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *SpecialProductHandlers) saveCombinationImage(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	ctx := r.Context()

	var req combinationImageRequest
	if !decodeJSONBody(w, r, maxImageRequestBody, &req) {
		return
	}

	saved, err := h.products.SaveCombinationImage(ctx, services.SaveCombinationImageCommand{
		ProductID: chi.URLParam(r, "productId"),
		Key:       domain.CombinationKey(chi.URLParam(r, "key")),
		Image:     req.FinalImage,
		ActorID:   actorID(ctx),
	})
	if err != nil {
		writeSpecialProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSpecialProductPayload(saved))
}
