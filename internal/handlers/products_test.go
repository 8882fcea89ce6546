package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mobilia/backoffice/internal/domain"
	"github.com/mobilia/backoffice/internal/services"
)

func TestProductHandlers(t *testing.T) {
	catalog := &stubCatalogService{products: []domain.BaseProduct{
		{ID: "tabletop", Name: "Tabletop", Variants: []domain.Variant{{Name: "Size", Value: "S", Stock: intPtr(4), PriceDelta: floatPtr(10)}}},
		{ID: "lamp", Name: "Lamp"},
	}}
	r := chi.NewRouter()
	NewProductHandlers(nil, catalog).Routes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var list productListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(list.Items) != 2 {
		t.Fatalf("expected two products, got %d", len(list.Items))
	}
	first := list.Items[0]
	if first.Variants[0].Stock == nil || *first.Variants[0].Stock != 4 || *first.Variants[0].PriceDelta != 10 {
		t.Fatalf("unexpected variant %+v", first.Variants[0])
	}
	if list.Items[1].Variants == nil {
		t.Fatal("expected variant-less product to render an empty list")
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/lamp", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/sofa", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestProductHandlersUnavailable(t *testing.T) {
	r := chi.NewRouter()
	NewProductHandlers(nil, &stubCatalogService{err: services.ErrCatalogRepositoryUnavailable}).Routes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
