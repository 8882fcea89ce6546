package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mobilia/backoffice/internal/domain"
	"github.com/mobilia/backoffice/internal/repositories"
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products repositories.ProductRepository
}

type catalogService struct {
	products repositories.ProductRepository
}

// NewCatalogService constructs the read-only catalog service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	return &catalogService{products: deps.Products}, nil
}

func (s *catalogService) ListProducts(ctx context.Context) ([]domain.BaseProduct, error) {
	products, err := s.products.List(ctx, repositories.ProductListFilter{})
	if err != nil {
		return nil, translateCatalogError(err)
	}
	if products == nil {
		products = []domain.BaseProduct{}
	}
	return products, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (domain.BaseProduct, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.BaseProduct{}, fmt.Errorf("%w: product id is required", ErrCatalogProductNotFound)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return domain.BaseProduct{}, translateCatalogError(err)
	}
	return product, nil
}

func translateCatalogError(err error) error {
	switch classifyRepositoryError(err) {
	case repoErrNotFound:
		return fmt.Errorf("%w: %v", ErrCatalogProductNotFound, err)
	case repoErrUnavailable:
		return fmt.Errorf("%w: %v", ErrCatalogRepositoryUnavailable, err)
	default:
		return err
	}
}
