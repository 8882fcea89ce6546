package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/mobilia/backoffice/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	SpecialProducts() SpecialProductRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ErrCombinationNotFound is returned when a combination key is not part of the stored aggregate.
var ErrCombinationNotFound = errors.New("repositories: combination not found")

// ProductRepository reads base products from the catalog. The catalog is owned elsewhere; this service never
// writes it.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.BaseProduct, error)
	List(ctx context.Context, filter ProductListFilter) ([]domain.BaseProduct, error)
}

// SpecialProductRepository persists composite product aggregates as single documents.
type SpecialProductRepository interface {
	Insert(ctx context.Context, product domain.CompositeProduct) error
	// Update replaces the aggregate. The stored CreatedAt is preserved.
	Update(ctx context.Context, product domain.CompositeProduct) (domain.CompositeProduct, error)
	FindByID(ctx context.Context, productID string) (domain.CompositeProduct, error)
	List(ctx context.Context, filter SpecialProductListFilter) (SpecialProductPage, error)
	// UpdateCombinationImage sets the final image of one combination without touching anything else.
	UpdateCombinationImage(ctx context.Context, productID string, key domain.CombinationKey, image string, updatedAt time.Time) (domain.CompositeProduct, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type ProductListFilter struct {
	// IDs restricts the result to the given products when non-empty.
	IDs []string
}

type SpecialProductListFilter struct {
	Status    *domain.CompositeStatus
	PageSize  int
	AfterName string
	AfterID   string
}

type SpecialProductPage struct {
	Items []domain.CompositeProduct
	// HasMore reports whether another page follows the last item.
	HasMore bool
}
