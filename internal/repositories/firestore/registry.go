package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/mobilia/backoffice/internal/platform/firestore"
	"github.com/mobilia/backoffice/internal/repositories"
)

// RegistryOption customises the Firestore registry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	decorateProducts func(repositories.ProductRepository) (repositories.ProductRepository, error)
	checks           []repositories.DependencyCheck
	closers          []func() error
}

// WithProductDecorator wraps the product repository, for example with a cache.
func WithProductDecorator(fn func(repositories.ProductRepository) (repositories.ProductRepository, error)) RegistryOption {
	return func(cfg *registryConfig) { cfg.decorateProducts = fn }
}

// WithHealthChecks adds dependency probes next to the Firestore one.
func WithHealthChecks(checks ...repositories.DependencyCheck) RegistryOption {
	return func(cfg *registryConfig) { cfg.checks = append(cfg.checks, checks...) }
}

// WithCloser registers a resource released by Close after the Firestore client.
func WithCloser(fn func() error) RegistryOption {
	return func(cfg *registryConfig) {
		if fn != nil {
			cfg.closers = append(cfg.closers, fn)
		}
	}
}

// Registry bundles the Firestore-backed repositories.
type Registry struct {
	provider        *pfirestore.Provider
	products        repositories.ProductRepository
	specialProducts repositories.SpecialProductRepository
	health          repositories.HealthRepository
	closers         []func() error
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository on top of provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	var cfg registryConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	productRepo, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	var products repositories.ProductRepository = productRepo
	if cfg.decorateProducts != nil {
		if products, err = cfg.decorateProducts(products); err != nil {
			return nil, err
		}
	}

	specialProducts, err := NewSpecialProductRepository(provider)
	if err != nil {
		return nil, err
	}

	checks := append([]repositories.DependencyCheck{{
		Name:     "firestore",
		Critical: true,
		Check:    provider.Ping,
	}}, cfg.checks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:        provider,
		products:        products,
		specialProducts: specialProducts,
		health:          health,
		closers:         cfg.closers,
	}, nil
}

func (r *Registry) Products() repositories.ProductRepository { return r.products }

func (r *Registry) SpecialProducts() repositories.SpecialProductRepository {
	return r.specialProducts
}

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// Close releases the Firestore client and any registered resources.
func (r *Registry) Close(context.Context) error {
	errs := []error{r.provider.Close()}
	for _, closer := range r.closers {
		errs = append(errs, closer())
	}
	return errors.Join(errs...)
}
