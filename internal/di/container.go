package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mobilia/backoffice/internal/platform/config"
	"github.com/mobilia/backoffice/internal/repositories"
	"github.com/mobilia/backoffice/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog         services.CatalogService
	SpecialProducts services.SpecialProductService
	// Uploads is nil when no object store is configured.
	Uploads services.UploadService
}

// Infrastructure carries the non-repository collaborators of the services. Every field is optional.
type Infrastructure struct {
	Objects   services.ObjectStore
	Publisher services.SpecialProductEventPublisher
	Metrics   services.Metrics
	Logger    func(ctx context.Context, event string, fields map[string]any)
	Clock     func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the Firestore registry,
// while tests can supply in-memory registries.
func NewContainer(cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(cfg, reg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients and registered resources such as the cache connection.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, infra Infrastructure) (Services, error) {
	var svc Services

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: reg.Products(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	specialSvc, err := services.NewSpecialProductService(services.SpecialProductServiceDeps{
		Products:        reg.Products(),
		SpecialProducts: reg.SpecialProducts(),
		Objects:         infra.Objects,
		Publisher:       infra.Publisher,
		Metrics:         infra.Metrics,
		Clock:           infra.Clock,
		Logger:          infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build special product service: %w", err)
	}
	svc.SpecialProducts = specialSvc

	if infra.Objects != nil {
		uploadSvc, err := services.NewUploadService(services.UploadServiceDeps{
			Objects:  infra.Objects,
			Prefix:   cfg.Storage.UploadPrefix,
			MaxBytes: cfg.Storage.MaxUploadBytes,
			Metrics:  infra.Metrics,
			Logger:   infra.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build upload service: %w", err)
		}
		svc.Uploads = uploadSvc
	}

	return svc, nil
}
