package di

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/mobilia/backoffice/internal/domain"
	"github.com/mobilia/backoffice/internal/platform/config"
	"github.com/mobilia/backoffice/internal/platform/storage"
	"github.com/mobilia/backoffice/internal/repositories"
)

type stubRegistry struct {
	closed int
}

func (r *stubRegistry) Close(context.Context) error {
	r.closed++
	return nil
}

func (r *stubRegistry) Products() repositories.ProductRepository { return stubProducts{} }

func (r *stubRegistry) SpecialProducts() repositories.SpecialProductRepository {
	return stubSpecialProducts{}
}

func (r *stubRegistry) Health() repositories.HealthRepository { return nil }

type stubProducts struct{}

func (stubProducts) FindByID(context.Context, string) (domain.BaseProduct, error) {
	return domain.BaseProduct{}, nil
}

func (stubProducts) List(context.Context, repositories.ProductListFilter) ([]domain.BaseProduct, error) {
	return nil, nil
}

type stubSpecialProducts struct{}

func (stubSpecialProducts) Insert(context.Context, domain.CompositeProduct) error { return nil }

func (stubSpecialProducts) Update(_ context.Context, p domain.CompositeProduct) (domain.CompositeProduct, error) {
	return p, nil
}

func (stubSpecialProducts) FindByID(context.Context, string) (domain.CompositeProduct, error) {
	return domain.CompositeProduct{}, nil
}

func (stubSpecialProducts) List(context.Context, repositories.SpecialProductListFilter) (repositories.SpecialProductPage, error) {
	return repositories.SpecialProductPage{}, nil
}

func (stubSpecialProducts) UpdateCombinationImage(context.Context, string, domain.CombinationKey, string, time.Time) (domain.CompositeProduct, error) {
	return domain.CompositeProduct{}, nil
}

type stubObjects struct{}

func (stubObjects) Put(_ context.Context, object, contentType string, _ io.Reader, _ int64) (storage.Object, error) {
	return storage.Object{Name: object, ContentType: contentType}, nil
}

func (stubObjects) Exists(context.Context, string) (bool, error) { return true, nil }

func (stubObjects) PublicURL(object string) string { return "https://cdn.example.com/" + object }

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(config.Config{}, nil, Infrastructure{}); err == nil {
		t.Fatal("expected error for nil registry")
	}
}

func TestNewContainerWithoutObjectStore(t *testing.T) {
	reg := &stubRegistry{}
	c, err := NewContainer(config.Config{}, reg, Infrastructure{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Services.Catalog == nil || c.Services.SpecialProducts == nil {
		t.Fatalf("expected catalog and special product services, got %+v", c.Services)
	}
	if c.Services.Uploads != nil {
		t.Fatal("expected uploads to stay disabled without an object store")
	}

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if reg.closed != 1 {
		t.Fatalf("expected registry to be closed once, got %d", reg.closed)
	}
}

func TestNewContainerWiresUploads(t *testing.T) {
	cfg := config.Config{Storage: config.StorageConfig{UploadPrefix: "uploads", MaxUploadBytes: 1 << 20}}
	c, err := NewContainer(cfg, &stubRegistry{}, Infrastructure{Objects: stubObjects{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Services.Uploads == nil {
		t.Fatal("expected upload service")
	}
}

func TestNilContainerClose(t *testing.T) {
	var c *Container
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
