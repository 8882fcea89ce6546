package services

import (
	"context"
	"io"
	"time"

	"github.com/mobilia/backoffice/internal/domain"
	"github.com/mobilia/backoffice/internal/platform/pagination"
	"github.com/mobilia/backoffice/internal/platform/storage"
)

// CatalogService exposes base products that can be paired into composite products.
type CatalogService interface {
	ListProducts(ctx context.Context) ([]domain.BaseProduct, error)
	GetProduct(ctx context.Context, productID string) (domain.BaseProduct, error)
}

// SpecialProductService runs the server side of composite product authoring.
type SpecialProductService interface {
	GenerateCombinations(ctx context.Context, cmd GenerateCombinationsCommand) (GenerateCombinationsResult, error)
	Create(ctx context.Context, cmd SaveSpecialProductCommand) (domain.CompositeProduct, error)
	Update(ctx context.Context, cmd SaveSpecialProductCommand) (domain.CompositeProduct, error)
	Get(ctx context.Context, productID string) (domain.CompositeProduct, error)
	List(ctx context.Context, filter SpecialProductListFilter) (pagination.Page[domain.CompositeProduct], error)
	SaveCombinationImage(ctx context.Context, cmd SaveCombinationImageCommand) (domain.CompositeProduct, error)
}

// UploadService stores combination images.
type UploadService interface {
	UploadSpecialProductImage(ctx context.Context, cmd UploadImageCommand) (UploadResult, error)
}

// ObjectStore is the subset of the storage client used by the services.
type ObjectStore interface {
	Put(ctx context.Context, object, contentType string, body io.Reader, maxBytes int64) (storage.Object, error)
	Exists(ctx context.Context, object string) (bool, error)
	PublicURL(object string) string
}

// SpecialProductEventPublisher announces saved composite products to downstream consumers.
type SpecialProductEventPublisher interface {
	PublishSpecialProductEvent(ctx context.Context, event SpecialProductEvent) (string, error)
}

// Metrics receives domain counters. *observability.Metrics satisfies it.
type Metrics interface {
	CombinationsGenerated(count int)
	UploadCompleted(outcome string)
	SaveCompleted(operation string, err error)
}

const (
	EventSpecialProductCreated = "special_product.created"
	EventSpecialProductUpdated = "special_product.updated"
)

// SpecialProductEvent is published after a composite product aggregate is saved.
type SpecialProductEvent struct {
	Type         string    `json:"type"`
	ProductID    string    `json:"productId"`
	Status       string    `json:"status"`
	Combinations int       `json:"combinations"`
	Actor        string    `json:"actor,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// GenerateCombinationsCommand requests a combination preview. A nil selection means the side was not
// provided; an empty non-nil selection is an explicit empty choice.
type GenerateCombinationsCommand struct {
	ProductAID string
	ProductBID string
	SelectionA []domain.Variant
	SelectionB []domain.Variant
}

// GenerateCombinationsResult echoes the resolved base products next to the generated descriptors.
type GenerateCombinationsResult struct {
	ProductA     domain.BaseProduct
	ProductB     domain.BaseProduct
	Combinations []domain.CombinationDescriptor
}

// SaveSpecialProductCommand carries a full aggregate for create or update. Product.ID is ignored on
// create and replaced by ProductID on update.
type SaveSpecialProductCommand struct {
	ProductID string
	Product   domain.CompositeProduct
	ActorID   string
}

// SpecialProductListFilter narrows listings.
type SpecialProductListFilter struct {
	Status     *domain.CompositeStatus
	Pagination pagination.Params
}

// SaveCombinationImageCommand sets the final image of one combination of a stored aggregate.
type SaveCombinationImageCommand struct {
	ProductID string
	Key       domain.CombinationKey
	Image     string
	ActorID   string
}

// UploadImageCommand is one image upload. Size is the declared size and may be zero when unknown.
type UploadImageCommand struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
	ActorID     string
}

// UploadResult points at the stored object.
type UploadResult struct {
	Path        string
	URL         string
	ContentType string
	Size        int64
}
