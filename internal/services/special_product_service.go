package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mobilia/backoffice/internal/composite"
	"github.com/mobilia/backoffice/internal/domain"
	"github.com/mobilia/backoffice/internal/platform/pagination"
	"github.com/mobilia/backoffice/internal/platform/textutil"
	"github.com/mobilia/backoffice/internal/repositories"
)

const (
	specialProductEventGenerated     = "special_product.generate"
	specialProductEventSaved         = "special_product.saved"
	specialProductEventImageSaved    = "special_product.image_saved"
	specialProductEventPublishFailed = "special_product.publish_failed"

	maxSpecialProductNameLength = 200
)

// SpecialProductServiceDeps wires dependencies for the special product service.
type SpecialProductServiceDeps struct {
	Products        repositories.ProductRepository
	SpecialProducts repositories.SpecialProductRepository
	// Objects is optional. When set, intermediate image saves must reference an existing object.
	Objects   ObjectStore
	Publisher SpecialProductEventPublisher
	Metrics   Metrics
	Clock     func() time.Time
	IDGen     func() string
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type specialProductService struct {
	products  repositories.ProductRepository
	repo      repositories.SpecialProductRepository
	objects   ObjectStore
	publisher SpecialProductEventPublisher
	metrics   Metrics
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewSpecialProductService constructs the special product service.
func NewSpecialProductService(deps SpecialProductServiceDeps) (SpecialProductService, error) {
	if deps.Products == nil {
		return nil, errors.New("special product service: product repository is required")
	}
	if deps.SpecialProducts == nil {
		return nil, errors.New("special product service: special product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGen
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &specialProductService{
		products:  deps.Products,
		repo:      deps.SpecialProducts,
		objects:   deps.Objects,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		clock:     func() time.Time { return clock().UTC() },
		newID:     newID,
		logger:    logger,
	}, nil
}

func (s *specialProductService) GenerateCombinations(ctx context.Context, cmd GenerateCombinationsCommand) (GenerateCombinationsResult, error) {
	idA := strings.TrimSpace(cmd.ProductAID)
	idB := strings.TrimSpace(cmd.ProductBID)
	if idA == "" || idB == "" {
		return GenerateCombinationsResult{}, invalidInput(&composite.ValidationError{
			Condition: composite.ConditionBaseProductsMissing,
			Message:   "productAId and productBId are required",
		})
	}
	if idA == idB {
		return GenerateCombinationsResult{}, invalidInput(&composite.IdenticalProductError{ProductID: idA})
	}

	productA, err := s.baseProduct(ctx, idA)
	if err != nil {
		return GenerateCombinationsResult{}, err
	}
	productB, err := s.baseProduct(ctx, idB)
	if err != nil {
		return GenerateCombinationsResult{}, err
	}

	descriptors, err := composite.Generate(productA, productB, cmd.SelectionA, cmd.SelectionB)
	if err != nil {
		return GenerateCombinationsResult{}, invalidInput(err)
	}
	if s.metrics != nil {
		s.metrics.CombinationsGenerated(len(descriptors))
	}
	s.logger(ctx, specialProductEventGenerated, map[string]any{
		"productA":     idA,
		"productB":     idB,
		"combinations": len(descriptors),
	})
	return GenerateCombinationsResult{
		ProductA:     productA,
		ProductB:     productB,
		Combinations: descriptors,
	}, nil
}

func (s *specialProductService) Create(ctx context.Context, cmd SaveSpecialProductCommand) (domain.CompositeProduct, error) {
	product, err := s.prepare(cmd.Product)
	if err != nil {
		return domain.CompositeProduct{}, err
	}
	if err := s.ensureBaseProducts(ctx, product); err != nil {
		return domain.CompositeProduct{}, err
	}
	if err := s.ensureImagesUploaded(ctx, product); err != nil {
		return domain.CompositeProduct{}, err
	}

	now := s.clock()
	product.ID = s.newID()
	product.CreatedAt = now
	product.UpdatedAt = now

	err = s.repo.Insert(ctx, product)
	s.recordSave("create", err)
	if err != nil {
		return domain.CompositeProduct{}, s.translateRepositoryError(err)
	}

	s.afterSave(ctx, EventSpecialProductCreated, product, cmd.ActorID)
	return product, nil
}

func (s *specialProductService) Update(ctx context.Context, cmd SaveSpecialProductCommand) (domain.CompositeProduct, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return domain.CompositeProduct{}, fmt.Errorf("%w: product id is required", ErrSpecialProductInvalidInput)
	}
	product, err := s.prepare(cmd.Product)
	if err != nil {
		return domain.CompositeProduct{}, err
	}

	existing, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return domain.CompositeProduct{}, s.translateRepositoryError(err)
	}
	if existing.BaseProductA != product.BaseProductA || existing.BaseProductB != product.BaseProductB {
		if err := s.ensureBaseProducts(ctx, product); err != nil {
			return domain.CompositeProduct{}, err
		}
	}
	if err := s.ensureImagesUploaded(ctx, product); err != nil {
		return domain.CompositeProduct{}, err
	}

	product.ID = productID
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.clock()

	saved, err := s.repo.Update(ctx, product)
	s.recordSave("update", err)
	if err != nil {
		return domain.CompositeProduct{}, s.translateRepositoryError(err)
	}

	s.afterSave(ctx, EventSpecialProductUpdated, saved, cmd.ActorID)
	return saved, nil
}

func (s *specialProductService) Get(ctx context.Context, productID string) (domain.CompositeProduct, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CompositeProduct{}, fmt.Errorf("%w: product id is required", ErrSpecialProductInvalidInput)
	}
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return domain.CompositeProduct{}, s.translateRepositoryError(err)
	}
	return product, nil
}

func (s *specialProductService) List(ctx context.Context, filter SpecialProductListFilter) (pagination.Page[domain.CompositeProduct], error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return pagination.Page[domain.CompositeProduct]{}, fmt.Errorf("%w: unknown status %q", ErrSpecialProductInvalidInput, *filter.Status)
	}
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	page, err := s.repo.List(ctx, repositories.SpecialProductListFilter{
		Status:    filter.Status,
		PageSize:  min(pageSize, pagination.MaxPageSize),
		AfterName: filter.Pagination.Cursor.Name,
		AfterID:   filter.Pagination.Cursor.ID,
	})
	if err != nil {
		return pagination.Page[domain.CompositeProduct]{}, s.translateRepositoryError(err)
	}

	result := pagination.Page[domain.CompositeProduct]{Items: page.Items}
	if result.Items == nil {
		result.Items = []domain.CompositeProduct{}
	}
	if page.HasMore && len(page.Items) > 0 {
		last := page.Items[len(page.Items)-1]
		result.NextPageToken = pagination.EncodeToken(pagination.Cursor{Name: last.Name, ID: last.ID})
	}
	return result, nil
}

func (s *specialProductService) SaveCombinationImage(ctx context.Context, cmd SaveCombinationImageCommand) (domain.CompositeProduct, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	key := domain.CombinationKey(strings.TrimSpace(string(cmd.Key)))
	image := strings.TrimSpace(cmd.Image)
	switch {
	case productID == "":
		return domain.CompositeProduct{}, fmt.Errorf("%w: product id is required", ErrSpecialProductInvalidInput)
	case key == "":
		return domain.CompositeProduct{}, fmt.Errorf("%w: combination key is required", ErrSpecialProductInvalidInput)
	case image == "":
		return domain.CompositeProduct{}, invalidInput(&composite.ValidationError{
			Condition: composite.ConditionImageMissing,
			Message:   "finalImage is required",
		})
	}

	if s.objects != nil {
		exists, err := s.objects.Exists(ctx, image)
		if err != nil {
			return domain.CompositeProduct{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
		}
		if !exists {
			return domain.CompositeProduct{}, invalidInput(&composite.ValidationError{
				Condition: composite.ConditionImageMissing,
				Message:   fmt.Sprintf("image %q has not been uploaded", image),
			})
		}
	}

	saved, err := s.repo.UpdateCombinationImage(ctx, productID, key, image, s.clock())
	s.recordSave("combination_image", err)
	if err != nil {
		if errors.Is(err, repositories.ErrCombinationNotFound) {
			return domain.CompositeProduct{}, fmt.Errorf("%w: %s", ErrSpecialProductCombinationNotFound, key)
		}
		return domain.CompositeProduct{}, s.translateRepositoryError(err)
	}
	s.logger(ctx, specialProductEventImageSaved, map[string]any{
		"productId": productID,
		"key":       string(key),
		"actorId":   strings.TrimSpace(cmd.ActorID),
	})
	return saved, nil
}

// prepare canonicalises the aggregate, sanitises its free text and validates its invariants.
func (s *specialProductService) prepare(product domain.CompositeProduct) (domain.CompositeProduct, error) {
	product = composite.Canonicalize(product)
	product.Name = textutil.PlainText(product.Name)
	product.Description = textutil.SanitizeDescription(product.Description)
	if product.Status == "" {
		product.Status = domain.CompositeStatusHidden
	}
	if len([]rune(product.Name)) > maxSpecialProductNameLength {
		return domain.CompositeProduct{}, invalidInput(&composite.ValidationError{
			Condition: composite.ConditionDetailsInvalid,
			Message:   fmt.Sprintf("name must be at most %d characters", maxSpecialProductNameLength),
		})
	}
	if err := composite.ValidateAggregate(product); err != nil {
		return domain.CompositeProduct{}, invalidInput(err)
	}
	return product, nil
}

// ensureImagesUploaded checks each distinct image reference once and reports every combination whose
// image is absent from the object store.
func (s *specialProductService) ensureImagesUploaded(ctx context.Context, product domain.CompositeProduct) error {
	if s.objects == nil {
		return nil
	}
	found := make(map[string]bool)
	var missing []int
	for i, record := range product.Combinations {
		exists, checked := found[record.FinalImage]
		if !checked {
			var err error
			exists, err = s.objects.Exists(ctx, record.FinalImage)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUploadFailed, err)
			}
			found[record.FinalImage] = exists
		}
		if !exists {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return invalidInput(&composite.ValidationError{
		Condition: composite.ConditionImageMissing,
		Message:   fmt.Sprintf("images for combinations %v have not been uploaded", missing),
		Indices:   missing,
	})
}

func (s *specialProductService) ensureBaseProducts(ctx context.Context, product domain.CompositeProduct) error {
	for _, id := range []string{product.BaseProductA, product.BaseProductB} {
		if _, err := s.baseProduct(ctx, id); err != nil {
			if errors.Is(err, ErrCatalogProductNotFound) {
				return invalidInput(&composite.ValidationError{
					Condition: composite.ConditionBaseProductsMissing,
					Message:   fmt.Sprintf("base product %q does not exist", id),
				})
			}
			return err
		}
	}
	return nil
}

func (s *specialProductService) baseProduct(ctx context.Context, id string) (domain.BaseProduct, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return domain.BaseProduct{}, translateCatalogError(err)
	}
	return product, nil
}

func (s *specialProductService) afterSave(ctx context.Context, eventType string, product domain.CompositeProduct, actorID string) {
	actorID = strings.TrimSpace(actorID)
	s.logger(ctx, specialProductEventSaved, map[string]any{
		"productId":    product.ID,
		"event":        eventType,
		"status":       string(product.Status),
		"combinations": len(product.Combinations),
		"actorId":      actorID,
	})
	if s.publisher == nil {
		return
	}
	event := SpecialProductEvent{
		Type:         eventType,
		ProductID:    product.ID,
		Status:       string(product.Status),
		Combinations: len(product.Combinations),
		Actor:        actorID,
		OccurredAt:   product.UpdatedAt,
	}
	if _, err := s.publisher.PublishSpecialProductEvent(ctx, event); err != nil {
		s.logger(ctx, specialProductEventPublishFailed, map[string]any{
			"productId": product.ID,
			"error":     err,
		})
	}
}

func (s *specialProductService) recordSave(operation string, err error) {
	if s.metrics != nil {
		s.metrics.SaveCompleted(operation, err)
	}
}

func (s *specialProductService) translateRepositoryError(err error) error {
	switch classifyRepositoryError(err) {
	case repoErrNotFound:
		return fmt.Errorf("%w: %v", ErrSpecialProductNotFound, err)
	case repoErrConflict:
		return fmt.Errorf("%w: %v", ErrSpecialProductConflict, err)
	case repoErrUnavailable:
		return fmt.Errorf("%w: %v", ErrSpecialProductRepositoryUnavailable, err)
	default:
		return err
	}
}

// invalidInput tags err with ErrSpecialProductInvalidInput while keeping it matchable with errors.As.
func invalidInput(err error) error {
	return fmt.Errorf("%w: %w", ErrSpecialProductInvalidInput, err)
}
