package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/mobilia/backoffice/internal/domain"
	pfirestore "github.com/mobilia/backoffice/internal/platform/firestore"
	"github.com/mobilia/backoffice/internal/repositories"
)

const (
	specialProductsCollection = "specialProducts"
	defaultSpecialProductPage = 50
	// Parallel uploads save images of the same document concurrently.
	imageSaveTxAttempts = 10
)

// SpecialProductRepository stores each composite product aggregate as one document holding the
// ordered combination array.
type SpecialProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[specialProductDocument]
}

var _ repositories.SpecialProductRepository = (*SpecialProductRepository)(nil)

// NewSpecialProductRepository constructs a Firestore-backed composite product repository.
func NewSpecialProductRepository(provider *pfirestore.Provider) (*SpecialProductRepository, error) {
	if provider == nil {
		return nil, errors.New("special product repository requires firestore provider")
	}
	return &SpecialProductRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[specialProductDocument](provider, specialProductsCollection),
	}, nil
}

// Insert creates the aggregate and fails with a conflict when the id is taken.
func (r *SpecialProductRepository) Insert(ctx context.Context, product domain.CompositeProduct) error {
	_, err := r.base.Create(ctx, product.ID, encodeSpecialProduct(product))
	return err
}

func (r *SpecialProductRepository) Update(ctx context.Context, product domain.CompositeProduct) (domain.CompositeProduct, error) {
	ref, err := r.base.Doc(ctx, product.ID)
	if err != nil {
		return domain.CompositeProduct{}, err
	}

	var saved domain.CompositeProduct
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := r.getInTx(tx, ref, "update")
		if err != nil {
			return err
		}
		doc := encodeSpecialProduct(product)
		doc.CreatedAt = current.Data.CreatedAt
		if err := tx.Set(ref, doc); err != nil {
			return pfirestore.WrapError(specialProductsCollection+".update", err)
		}
		saved = doc.decode(ref.ID)
		return nil
	})
	if err != nil {
		return domain.CompositeProduct{}, err
	}
	return saved, nil
}

func (r *SpecialProductRepository) FindByID(ctx context.Context, productID string) (domain.CompositeProduct, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.CompositeProduct{}, err
	}
	return doc.Data.decode(doc.ID), nil
}

// List pages through aggregates ordered by name, then id.
func (r *SpecialProductRepository) List(ctx context.Context, filter repositories.SpecialProductListFilter) (repositories.SpecialProductPage, error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultSpecialProductPage
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		q = q.OrderBy("name", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if filter.AfterID != "" {
			q = q.StartAfter(filter.AfterName, filter.AfterID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return repositories.SpecialProductPage{}, err
	}

	page := repositories.SpecialProductPage{}
	if len(docs) > pageSize {
		docs = docs[:pageSize]
		page.HasMore = true
	}
	page.Items = make([]domain.CompositeProduct, 0, len(docs))
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.decode(doc.ID))
	}
	return page, nil
}

// UpdateCombinationImage sets one combination's final image inside a transaction. Status and every other
// combination are left as stored.
func (r *SpecialProductRepository) UpdateCombinationImage(ctx context.Context, productID string, key domain.CombinationKey, image string, updatedAt time.Time) (domain.CompositeProduct, error) {
	ref, err := r.base.Doc(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.CompositeProduct{}, err
	}

	var saved domain.CompositeProduct
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := r.getInTx(tx, ref, "updateCombinationImage")
		if err != nil {
			return err
		}
		doc := current.Data
		if err := applyCombinationImage(&doc, key, image, updatedAt); err != nil {
			return err
		}
		err = tx.Update(ref, []firestore.Update{
			{Path: "combinations", Value: doc.Combinations},
			{Path: "updatedAt", Value: doc.UpdatedAt},
		})
		if err != nil {
			return pfirestore.WrapError(specialProductsCollection+".updateCombinationImage", err)
		}
		saved = doc.decode(ref.ID)
		return nil
	}, pfirestore.WithTxAttempts(imageSaveTxAttempts))
	if err != nil {
		return domain.CompositeProduct{}, err
	}
	return saved, nil
}

func (r *SpecialProductRepository) getInTx(tx *firestore.Transaction, ref *firestore.DocumentRef, op string) (pfirestore.Document[specialProductDocument], error) {
	snap, err := tx.Get(ref)
	if err != nil {
		return pfirestore.Document[specialProductDocument]{}, pfirestore.WrapError(specialProductsCollection+"."+op, err)
	}
	return pfirestore.Decode[specialProductDocument](snap)
}

func applyCombinationImage(doc *specialProductDocument, key domain.CombinationKey, image string, updatedAt time.Time) error {
	for i := range doc.Combinations {
		if doc.Combinations[i].Key == string(key) {
			doc.Combinations[i].FinalImage = image
			doc.UpdatedAt = updatedAt.UTC()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", repositories.ErrCombinationNotFound, key)
}
