package firestore

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/mobilia/backoffice/internal/domain"
	pfirestore "github.com/mobilia/backoffice/internal/platform/firestore"
	"github.com/mobilia/backoffice/internal/repositories"
)

const productsCollection = "products"

// Firestore limits "in" filters on document ids to 30 values per query.
const maxIDsPerQuery = 30

// ProductRepository reads base products from the catalog collection.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.BaseProduct, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.BaseProduct{}, err
	}
	return doc.Data.decode(doc.ID), nil
}

// List returns products ordered by name. Requested ids that do not exist are skipped.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.BaseProduct, error) {
	if len(filter.IDs) == 0 {
		docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.OrderBy("name", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		})
		if err != nil {
			return nil, err
		}
		return decodeProducts(docs), nil
	}

	coll, err := r.base.Collection(ctx)
	if err != nil {
		return nil, err
	}
	var products []domain.BaseProduct
	ids := uniqueIDs(filter.IDs)
	for start := 0; start < len(ids); start += maxIDsPerQuery {
		end := min(start+maxIDsPerQuery, len(ids))
		refs := make([]*firestore.DocumentRef, 0, end-start)
		for _, id := range ids[start:end] {
			refs = append(refs, coll.Doc(id))
		}
		docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where(firestore.DocumentID, "in", refs)
		})
		if err != nil {
			return nil, err
		}
		products = append(products, decodeProducts(docs)...)
	}
	sortProducts(products)
	return products, nil
}

func decodeProducts(docs []pfirestore.Document[productDocument]) []domain.BaseProduct {
	products := make([]domain.BaseProduct, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.Data.decode(doc.ID))
	}
	return products
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || strings.Contains(id, "/") {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortProducts(products []domain.BaseProduct) {
	slices.SortFunc(products, func(a, b domain.BaseProduct) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
