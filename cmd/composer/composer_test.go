package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mobilia/backoffice/internal/client"
	"github.com/mobilia/backoffice/internal/composite"
	"github.com/mobilia/backoffice/internal/domain"
)

type fakeAPI struct {
	composite.LocalGenerator

	mu         sync.Mutex
	products   map[string]domain.BaseProduct
	stored     map[string]domain.CompositeProduct
	uploads    []string
	createKeys []string
	createErrs []error
	imageSaves []domain.CombinationKey
	updates    int
}

func newFakeAPI() *fakeAPI {
	price := 120.0
	return &fakeAPI{
		products: map[string]domain.BaseProduct{
			"table": {ID: "table", Name: "Oak Table", Variants: []domain.Variant{
				{Name: "Size", Value: "S"},
				{Name: "Size", Value: "M", PriceDelta: &price},
			}},
			"lamp": {ID: "lamp", Name: "Desk Lamp"},
		},
		stored: map[string]domain.CompositeProduct{},
	}
}

func (f *fakeAPI) Product(_ context.Context, id string) (domain.BaseProduct, error) {
	p, ok := f.products[id]
	if !ok {
		return domain.BaseProduct{}, &client.APIError{Status: http.StatusNotFound, Code: "product_not_found"}
	}
	return p, nil
}

func (f *fakeAPI) ListProducts(context.Context) ([]domain.BaseProduct, error) {
	return []domain.BaseProduct{f.products["lamp"], f.products["table"]}, nil
}

func (f *fakeAPI) GenerateCombinations(ctx context.Context, aID, bID string, selA, selB []domain.Variant) (client.GenerateResult, error) {
	a, err := f.Product(ctx, aID)
	if err != nil {
		return client.GenerateResult{}, err
	}
	b, err := f.Product(ctx, bID)
	if err != nil {
		return client.GenerateResult{}, err
	}
	descs, err := composite.Generate(a, b, selA, selB)
	if err != nil {
		return client.GenerateResult{}, err
	}
	return client.GenerateResult{ProductA: a, ProductB: b, Combinations: descs}, nil
}

func (f *fakeAPI) Upload(_ context.Context, asset composite.ImageAsset) (string, error) {
	if _, err := io.Copy(io.Discard, asset.Body); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, asset.FileName)
	return "special-products/uploads/" + asset.FileName, nil
}

func (f *fakeAPI) Create(ctx context.Context, p domain.CompositeProduct) (domain.CompositeProduct, error) {
	return f.CreateWithKey(ctx, p, "")
}

func (f *fakeAPI) CreateWithKey(_ context.Context, p domain.CompositeProduct, key string) (domain.CompositeProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createKeys = append(f.createKeys, key)
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		return domain.CompositeProduct{}, err
	}
	p.ID = fmt.Sprintf("sp-%d", len(f.stored)+1)
	p.CreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p.UpdatedAt = p.CreatedAt
	f.stored[p.ID] = p
	return p, nil
}

func (f *fakeAPI) Update(_ context.Context, p domain.CompositeProduct) (domain.CompositeProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.stored[p.ID] = p
	return p, nil
}

func (f *fakeAPI) SaveCombinationImage(_ context.Context, productID string, key domain.CombinationKey, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageSaves = append(f.imageSaves, key)
	return nil
}

func (f *fakeAPI) Get(_ context.Context, id string) (domain.CompositeProduct, error) {
	p, ok := f.stored[id]
	if !ok {
		return domain.CompositeProduct{}, &client.APIError{Status: http.StatusNotFound, Code: "special_product_not_found"}
	}
	return p, nil
}

func (f *fakeAPI) List(context.Context, client.ListOptions) (client.ListPage, error) {
	var page client.ListPage
	for _, p := range f.stored {
		page.Items = append(page.Items, p)
	}
	return page, nil
}

func run(t *testing.T, api *fakeAPI, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{out: &out, logger: zap.NewNop(), api: api}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// storedProduct builds a persisted table/lamp product with an image on every combination.
func storedProduct(t *testing.T, api *fakeAPI) domain.CompositeProduct {
	t.Helper()
	descs, err := composite.Generate(api.products["table"], api.products["lamp"], api.products["table"].Variants, nil)
	require.NoError(t, err)
	records := make([]domain.CombinationRecord, len(descs))
	for i, d := range descs {
		records[i] = domain.CombinationRecord{CombinationDescriptor: d, FinalImage: fmt.Sprintf("special-products/uploads/old-%d.png", i)}
	}
	p := domain.CompositeProduct{
		ID:           "sp-9",
		Name:         "Study Set",
		BaseProductA: "table",
		BaseProductB: "lamp",
		FinalPrice:   300,
		Status:       domain.CompositeStatusVisible,
		Combinations: records,
		CreatedAt:    time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC),
	}
	api.stored[p.ID] = p
	return p
}

func TestDecodeManifests(t *testing.T) {
	docs := `
name: Study Set
productA: table
productB: lamp
finalPrice: 300
variantsA: [S, M]
---
id: sp-9
combinations:
  - a: M
    additionalPrice: 15
`
	manifests, err := decodeManifests(strings.NewReader(docs))
	require.NoError(t, err)
	require.Len(t, manifests, 2)
	assert.Equal(t, []string{"S", "M"}, manifests[0].VariantsA)
	assert.Nil(t, manifests[0].VariantsB)
	require.NotNil(t, manifests[1].Combinations[0].AdditionalPrice)
	assert.Equal(t, 15.0, *manifests[1].Combinations[0].AdditionalPrice)
}

func TestDecodeManifestsRejects(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{name: "empty", doc: "", want: "manifest is empty"},
		{name: "unknown field", doc: "id: sp-1\nprice: 3\n", want: "field price not found"},
		{name: "new without products", doc: "name: x\nfinalPrice: 1\n", want: "productA and productB are required"},
		{name: "new without price", doc: "name: x\nproductA: a\nproductB: b\n", want: "finalPrice is required"},
		{name: "half pairing", doc: "id: sp-1\nproductA: a\n", want: "must be given together"},
		{name: "both image kinds", doc: "id: sp-1\ncombinations:\n  - a: S\n    image: a.png\n    imagePath: x/a.png\n", want: "mutually exclusive"},
		{name: "empty entry", doc: "id: sp-1\ncombinations:\n  - a: S\n", want: "nothing to apply"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeManifests(strings.NewReader(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestApplyCreatesProduct(t *testing.T) {
	api := newFakeAPI()
	dir := t.TempDir()
	writeFile(t, dir, "small.png", "\x89PNG\r\n\x1a\nsmall")
	path := writeFile(t, dir, "set.yaml", `
idempotencyKey: study-set-1
name: Study Set
productA: table
productB: lamp
finalPrice: 300
status: visible
variantsA: [S, m]
combinations:
  - a: S
    image: small.png
  - a: M
    imagePath: special-products/uploads/medium.png
    additionalPrice: 15
`)

	out, err := run(t, api, "apply", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "created: true")
	assert.Equal(t, []string{"study-set-1"}, api.createKeys)
	assert.Equal(t, []string{"small.png"}, api.uploads)
	assert.Empty(t, api.imageSaves, "a new product has nothing to save images into")

	saved := api.stored["sp-1"]
	require.Len(t, saved.Combinations, 2)
	assert.Equal(t, domain.CompositeStatusVisible, saved.Status)
	assert.Equal(t, "special-products/uploads/small.png", saved.Combinations[0].FinalImage)
	assert.Equal(t, "special-products/uploads/medium.png", saved.Combinations[1].FinalImage)
	assert.Equal(t, 15.0, saved.Combinations[1].AdditionalPrice)
	assert.True(t, saved.Combinations[0].OptionB.WholeProduct)
}

func TestApplyRetriesTemporarySubmitWithSameKey(t *testing.T) {
	api := newFakeAPI()
	api.createErrs = []error{&client.APIError{Status: http.StatusServiceUnavailable, Code: "repository_unavailable"}}
	dir := t.TempDir()
	path := writeFile(t, dir, "set.yaml", `
name: Lamp Set
productA: table
productB: lamp
finalPrice: 80
variantsA: [S]
combinations:
  - a: S
    imagePath: special-products/uploads/s.png
`)

	_, err := run(t, api, "apply", "-f", path)
	require.NoError(t, err)
	require.Len(t, api.createKeys, 2)
	assert.NotEmpty(t, api.createKeys[0])
	assert.Equal(t, api.createKeys[0], api.createKeys[1])
	assert.Equal(t, domain.CompositeStatusHidden, api.stored["sp-1"].Status)
}

func TestApplyStopsOnPermanentSubmitError(t *testing.T) {
	api := newFakeAPI()
	api.createErrs = []error{&client.APIError{Status: http.StatusConflict, Code: "special_product_conflict"}}
	dir := t.TempDir()
	path := writeFile(t, dir, "set.yaml", "name: Lamp Set\nproductA: table\nproductB: lamp\nfinalPrice: 80\nvariantsA: [S]\n"+
		"combinations:\n  - a: S\n    imagePath: special-products/uploads/s.png\n")

	_, err := run(t, api, "apply", "-f", path)
	var submitErr *composite.SubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.Len(t, api.createKeys, 1)
}

func TestApplyReEditsExistingProduct(t *testing.T) {
	api := newFakeAPI()
	existing := storedProduct(t, api)
	dir := t.TempDir()
	writeFile(t, dir, "medium.webp", "RIFF0000WEBPVP8 ")
	path := writeFile(t, dir, "edit.yaml", `
id: sp-9
description: Refreshed photos
combinations:
  - key: "`+string(existing.Combinations[1].Key)+`"
    image: medium.webp
`)

	out, err := run(t, api, "apply", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "created: false")
	assert.Empty(t, api.createKeys)
	assert.Equal(t, 1, api.updates)
	assert.Equal(t, []domain.CombinationKey{existing.Combinations[1].Key}, api.imageSaves)

	saved := api.stored["sp-9"]
	assert.Equal(t, "Study Set", saved.Name)
	assert.Equal(t, "Refreshed photos", saved.Description)
	assert.Equal(t, existing.Combinations[0].FinalImage, saved.Combinations[0].FinalImage)
	assert.Equal(t, "special-products/uploads/medium.webp", saved.Combinations[1].FinalImage)
}

func TestApplyReEditRegeneratesOnVariantChange(t *testing.T) {
	api := newFakeAPI()
	existing := storedProduct(t, api)
	dir := t.TempDir()
	path := writeFile(t, dir, "edit.yaml", `
id: sp-9
carryOver: true
variantsA: [M]
`)

	_, err := run(t, api, "apply", "-f", path)
	require.NoError(t, err)
	saved := api.stored["sp-9"]
	require.Len(t, saved.Combinations, 1)
	assert.Equal(t, existing.Combinations[1].Key, saved.Combinations[0].Key)
	assert.Equal(t, existing.Combinations[1].FinalImage, saved.Combinations[0].FinalImage)
	assert.Empty(t, api.imageSaves)
}

func TestApplyUnknownCombination(t *testing.T) {
	api := newFakeAPI()
	dir := t.TempDir()
	path := writeFile(t, dir, "set.yaml", `
name: Study Set
productA: table
productB: lamp
finalPrice: 300
variantsA: [S]
combinations:
  - a: XL
    imagePath: special-products/uploads/xl.png
`)

	_, err := run(t, api, "apply", "-f", path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, composite.ErrUnknownCombination), "got %v", err)
	assert.Empty(t, api.createKeys)
}

func TestApplyDuplicateTargets(t *testing.T) {
	api := newFakeAPI()
	dir := t.TempDir()
	path := writeFile(t, dir, "set.yaml", `
name: Study Set
productA: table
productB: lamp
finalPrice: 300
variantsA: [S]
combinations:
  - a: S
    imagePath: special-products/uploads/one.png
  - a: s
    imagePath: special-products/uploads/two.png
`)

	_, err := run(t, api, "apply", "-f", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "same combination")
}

func TestGenerateAndShow(t *testing.T) {
	api := newFakeAPI()
	storedProduct(t, api)

	out, err := run(t, api, "generate", "--a", "table", "--b", "lamp", "--variants-a", "M")
	require.NoError(t, err)
	assert.Contains(t, out, "a: M")
	assert.Contains(t, out, `b: ""`)
	assert.Contains(t, out, "suggestedPrice: 120")

	out, err = run(t, api, "show", "sp-9")
	require.NoError(t, err)
	assert.Contains(t, out, "id: sp-9")
	assert.Contains(t, out, "imagePath: special-products/uploads/old-1.png")
	assert.Contains(t, out, "2026-01-05T08:00:00Z")

	_, err = run(t, api, "show", "missing")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.NotFound())
}
