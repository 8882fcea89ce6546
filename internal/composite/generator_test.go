package composite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilia/backoffice/internal/domain"
)

func variants(values ...string) []domain.Variant {
	out := make([]domain.Variant, len(values))
	for i, value := range values {
		out[i] = domain.Variant{Name: "option", Value: value, Image: "catalog/" + value + ".jpg"}
	}
	return out
}

func product(id string, values ...string) domain.BaseProduct {
	return domain.BaseProduct{ID: id, Name: "Product " + id, Variants: variants(values...)}
}

func pairValues(descs []domain.CombinationDescriptor) [][2]string {
	out := make([][2]string, len(descs))
	for i, d := range descs {
		out[i] = [2]string{d.OptionA.Variant.Value, d.OptionB.Variant.Value}
	}
	return out
}

func TestGenerate_FullSelectionOrder(t *testing.T) {
	a := product("top", "S", "M", "L")
	b := product("base", "Oak", "Pine")

	descs, err := Generate(a, b, a.Variants, b.Variants)
	require.NoError(t, err)
	require.Len(t, descs, 6)
	assert.Equal(t, [][2]string{
		{"S", "Oak"}, {"S", "Pine"},
		{"M", "Oak"}, {"M", "Pine"},
		{"L", "Oak"}, {"L", "Pine"},
	}, pairValues(descs))

	for _, d := range descs {
		assert.Equal(t, "top", d.OptionA.ProductID)
		assert.Equal(t, "Product top", d.OptionA.ProductName)
		assert.Equal(t, "base", d.OptionB.ProductID)
		assert.NotEmpty(t, d.OptionA.Variant.Image)
		assert.Equal(t, KeyFor(d.OptionA, d.OptionB), d.Key)
	}
}

func TestGenerate_VariantlessSideExpandsToWholeProduct(t *testing.T) {
	a := product("chair", "Red", "Blue")
	b := product("cushion")

	descs, err := Generate(a, b, a.Variants, nil)
	require.NoError(t, err)
	require.Len(t, descs, 2)
	for i, color := range []string{"Red", "Blue"} {
		assert.Equal(t, color, descs[i].OptionA.Variant.Value)
		assert.True(t, descs[i].OptionB.WholeProduct)
		assert.Equal(t, "Product cushion", descs[i].OptionB.Variant.Value)
		assert.Empty(t, descs[i].OptionB.Variant.Image)
	}
	assert.NotEqual(t, descs[0].Key, descs[1].Key)
}

func TestGenerate_BothSidesWithoutVariants(t *testing.T) {
	descs, err := Generate(product("a"), product("b"), nil, nil)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.True(t, descs[0].OptionA.WholeProduct)
	assert.True(t, descs[0].OptionB.WholeProduct)
}

func TestGenerate_CountProperty(t *testing.T) {
	all := []string{"v1", "v2", "v3", "v4"}
	for m := 0; m <= len(all); m++ {
		for n := 0; n <= len(all); n++ {
			a := product("a", all[:m]...)
			b := product("b", all[:n]...)
			for sa := 0; sa <= m; sa++ {
				for sb := 0; sb <= n; sb++ {
					var selA, selB []domain.Variant
					if sa > 0 {
						selA = a.Variants[:sa]
					}
					if sb > 0 {
						selB = b.Variants[:sb]
					}
					t.Run(fmt.Sprintf("m%d_n%d_a%d_b%d", m, n, sa, sb), func(t *testing.T) {
						descs, err := Generate(a, b, selA, selB)
						require.NoError(t, err)
						assert.Len(t, descs, max(1, sa)*max(1, sb))

						keys := make(map[domain.CombinationKey]struct{}, len(descs))
						for _, d := range descs {
							_, dup := keys[d.Key]
							assert.False(t, dup, "duplicate pair %s", d.Key)
							keys[d.Key] = struct{}{}
						}
					})
				}
			}
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := product("a", "Walnut", "Ash", "Elm")
	b := product("b", "Black", "White")

	first, err := Generate(a, b, a.Variants, b.Variants)
	require.NoError(t, err)
	second, err := Generate(a, b, a.Variants, b.Variants)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerate_IdenticalProducts(t *testing.T) {
	a := product("same", "x")
	_, err := Generate(a, a, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIdenticalProducts))

	var identical *IdenticalProductError
	require.ErrorAs(t, err, &identical)
	assert.Equal(t, "same", identical.ProductID)
}

func TestGenerate_InvalidSelections(t *testing.T) {
	a := product("a", "Red", "Blue")
	b := product("b", "Oak")

	tests := []struct {
		name string
		selA []domain.Variant
		selB []domain.Variant
		side Side
	}{
		{name: "provided empty while other side selected", selA: []domain.Variant{}, selB: b.Variants, side: SideA},
		{name: "variant not in product", selA: variants("Green"), selB: b.Variants, side: SideA},
		{name: "duplicate variant", selA: a.Variants, selB: append(variants("Oak"), variants("oak")...), side: SideB},
		{name: "blank value", selA: a.Variants, selB: variants("  "), side: SideB},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Generate(a, b, tc.selA, tc.selB)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSelection))
			var selErr *InvalidSelectionError
			require.ErrorAs(t, err, &selErr)
			assert.Equal(t, tc.side, selErr.Side)
		})
	}
}

func TestGenerate_ProvidedEmptyOnVariantlessProductIsAllowed(t *testing.T) {
	a := product("a", "Red")
	b := product("b")
	descs, err := Generate(a, b, a.Variants, []domain.Variant{})
	require.NoError(t, err)
	assert.Len(t, descs, 1)
}

func TestGenerate_UsesCatalogVariantData(t *testing.T) {
	a := product("a", "Red")
	b := product("b", "Oak")
	descs, err := Generate(a, b, []domain.Variant{{Value: " red "}}, []domain.Variant{{Value: "OAK"}})
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "Red", descs[0].OptionA.Variant.Value)
	assert.Equal(t, "catalog/Oak.jpg", descs[0].OptionB.Variant.Image)
}

func TestGenerate_SuggestedPrice(t *testing.T) {
	plus := func(v float64) *float64 { return &v }
	a := product("a", "Small", "Large")
	a.Variants[1].PriceDelta = plus(40)
	b := product("b", "Oak", "Pine")
	b.Variants[0].PriceDelta = plus(15)

	descs, err := Generate(a, b, a.Variants, b.Variants)
	require.NoError(t, err)
	require.Len(t, descs, 4)
	require.NotNil(t, descs[0].SuggestedPrice)
	assert.InDelta(t, 15, *descs[0].SuggestedPrice, 1e-9)
	assert.Nil(t, descs[1].SuggestedPrice)
	assert.InDelta(t, 55, *descs[2].SuggestedPrice, 1e-9)
	assert.InDelta(t, 40, *descs[3].SuggestedPrice, 1e-9)
}

func TestKeyFor_NormalisesVariantValue(t *testing.T) {
	a := domain.VariantOption{ProductID: "a", Variant: domain.Variant{Value: "Ｒｅｄ"}}
	b := domain.VariantOption{ProductID: "b", Variant: domain.Variant{Value: "Oak"}}
	folded := domain.VariantOption{ProductID: "a", Variant: domain.Variant{Value: "red"}}
	assert.Equal(t, KeyFor(a, b), KeyFor(folded, b))

	whole := domain.VariantOption{ProductID: "b", Variant: domain.Variant{Value: "Oak"}, WholeProduct: true}
	assert.NotEqual(t, KeyFor(a, b), KeyFor(a, whole))
}

func TestLocalGenerator_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LocalGenerator{}.Generate(ctx, GenerateRequest{ProductA: product("a"), ProductB: product("b")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiffKeys(t *testing.T) {
	diff := DiffKeys(
		[]domain.CombinationKey{"k1", "k2", "k3"},
		[]domain.CombinationKey{"k2", "k4"},
	)
	assert.Equal(t, []domain.CombinationKey{"k4"}, diff.Added)
	assert.Equal(t, []domain.CombinationKey{"k1", "k3"}, diff.Removed)
	assert.Equal(t, []domain.CombinationKey{"k2"}, diff.Retained)
	assert.False(t, diff.Unchanged())
	assert.True(t, DiffKeys([]domain.CombinationKey{"k"}, []domain.CombinationKey{"k"}).Unchanged())
}
