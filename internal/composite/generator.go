package composite

import (
	"context"
	"fmt"
	"strings"

	"github.com/mobilia/backoffice/internal/domain"
)

// GenerateRequest carries the inputs of one generation run. A nil selection means "not provided" and expands
// to the whole-product pseudo-variant; a non-nil empty selection is an explicit empty choice.
type GenerateRequest struct {
	ProductA   domain.BaseProduct
	ProductB   domain.BaseProduct
	SelectionA []domain.Variant
	SelectionB []domain.Variant
}

// CombinationGenerator expands a pairing into combination descriptors.
type CombinationGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]domain.CombinationDescriptor, error)
}

// LocalGenerator runs Generate in process.
type LocalGenerator struct{}

// Generate implements CombinationGenerator.
func (LocalGenerator) Generate(ctx context.Context, req GenerateRequest) ([]domain.CombinationDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Generate(req.ProductA, req.ProductB, req.SelectionA, req.SelectionB)
}

// Generate computes the Cartesian product of two variant selections with side A outer and side B inner.
// Selected variants are resolved against the product's own variant list so each descriptor carries the
// catalog display data. The output is deterministic for equal inputs.
func Generate(productA, productB domain.BaseProduct, selectionA, selectionB []domain.Variant) ([]domain.CombinationDescriptor, error) {
	idA := strings.TrimSpace(productA.ID)
	idB := strings.TrimSpace(productB.ID)
	if idA == "" || idB == "" {
		return nil, newValidationError(ConditionBaseProductsMissing, "both base products are required")
	}
	if idA == idB {
		return nil, &IdenticalProductError{ProductID: idA}
	}

	optionsA, err := effectiveOptions(SideA, productA, selectionA, selectionB)
	if err != nil {
		return nil, err
	}
	optionsB, err := effectiveOptions(SideB, productB, selectionB, selectionA)
	if err != nil {
		return nil, err
	}

	descriptors := make([]domain.CombinationDescriptor, 0, len(optionsA)*len(optionsB))
	for _, a := range optionsA {
		for _, b := range optionsB {
			descriptors = append(descriptors, domain.CombinationDescriptor{
				Key:            KeyFor(a, b),
				OptionA:        a,
				OptionB:        b,
				SuggestedPrice: suggestedPrice(a.Variant, b.Variant),
			})
		}
	}
	return descriptors, nil
}

func effectiveOptions(side Side, product domain.BaseProduct, selection, other []domain.Variant) ([]domain.VariantOption, error) {
	productID := strings.TrimSpace(product.ID)
	if len(selection) == 0 {
		if selection != nil && product.HasVariants() && len(other) > 0 {
			return nil, &InvalidSelectionError{
				Side:      side,
				ProductID: productID,
				Reason:    "selection is empty while the product has variants and the other side has a selection",
			}
		}
		return []domain.VariantOption{wholeProductOption(product)}, nil
	}

	catalog := make(map[string]domain.Variant, len(product.Variants))
	for _, variant := range product.Variants {
		identity := VariantIdentity(variant)
		if _, exists := catalog[identity]; !exists {
			catalog[identity] = variant
		}
	}

	seen := make(map[string]struct{}, len(selection))
	options := make([]domain.VariantOption, 0, len(selection))
	for _, selected := range selection {
		identity := VariantIdentity(selected)
		if identity == "" {
			return nil, &InvalidSelectionError{Side: side, ProductID: productID, Reason: "variant value is required"}
		}
		if _, dup := seen[identity]; dup {
			return nil, &InvalidSelectionError{Side: side, ProductID: productID, Reason: fmt.Sprintf("variant %q selected twice", selected.Value)}
		}
		variant, ok := catalog[identity]
		if !ok {
			return nil, &InvalidSelectionError{Side: side, ProductID: productID, Reason: fmt.Sprintf("variant %q does not belong to the product", selected.Value)}
		}
		seen[identity] = struct{}{}
		options = append(options, domain.VariantOption{
			ProductID:   productID,
			ProductName: product.Name,
			Variant:     cloneVariant(variant),
		})
	}
	return options, nil
}

func wholeProductOption(product domain.BaseProduct) domain.VariantOption {
	return domain.VariantOption{
		ProductID:    strings.TrimSpace(product.ID),
		ProductName:  product.Name,
		Variant:      domain.Variant{Value: product.Name},
		WholeProduct: true,
	}
}

func suggestedPrice(a, b domain.Variant) *float64 {
	if a.PriceDelta == nil && b.PriceDelta == nil {
		return nil
	}
	var total float64
	if a.PriceDelta != nil {
		total += *a.PriceDelta
	}
	if b.PriceDelta != nil {
		total += *b.PriceDelta
	}
	return &total
}

func cloneVariant(v domain.Variant) domain.Variant {
	out := v
	if v.Stock != nil {
		stock := *v.Stock
		out.Stock = &stock
	}
	if v.PriceDelta != nil {
		delta := *v.PriceDelta
		out.PriceDelta = &delta
	}
	return out
}
