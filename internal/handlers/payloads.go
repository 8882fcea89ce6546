package handlers

import (
	"github.com/mobilia/backoffice/internal/domain"
)

type variantPayload struct {
	Name       string   `json:"name"`
	Value      string   `json:"value"`
	Image      string   `json:"image,omitempty"`
	Stock      *int     `json:"stock,omitempty"`
	PriceDelta *float64 `json:"priceDelta,omitempty"`
}

type baseProductPayload struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Variants  []variantPayload `json:"variants"`
	UpdatedAt string           `json:"updatedAt,omitempty"`
}

type variantOptionPayload struct {
	ProductID    string         `json:"productId"`
	ProductName  string         `json:"productName"`
	Variant      variantPayload `json:"variant"`
	WholeProduct bool           `json:"wholeProduct,omitempty"`
}

type descriptorPayload struct {
	Key            string               `json:"key"`
	OptionA        variantOptionPayload `json:"optionA"`
	OptionB        variantOptionPayload `json:"optionB"`
	SuggestedPrice *float64             `json:"suggestedPrice,omitempty"`
}

type combinationPayload struct {
	Key             string               `json:"key,omitempty"`
	OptionA         variantOptionPayload `json:"optionA"`
	OptionB         variantOptionPayload `json:"optionB"`
	SuggestedPrice  *float64             `json:"suggestedPrice,omitempty"`
	FinalImage      string               `json:"finalImage"`
	AdditionalPrice float64              `json:"additionalPrice"`
}

type specialProductPayload struct {
	ID           string               `json:"id,omitempty"`
	Name         string               `json:"name"`
	BaseProductA string               `json:"baseProductA"`
	BaseProductB string               `json:"baseProductB"`
	FinalPrice   float64              `json:"finalPrice"`
	Description  string               `json:"description"`
	Status       string               `json:"status"`
	Combinations []combinationPayload `json:"combinations"`
	CreatedAt    string               `json:"createdAt,omitempty"`
	UpdatedAt    string               `json:"updatedAt,omitempty"`
}

func buildVariantPayload(v domain.Variant) variantPayload {
	return variantPayload{
		Name:       v.Name,
		Value:      v.Value,
		Image:      v.Image,
		Stock:      v.Stock,
		PriceDelta: v.PriceDelta,
	}
}

func buildBaseProductPayload(p domain.BaseProduct) baseProductPayload {
	variants := make([]variantPayload, 0, len(p.Variants))
	for _, v := range p.Variants {
		variants = append(variants, buildVariantPayload(v))
	}
	return baseProductPayload{
		ID:        p.ID,
		Name:      p.Name,
		Variants:  variants,
		UpdatedAt: formatTime(p.UpdatedAt),
	}
}

func buildOptionPayload(o domain.VariantOption) variantOptionPayload {
	return variantOptionPayload{
		ProductID:    o.ProductID,
		ProductName:  o.ProductName,
		Variant:      buildVariantPayload(o.Variant),
		WholeProduct: o.WholeProduct,
	}
}

func buildDescriptorPayloads(descriptors []domain.CombinationDescriptor) []descriptorPayload {
	out := make([]descriptorPayload, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, descriptorPayload{
			Key:            string(d.Key),
			OptionA:        buildOptionPayload(d.OptionA),
			OptionB:        buildOptionPayload(d.OptionB),
			SuggestedPrice: d.SuggestedPrice,
		})
	}
	return out
}

func buildSpecialProductPayload(p domain.CompositeProduct) specialProductPayload {
	combinations := make([]combinationPayload, 0, len(p.Combinations))
	for _, record := range p.Combinations {
		combinations = append(combinations, combinationPayload{
			Key:             string(record.Key),
			OptionA:         buildOptionPayload(record.OptionA),
			OptionB:         buildOptionPayload(record.OptionB),
			SuggestedPrice:  record.SuggestedPrice,
			FinalImage:      record.FinalImage,
			AdditionalPrice: record.AdditionalPrice,
		})
	}
	return specialProductPayload{
		ID:           p.ID,
		Name:         p.Name,
		BaseProductA: p.BaseProductA,
		BaseProductB: p.BaseProductB,
		FinalPrice:   p.FinalPrice,
		Description:  p.Description,
		Status:       string(p.Status),
		Combinations: combinations,
		CreatedAt:    formatTime(p.CreatedAt),
		UpdatedAt:    formatTime(p.UpdatedAt),
	}
}

// variantsFromPayload keeps the distinction between an absent selection (nil) and an explicit empty one.
func variantsFromPayload(in []variantPayload) []domain.Variant {
	if in == nil {
		return nil
	}
	out := make([]domain.Variant, 0, len(in))
	for _, v := range in {
		out = append(out, domain.Variant{
			Name:       v.Name,
			Value:      v.Value,
			Image:      v.Image,
			Stock:      v.Stock,
			PriceDelta: v.PriceDelta,
		})
	}
	return out
}

func optionFromPayload(in variantOptionPayload) domain.VariantOption {
	variant := variantsFromPayload([]variantPayload{in.Variant})[0]
	return domain.VariantOption{
		ProductID:    in.ProductID,
		ProductName:  in.ProductName,
		Variant:      variant,
		WholeProduct: in.WholeProduct,
	}
}

// compositeFromPayload converts a request body. Keys sent by the client are kept only as hints; the
// service recomputes them from the variant pair.
func compositeFromPayload(in specialProductPayload) domain.CompositeProduct {
	records := make([]domain.CombinationRecord, 0, len(in.Combinations))
	for _, c := range in.Combinations {
		records = append(records, domain.CombinationRecord{
			CombinationDescriptor: domain.CombinationDescriptor{
				Key:            domain.CombinationKey(c.Key),
				OptionA:        optionFromPayload(c.OptionA),
				OptionB:        optionFromPayload(c.OptionB),
				SuggestedPrice: c.SuggestedPrice,
			},
			FinalImage:      c.FinalImage,
			AdditionalPrice: c.AdditionalPrice,
		})
	}
	return domain.CompositeProduct{
		Name:         in.Name,
		BaseProductA: in.BaseProductA,
		BaseProductB: in.BaseProductB,
		FinalPrice:   in.FinalPrice,
		Description:  in.Description,
		Status:       domain.CompositeStatus(in.Status),
		Combinations: records,
	}
}
