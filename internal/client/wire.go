package client

import (
	"time"

	"github.com/mobilia/backoffice/internal/domain"
)

type wireVariant struct {
	Name       string   `json:"name"`
	Value      string   `json:"value"`
	Image      string   `json:"image,omitempty"`
	Stock      *int     `json:"stock,omitempty"`
	PriceDelta *float64 `json:"priceDelta,omitempty"`
}

type wireBaseProduct struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Variants  []wireVariant `json:"variants"`
	UpdatedAt string        `json:"updatedAt,omitempty"`
}

type wireOption struct {
	ProductID    string      `json:"productId"`
	ProductName  string      `json:"productName"`
	Variant      wireVariant `json:"variant"`
	WholeProduct bool        `json:"wholeProduct,omitempty"`
}

type wireCombination struct {
	Key             string     `json:"key,omitempty"`
	OptionA         wireOption `json:"optionA"`
	OptionB         wireOption `json:"optionB"`
	SuggestedPrice  *float64   `json:"suggestedPrice,omitempty"`
	FinalImage      string     `json:"finalImage"`
	AdditionalPrice float64    `json:"additionalPrice"`
}

type wireSpecialProduct struct {
	ID           string            `json:"id,omitempty"`
	Name         string            `json:"name"`
	BaseProductA string            `json:"baseProductA"`
	BaseProductB string            `json:"baseProductB"`
	FinalPrice   float64           `json:"finalPrice"`
	Description  string            `json:"description"`
	Status       string            `json:"status"`
	Combinations []wireCombination `json:"combinations"`
	CreatedAt    string            `json:"createdAt,omitempty"`
	UpdatedAt    string            `json:"updatedAt,omitempty"`
}

type generateRequest struct {
	ProductAID        string        `json:"productAId"`
	ProductBID        string        `json:"productBId"`
	// nil encodes as null, which the server reads as an absent selection.
	SelectedVariantsA []wireVariant `json:"selectedVariantsA"`
	SelectedVariantsB []wireVariant `json:"selectedVariantsB"`
}

type generateResponse struct {
	ProductA     wireBaseProduct   `json:"productA"`
	ProductB     wireBaseProduct   `json:"productB"`
	Combinations []wireCombination `json:"combinations"`
}

type productList struct {
	Items []wireBaseProduct `json:"items"`
}

type specialProductList struct {
	Items         []wireSpecialProduct `json:"items"`
	NextPageToken string               `json:"nextPageToken"`
}

type uploadResponse struct {
	Path string `json:"path"`
}

func toWireVariants(in []domain.Variant) []wireVariant {
	if in == nil {
		return nil
	}
	out := make([]wireVariant, 0, len(in))
	for _, v := range in {
		out = append(out, wireVariant{Name: v.Name, Value: v.Value, Image: v.Image, Stock: v.Stock, PriceDelta: v.PriceDelta})
	}
	return out
}

func fromWireVariant(v wireVariant) domain.Variant {
	return domain.Variant{Name: v.Name, Value: v.Value, Image: v.Image, Stock: v.Stock, PriceDelta: v.PriceDelta}
}

func fromWireBaseProduct(p wireBaseProduct) domain.BaseProduct {
	out := domain.BaseProduct{ID: p.ID, Name: p.Name, UpdatedAt: parseTime(p.UpdatedAt)}
	if len(p.Variants) > 0 {
		out.Variants = make([]domain.Variant, 0, len(p.Variants))
		for _, v := range p.Variants {
			out.Variants = append(out.Variants, fromWireVariant(v))
		}
	}
	return out
}

func toWireOption(o domain.VariantOption) wireOption {
	return wireOption{
		ProductID:    o.ProductID,
		ProductName:  o.ProductName,
		Variant:      toWireVariants([]domain.Variant{o.Variant})[0],
		WholeProduct: o.WholeProduct,
	}
}

func fromWireOption(o wireOption) domain.VariantOption {
	return domain.VariantOption{
		ProductID:    o.ProductID,
		ProductName:  o.ProductName,
		Variant:      fromWireVariant(o.Variant),
		WholeProduct: o.WholeProduct,
	}
}

func fromWireDescriptor(c wireCombination) domain.CombinationDescriptor {
	return domain.CombinationDescriptor{
		Key:            domain.CombinationKey(c.Key),
		OptionA:        fromWireOption(c.OptionA),
		OptionB:        fromWireOption(c.OptionB),
		SuggestedPrice: c.SuggestedPrice,
	}
}

func toWireSpecialProduct(p domain.CompositeProduct) wireSpecialProduct {
	combinations := make([]wireCombination, 0, len(p.Combinations))
	for _, r := range p.Combinations {
		combinations = append(combinations, wireCombination{
			Key:             string(r.Key),
			OptionA:         toWireOption(r.OptionA),
			OptionB:         toWireOption(r.OptionB),
			SuggestedPrice:  r.SuggestedPrice,
			FinalImage:      r.FinalImage,
			AdditionalPrice: r.AdditionalPrice,
		})
	}
	return wireSpecialProduct{
		ID:           p.ID,
		Name:         p.Name,
		BaseProductA: p.BaseProductA,
		BaseProductB: p.BaseProductB,
		FinalPrice:   p.FinalPrice,
		Description:  p.Description,
		Status:       string(p.Status),
		Combinations: combinations,
	}
}

func fromWireSpecialProduct(p wireSpecialProduct) domain.CompositeProduct {
	records := make([]domain.CombinationRecord, 0, len(p.Combinations))
	for _, c := range p.Combinations {
		records = append(records, domain.CombinationRecord{
			CombinationDescriptor: fromWireDescriptor(c),
			FinalImage:            c.FinalImage,
			AdditionalPrice:       c.AdditionalPrice,
		})
	}
	return domain.CompositeProduct{
		ID:           p.ID,
		Name:         p.Name,
		BaseProductA: p.BaseProductA,
		BaseProductB: p.BaseProductB,
		FinalPrice:   p.FinalPrice,
		Description:  p.Description,
		Status:       domain.CompositeStatus(p.Status),
		Combinations: records,
		CreatedAt:    parseTime(p.CreatedAt),
		UpdatedAt:    parseTime(p.UpdatedAt),
	}
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
