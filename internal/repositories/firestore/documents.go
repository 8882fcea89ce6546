package firestore

import (
	"time"

	"github.com/mobilia/backoffice/internal/domain"
)

type variantDocument struct {
	Name       string   `firestore:"name,omitempty"`
	Value      string   `firestore:"value"`
	Image      string   `firestore:"image,omitempty"`
	Stock      *int     `firestore:"stock,omitempty"`
	PriceDelta *float64 `firestore:"priceDelta,omitempty"`
}

func encodeVariant(v domain.Variant) variantDocument {
	return variantDocument{
		Name:       v.Name,
		Value:      v.Value,
		Image:      v.Image,
		Stock:      cloneInt(v.Stock),
		PriceDelta: cloneFloat(v.PriceDelta),
	}
}

func (d variantDocument) decode() domain.Variant {
	return domain.Variant{
		Name:       d.Name,
		Value:      d.Value,
		Image:      d.Image,
		Stock:      cloneInt(d.Stock),
		PriceDelta: cloneFloat(d.PriceDelta),
	}
}

type productDocument struct {
	Name      string            `firestore:"name"`
	Variants  []variantDocument `firestore:"variants"`
	UpdatedAt time.Time         `firestore:"updatedAt"`
}

func (d productDocument) decode(id string) domain.BaseProduct {
	product := domain.BaseProduct{
		ID:        id,
		Name:      d.Name,
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if len(d.Variants) > 0 {
		product.Variants = make([]domain.Variant, len(d.Variants))
		for i, v := range d.Variants {
			product.Variants[i] = v.decode()
		}
	}
	return product
}

type optionDocument struct {
	ProductID    string          `firestore:"productId"`
	ProductName  string          `firestore:"productName"`
	Variant      variantDocument `firestore:"variant"`
	WholeProduct bool            `firestore:"wholeProduct,omitempty"`
}

type combinationDocument struct {
	Key             string         `firestore:"key"`
	OptionA         optionDocument `firestore:"optionA"`
	OptionB         optionDocument `firestore:"optionB"`
	SuggestedPrice  *float64       `firestore:"suggestedPrice,omitempty"`
	FinalImage      string         `firestore:"finalImage"`
	AdditionalPrice float64        `firestore:"additionalPrice"`
}

type specialProductDocument struct {
	Name         string                `firestore:"name"`
	BaseProductA string                `firestore:"baseProductA"`
	BaseProductB string                `firestore:"baseProductB"`
	FinalPrice   float64               `firestore:"finalPrice"`
	Description  string                `firestore:"description"`
	Status       string                `firestore:"status"`
	Combinations []combinationDocument `firestore:"combinations"`
	CreatedAt    time.Time             `firestore:"createdAt"`
	UpdatedAt    time.Time             `firestore:"updatedAt"`
}

func encodeOption(opt domain.VariantOption) optionDocument {
	return optionDocument{
		ProductID:    opt.ProductID,
		ProductName:  opt.ProductName,
		Variant:      encodeVariant(opt.Variant),
		WholeProduct: opt.WholeProduct,
	}
}

func (d optionDocument) decode() domain.VariantOption {
	return domain.VariantOption{
		ProductID:    d.ProductID,
		ProductName:  d.ProductName,
		Variant:      d.Variant.decode(),
		WholeProduct: d.WholeProduct,
	}
}

func encodeSpecialProduct(p domain.CompositeProduct) specialProductDocument {
	doc := specialProductDocument{
		Name:         p.Name,
		BaseProductA: p.BaseProductA,
		BaseProductB: p.BaseProductB,
		FinalPrice:   p.FinalPrice,
		Description:  p.Description,
		Status:       string(p.Status),
		Combinations: make([]combinationDocument, len(p.Combinations)),
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}
	for i, record := range p.Combinations {
		doc.Combinations[i] = combinationDocument{
			Key:             string(record.Key),
			OptionA:         encodeOption(record.OptionA),
			OptionB:         encodeOption(record.OptionB),
			SuggestedPrice:  cloneFloat(record.SuggestedPrice),
			FinalImage:      record.FinalImage,
			AdditionalPrice: record.AdditionalPrice,
		}
	}
	return doc
}

func (d specialProductDocument) decode(id string) domain.CompositeProduct {
	product := domain.CompositeProduct{
		ID:           id,
		Name:         d.Name,
		BaseProductA: d.BaseProductA,
		BaseProductB: d.BaseProductB,
		FinalPrice:   d.FinalPrice,
		Description:  d.Description,
		Status:       domain.CompositeStatus(d.Status),
		Combinations: make([]domain.CombinationRecord, len(d.Combinations)),
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	for i, c := range d.Combinations {
		product.Combinations[i] = domain.CombinationRecord{
			CombinationDescriptor: domain.CombinationDescriptor{
				Key:            domain.CombinationKey(c.Key),
				OptionA:        c.OptionA.decode(),
				OptionB:        c.OptionB.decode(),
				SuggestedPrice: cloneFloat(c.SuggestedPrice),
			},
			FinalImage:      c.FinalImage,
			AdditionalPrice: c.AdditionalPrice,
		}
	}
	return product
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
