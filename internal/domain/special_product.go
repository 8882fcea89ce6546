package domain

import "time"

// BaseProduct is a catalog product that can take part in a composite pairing. The engine treats it as read-only.
type BaseProduct struct {
	ID        string
	Name      string
	Variants  []Variant
	UpdatedAt time.Time
}

// HasVariants reports whether the product exposes at least one selectable variant.
func (p BaseProduct) HasVariants() bool {
	return len(p.Variants) > 0
}

// Variant is one selectable option of a base product such as a colour or a size.
type Variant struct {
	Name       string
	Value      string
	Image      string
	Stock      *int
	PriceDelta *float64
}

// VariantOption describes one side of a combination with enough display data to render it without
// another catalog lookup.
type VariantOption struct {
	ProductID   string
	ProductName string
	Variant     Variant
	// WholeProduct marks the synthetic variant used when a side contributes no variant axis.
	WholeProduct bool
}

// CombinationKey identifies a combination by its variant pair rather than its position.
type CombinationKey string

// CombinationDescriptor is one generated pairing of a variant from each base product.
type CombinationDescriptor struct {
	Key            CombinationKey
	OptionA        VariantOption
	OptionB        VariantOption
	SuggestedPrice *float64
}

// CombinationRecord extends a descriptor with the per-combination assets captured during authoring.
type CombinationRecord struct {
	CombinationDescriptor
	FinalImage      string
	AdditionalPrice float64
}

// HasImage reports whether the record carries a final image reference.
func (r CombinationRecord) HasImage() bool {
	return r.FinalImage != ""
}

// CompositeStatus controls storefront visibility of a composite product.
type CompositeStatus string

const (
	// CompositeStatusVisible publishes the composite product.
	CompositeStatusVisible CompositeStatus = "visible"
	// CompositeStatusHidden keeps the composite product out of the storefront.
	CompositeStatusHidden CompositeStatus = "hidden"
)

// IsValid reports whether the status is one of the known values.
func (s CompositeStatus) IsValid() bool {
	switch s {
	case CompositeStatusVisible, CompositeStatusHidden:
		return true
	default:
		return false
	}
}

// CompositeProduct is the aggregate root pairing two base products.
type CompositeProduct struct {
	ID           string
	Name         string
	BaseProductA string
	BaseProductB string
	FinalPrice   float64
	Description  string
	Status       CompositeStatus
	Combinations []CombinationRecord
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MissingImages returns the indices of combinations without a final image.
func (p CompositeProduct) MissingImages() []int {
	var missing []int
	for i, record := range p.Combinations {
		if !record.HasImage() {
			missing = append(missing, i)
		}
	}
	return missing
}

// CombinationIndex returns the position of the record with the given key, or -1.
func (p CompositeProduct) CombinationIndex(key CombinationKey) int {
	for i, record := range p.Combinations {
		if record.Key == key {
			return i
		}
	}
	return -1
}
