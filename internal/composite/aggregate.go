package composite

import (
	"math"
	"strings"

	"github.com/mobilia/backoffice/internal/domain"
)

// Canonicalize trims identifiers and recomputes every combination key from its variant pair. Keys sent
// by a client are never trusted.
func Canonicalize(p domain.CompositeProduct) domain.CompositeProduct {
	out := p
	out.ID = strings.TrimSpace(p.ID)
	out.Name = strings.TrimSpace(p.Name)
	out.BaseProductA = strings.TrimSpace(p.BaseProductA)
	out.BaseProductB = strings.TrimSpace(p.BaseProductB)
	out.Status = domain.CompositeStatus(strings.ToLower(strings.TrimSpace(string(p.Status))))
	out.Combinations = make([]domain.CombinationRecord, len(p.Combinations))
	for i, record := range p.Combinations {
		record.OptionA.ProductID = strings.TrimSpace(record.OptionA.ProductID)
		record.OptionB.ProductID = strings.TrimSpace(record.OptionB.ProductID)
		record.FinalImage = strings.TrimSpace(record.FinalImage)
		record.Key = KeyFor(record.OptionA, record.OptionB)
		out.Combinations[i] = record
	}
	return out
}

// ValidateAggregate checks the invariants a composite product must satisfy before it is persisted. The
// combinations must form the full Cartesian product of the distinct variants of each side, A outer and B inner.
func ValidateAggregate(p domain.CompositeProduct) error {
	if strings.TrimSpace(p.Name) == "" {
		return newValidationError(ConditionDetailsInvalid, "name is required")
	}
	a := strings.TrimSpace(p.BaseProductA)
	b := strings.TrimSpace(p.BaseProductB)
	if a == "" || b == "" {
		return newValidationError(ConditionBaseProductsMissing, "both base products are required")
	}
	if a == b {
		return newValidationError(ConditionIdenticalBaseProducts, "base products must differ (both are %q)", a)
	}
	if math.IsNaN(p.FinalPrice) || math.IsInf(p.FinalPrice, 0) || p.FinalPrice < 0 {
		return newValidationError(ConditionPriceInvalid, "final price must be a finite, non-negative number")
	}
	if !p.Status.IsValid() {
		return newValidationError(ConditionDetailsInvalid, "status must be %q or %q", domain.CompositeStatusVisible, domain.CompositeStatusHidden)
	}
	if len(p.Combinations) == 0 {
		return newValidationError(ConditionCombinationsEmpty, "at least one combination is required")
	}

	seen := make(map[domain.CombinationKey]int, len(p.Combinations))
	var badPrice []int
	for i, record := range p.Combinations {
		if strings.TrimSpace(record.OptionA.ProductID) != a || strings.TrimSpace(record.OptionB.ProductID) != b {
			return &ValidationError{
				Condition: ConditionCombinationShape,
				Message:   "combination does not pair the aggregate's base products",
				Indices:   []int{i},
			}
		}
		key := KeyFor(record.OptionA, record.OptionB)
		if first, dup := seen[key]; dup {
			return &ValidationError{
				Condition: ConditionDuplicateCombination,
				Message:   "variant pair appears more than once",
				Indices:   []int{first, i},
			}
		}
		seen[key] = i
		if math.IsNaN(record.AdditionalPrice) || math.IsInf(record.AdditionalPrice, 0) {
			badPrice = append(badPrice, i)
		}
	}
	if len(badPrice) > 0 {
		return &ValidationError{
			Condition: ConditionPriceInvalid,
			Message:   "additional price must be finite for combinations " + formatIndices(badPrice),
			Indices:   badPrice,
		}
	}
	if err := checkCartesianShape(p.Combinations); err != nil {
		return err
	}

	if missing := p.MissingImages(); len(missing) > 0 {
		return &ValidationError{
			Condition: ConditionImageMissing,
			Message:   "every combination needs an image, missing for combinations " + formatIndices(missing),
			Indices:   missing,
		}
	}
	return nil
}

func checkCartesianShape(records []domain.CombinationRecord) error {
	sideA := distinctIdentities(records, func(r domain.CombinationRecord) domain.VariantOption { return r.OptionA })
	sideB := distinctIdentities(records, func(r domain.CombinationRecord) domain.VariantOption { return r.OptionB })
	for _, side := range [][]string{sideA, sideB} {
		if len(side) > 1 {
			for _, identity := range side {
				if identity == wholeProductIdentity {
					return newValidationError(ConditionCombinationShape, "a side cannot mix the whole product with its variants")
				}
			}
		}
	}
	if len(records) != len(sideA)*len(sideB) {
		return newValidationError(ConditionCombinationShape, "expected %d x %d combinations, got %d", len(sideA), len(sideB), len(records))
	}
	for i, record := range records {
		if optionIdentity(record.OptionA) != sideA[i/len(sideB)] || optionIdentity(record.OptionB) != sideB[i%len(sideB)] {
			return &ValidationError{
				Condition: ConditionCombinationShape,
				Message:   "combinations are not in generated order",
				Indices:   []int{i},
			}
		}
	}
	return nil
}

func distinctIdentities(records []domain.CombinationRecord, option func(domain.CombinationRecord) domain.VariantOption) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, record := range records {
		identity := optionIdentity(option(record))
		if _, ok := seen[identity]; ok {
			continue
		}
		seen[identity] = struct{}{}
		out = append(out, identity)
	}
	return out
}

// Selections rebuilds the variant selection of each side from persisted records in generated order. A side
// backed by the whole-product pseudo-variant yields a nil selection.
func Selections(records []domain.CombinationRecord) (selectionA, selectionB []domain.Variant) {
	seenA := make(map[string]struct{})
	seenB := make(map[string]struct{})
	for _, record := range records {
		if !record.OptionA.WholeProduct {
			if id := VariantIdentity(record.OptionA.Variant); !contains(seenA, id) {
				seenA[id] = struct{}{}
				selectionA = append(selectionA, record.OptionA.Variant)
			}
		}
		if !record.OptionB.WholeProduct {
			if id := VariantIdentity(record.OptionB.Variant); !contains(seenB, id) {
				seenB[id] = struct{}{}
				selectionB = append(selectionB, record.OptionB.Variant)
			}
		}
	}
	return selectionA, selectionB
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
