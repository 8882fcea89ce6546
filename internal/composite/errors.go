package composite

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mobilia/backoffice/internal/domain"
)

// Condition names the unmet requirement carried by a ValidationError.
type Condition string

const (
	ConditionBaseProductsMissing     Condition = "base_products_missing"
	ConditionIdenticalBaseProducts   Condition = "identical_base_products"
	ConditionVariantSelectionMissing Condition = "variant_selection_missing"
	ConditionVariantUnknown          Condition = "variant_unknown"
	ConditionCombinationsEmpty       Condition = "combinations_empty"
	ConditionCombinationShape        Condition = "combination_shape"
	ConditionDuplicateCombination    Condition = "duplicate_combination"
	ConditionImageMissing            Condition = "image_missing"
	ConditionUploadInFlight          Condition = "upload_in_flight"
	ConditionPriceInvalid            Condition = "price_invalid"
	ConditionDetailsInvalid          Condition = "details_invalid"
	ConditionInvalidTransition       Condition = "invalid_transition"
)

var (
	// ErrIdenticalProducts matches IdenticalProductError values.
	ErrIdenticalProducts = errors.New("composite: base products must differ")
	// ErrInvalidSelection matches InvalidSelectionError values.
	ErrInvalidSelection = errors.New("composite: invalid variant selection")
	// ErrUploadSuperseded is returned when an upload result arrives after a newer upload for the same combination started.
	ErrUploadSuperseded = errors.New("composite: upload superseded")
	// ErrUnknownCombination indicates an index or key outside the current combination set.
	ErrUnknownCombination = errors.New("composite: unknown combination")
)

// ValidationError reports a guard failure. Nothing is committed when it is returned.
type ValidationError struct {
	Condition Condition
	Message   string
	// Indices lists the affected combination positions when the condition is per-combination.
	Indices []int
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return fmt.Sprintf("composite: validation failed: %s", e.Condition)
	}
	return fmt.Sprintf("composite: validation failed: %s: %s", e.Condition, e.Message)
}

func newValidationError(condition Condition, format string, args ...any) *ValidationError {
	return &ValidationError{Condition: condition, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// IdenticalProductError is returned when both sides of a pairing reference the same product.
type IdenticalProductError struct {
	ProductID string
}

func (e *IdenticalProductError) Error() string {
	return fmt.Sprintf("composite: base products must differ (both are %q)", e.ProductID)
}

// Is lets errors.Is match ErrIdenticalProducts.
func (e *IdenticalProductError) Is(target error) bool {
	return target == ErrIdenticalProducts
}

// InvalidSelectionError is returned when a variant selection cannot be expanded.
type InvalidSelectionError struct {
	Side      Side
	ProductID string
	Reason    string
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("composite: invalid selection for side %s (product %q): %s", e.Side, e.ProductID, e.Reason)
}

// Is lets errors.Is match ErrInvalidSelection.
func (e *InvalidSelectionError) Is(target error) bool {
	return target == ErrInvalidSelection
}

// GenerationError wraps a failure of the combination generator observed by the Controller.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("composite: generate combinations: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// UploadError reports a failed image upload for one combination. The combination record is left untouched
// and the same operation may be retried.
type UploadError struct {
	Index int
	Key   domain.CombinationKey
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("composite: upload for combination %d (%s): %v", e.Index, e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// SubmitError wraps a failed aggregate save. The save must not be assumed to have partially succeeded.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("composite: submit: %v", e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

func formatIndices(indices []int) string {
	parts := make([]string, 0, len(indices))
	for _, idx := range indices {
		parts = append(parts, fmt.Sprintf("%d", idx))
	}
	return strings.Join(parts, ", ")
}
