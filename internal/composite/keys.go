package composite

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/mobilia/backoffice/internal/domain"
)

// Key parts are tagged so the whole-product pseudo-variant never collides with a real variant value.
const (
	wholeProductIdentity = "w:"
	variantIdentityTag   = "v:"
)

// Side selects one of the two base products of a pairing.
type Side int

const (
	SideA Side = iota
	SideB
)

func (s Side) String() string {
	switch s {
	case SideA:
		return "A"
	case SideB:
		return "B"
	default:
		return "?"
	}
}

// VariantIdentity returns the selection identity of a variant: its value, NFKC-normalised and case folded.
func VariantIdentity(v domain.Variant) string {
	value := norm.NFKC.String(strings.TrimSpace(v.Value))
	// cases.Caser is stateful, so a fresh one is used per call.
	return cases.Fold().String(value)
}

func optionIdentity(opt domain.VariantOption) string {
	if opt.WholeProduct {
		return wholeProductIdentity
	}
	return variantIdentityTag + VariantIdentity(opt.Variant)
}

// KeyFor derives the combination key of a variant pair.
func KeyFor(a, b domain.VariantOption) domain.CombinationKey {
	h := sha256.New()
	var size [4]byte
	for _, part := range []string{
		strings.TrimSpace(a.ProductID),
		optionIdentity(a),
		strings.TrimSpace(b.ProductID),
		optionIdentity(b),
	} {
		binary.BigEndian.PutUint32(size[:], uint32(len(part)))
		h.Write(size[:])
		h.Write([]byte(part))
	}
	sum := h.Sum(nil)
	return domain.CombinationKey(hex.EncodeToString(sum[:12]))
}

// KeysOf lists the keys of the given records in order.
func KeysOf(records []domain.CombinationRecord) []domain.CombinationKey {
	keys := make([]domain.CombinationKey, 0, len(records))
	for _, record := range records {
		keys = append(keys, record.Key)
	}
	return keys
}

// RegenerationDiff is the set difference between the combination keys before and after a regeneration.
type RegenerationDiff struct {
	Added    []domain.CombinationKey
	Removed  []domain.CombinationKey
	Retained []domain.CombinationKey
}

// Unchanged reports whether the regeneration neither added nor removed combinations.
func (d RegenerationDiff) Unchanged() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// DiffKeys compares two key sequences. Added and Retained follow the order of next, Removed the order of prev.
func DiffKeys(prev, next []domain.CombinationKey) RegenerationDiff {
	prevSet := make(map[domain.CombinationKey]struct{}, len(prev))
	for _, key := range prev {
		prevSet[key] = struct{}{}
	}
	nextSet := make(map[domain.CombinationKey]struct{}, len(next))
	var diff RegenerationDiff
	for _, key := range next {
		nextSet[key] = struct{}{}
		if _, ok := prevSet[key]; ok {
			diff.Retained = append(diff.Retained, key)
		} else {
			diff.Added = append(diff.Added, key)
		}
	}
	for _, key := range prev {
		if _, ok := nextSet[key]; !ok {
			diff.Removed = append(diff.Removed, key)
		}
	}
	return diff
}

func sameSequence(a, b []domain.CombinationKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
