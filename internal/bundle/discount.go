package bundle

import (
	"sort"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// ApplyDiscount applies a discount formula to an amount and returns the
// discounted amount along with a display label.
//
// Percentage discounts scale the original, fixed amounts subtract with a
// floor of zero, fixed price replaces the original outright. The
// fixed-price-per-item kind returns the original unchanged; the caller is
// responsible for multiplying by the item count. An unrecognized or empty
// type leaves the amount untouched and the label empty.
func ApplyDiscount(original decimal.Decimal, dt DiscountType, value decimal.Decimal) (decimal.Decimal, string) {
	switch dt {
	case DiscountPercentage:
		discounted := original.Mul(one.Sub(value.Div(hundred)))
		return discounted, value.String() + "% off"
	case DiscountFixedAmount:
		discounted := original.Sub(value)
		if discounted.IsNegative() {
			discounted = decimal.Zero
		}
		return discounted, "€" + value.String() + " off"
	case DiscountFixedPrice:
		return value, "€" + value.String()
	case DiscountFixedPricePerItem:
		return original, "€" + value.String() + " per item"
	default:
		return original, ""
	}
}

// FindApplicableRule selects the volume rule matching the given quantity.
// The highest qualifying MinQuantity wins even when ranges overlap; gaps
// between ranges simply yield no match. The rules slice is not mutated.
func FindApplicableRule(rules []VolumeRule, quantity int) *VolumeRule {
	if len(rules) == 0 {
		return nil
	}
	sorted := make([]VolumeRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinQuantity > sorted[j].MinQuantity
	})
	for i := range sorted {
		r := sorted[i]
		if quantity < r.MinQuantity {
			continue
		}
		if r.MaxQuantity != nil && quantity > *r.MaxQuantity {
			continue
		}
		return &sorted[i]
	}
	return nil
}
