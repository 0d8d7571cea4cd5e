package bundle

import (
	"testing"

	"github.com/shopspring/decimal"
)

func fixedBundle(price string) Bundle {
	p := d(price)
	return Bundle{Type: TypeFixed, Price: &p}
}

func TestCalculatePricingFixedBundlePrice(t *testing.T) {
	selected := []SelectedItem{
		{ProductID: "1", Quantity: 1, Price: d("30")},
		{ProductID: "2", Quantity: 1, Price: d("25")},
	}
	res := CalculatePricing(fixedBundle("50"), selected, "", 1)

	if !res.Valid {
		t.Fatalf("expected valid result, got errors %+v", res.Errors)
	}
	if !res.OriginalPrice.Equal(d("55")) {
		t.Fatalf("expected original 55, got %s", res.OriginalPrice)
	}
	if !res.DiscountedPrice.Equal(d("50")) {
		t.Fatalf("expected discounted 50, got %s", res.DiscountedPrice)
	}
	if !res.SavingsAmount.Equal(d("5")) {
		t.Fatalf("expected savings 5, got %s", res.SavingsAmount)
	}
	if !res.SavingsPercent.Equal(d("9.09")) {
		t.Fatalf("expected savings percent 9.09, got %s", res.SavingsPercent)
	}
	if res.Applied == nil || res.Applied.Label != "Bundle price: €50" {
		t.Fatalf("unexpected applied discount %+v", res.Applied)
	}
}

func TestCalculatePricingFixedPriceScalesWithQuantity(t *testing.T) {
	selected := []SelectedItem{{ProductID: "1", Quantity: 2, Price: d("40")}}
	res := CalculatePricing(fixedBundle("50"), selected, "", 3)
	if !res.DiscountedPrice.Equal(d("150")) {
		t.Fatalf("expected 150, got %s", res.DiscountedPrice)
	}
	if !res.OriginalPrice.Equal(d("240")) {
		t.Fatalf("expected 240, got %s", res.OriginalPrice)
	}
}

func TestCalculatePricingFixedDiscountFallback(t *testing.T) {
	dt := DiscountPercentage
	dv := d("20")
	b := Bundle{Type: TypeFixed, DiscountType: &dt, DiscountValue: &dv}
	selected := []SelectedItem{{ProductID: "1", Quantity: 1, Price: d("100")}}
	res := CalculatePricing(b, selected, "", 1)
	if !res.DiscountedPrice.Equal(d("80")) {
		t.Fatalf("expected 80, got %s", res.DiscountedPrice)
	}
}

func TestCalculatePricingFixedWithoutDiscountKeepsOriginal(t *testing.T) {
	b := Bundle{Type: TypeFixed}
	selected := []SelectedItem{{ProductID: "1", Quantity: 1, Price: d("100")}}
	res := CalculatePricing(b, selected, "", 1)
	if !res.DiscountedPrice.Equal(d("100")) || res.Applied != nil {
		t.Fatalf("expected untouched pricing, got %s applied=%+v", res.DiscountedPrice, res.Applied)
	}
}

func TestCalculatePricingMixMatchBelowMinimumStillPrices(t *testing.T) {
	minP, maxP := 3, 5
	dt := DiscountPercentage
	dv := d("15")
	b := Bundle{Type: TypeMixMatch, MinProducts: &minP, MaxProducts: &maxP, DiscountType: &dt, DiscountValue: &dv}
	selected := []SelectedItem{{ProductID: "1", Quantity: 2, Price: d("10")}}

	res := CalculatePricing(b, selected, "", 1)
	if res.Valid {
		t.Fatalf("expected invalid result")
	}
	found := false
	for _, e := range res.Errors {
		if e.Message == "Minimum 3 products required" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected minimum products error, got %+v", res.Errors)
	}
	// Pricing is still computed arithmetically even though invalid.
	if !res.DiscountedPrice.Equal(d("17")) {
		t.Fatalf("expected 17 (15%% off 20), got %s", res.DiscountedPrice)
	}
}

func TestCalculatePricingMixMatchAboveMaximum(t *testing.T) {
	maxP := 2
	b := Bundle{Type: TypeMixMatch, MaxProducts: &maxP}
	selected := []SelectedItem{{ProductID: "1", Quantity: 3, Price: d("10")}}
	res := CalculatePricing(b, selected, "", 1)
	if res.Valid {
		t.Fatalf("expected invalid result")
	}
	if res.Errors[0].Code != "MAX_PRODUCTS" {
		t.Fatalf("unexpected errors %+v", res.Errors)
	}
}

func TestCalculatePricingVolumeMatchesMiddleRule(t *testing.T) {
	two, five := 2, 5
	b := Bundle{Type: TypeVolume, VolumeRules: []VolumeRule{
		{MinQuantity: 1, MaxQuantity: &two, DiscountType: DiscountPercentage, DiscountValue: d("0")},
		{MinQuantity: 3, MaxQuantity: &five, DiscountType: DiscountPercentage, DiscountValue: d("10")},
		{MinQuantity: 6, DiscountType: DiscountPercentage, DiscountValue: d("20")},
	}}
	selected := []SelectedItem{{ProductID: "1", Quantity: 4, Price: d("10")}}

	res := CalculatePricing(b, selected, "", 1)
	if !res.Valid {
		t.Fatalf("expected valid result, got %+v", res.Errors)
	}
	if !res.DiscountedPrice.Equal(d("36")) {
		t.Fatalf("expected 36 (10%% off 40), got %s", res.DiscountedPrice)
	}
}

func TestCalculatePricingVolumeUsesRuleLabel(t *testing.T) {
	b := Bundle{Type: TypeVolume, VolumeRules: []VolumeRule{
		{MinQuantity: 2, DiscountType: DiscountPercentage, DiscountValue: d("10"), Label: "Buy 2, save 10%"},
	}}
	selected := []SelectedItem{{ProductID: "1", Quantity: 2, Price: d("10")}}
	res := CalculatePricing(b, selected, "", 1)
	if res.Applied == nil || res.Applied.Label != "Buy 2, save 10%" {
		t.Fatalf("expected rule label, got %+v", res.Applied)
	}
}

func TestCalculatePricingVolumeNoRuleNoDiscount(t *testing.T) {
	five := 5
	b := Bundle{Type: TypeVolume, VolumeRules: []VolumeRule{
		{MinQuantity: 3, MaxQuantity: &five, DiscountType: DiscountPercentage, DiscountValue: d("10")},
	}}
	selected := []SelectedItem{{ProductID: "1", Quantity: 1, Price: d("10")}}
	res := CalculatePricing(b, selected, "", 1)
	if !res.Valid {
		t.Fatalf("an unmatched quantity is not an error")
	}
	if res.Applied != nil || !res.DiscountedPrice.Equal(d("10")) {
		t.Fatalf("expected no discount, got %+v %s", res.Applied, res.DiscountedPrice)
	}
}

func TestCalculatePricingVolumeCountsBundleQuantity(t *testing.T) {
	b := Bundle{Type: TypeVolume, VolumeRules: []VolumeRule{
		{MinQuantity: 6, DiscountType: DiscountPercentage, DiscountValue: d("20")},
	}}
	selected := []SelectedItem{{ProductID: "1", Quantity: 3, Price: d("10")}}
	// 3 selected x 2 bundles = 6 total, enough for the rule.
	res := CalculatePricing(b, selected, "", 2)
	if res.Applied == nil || !res.Applied.Value.Equal(d("20")) {
		t.Fatalf("expected the 20%% rule, got %+v", res.Applied)
	}
}

func TestCalculatePricingTieredHappyPath(t *testing.T) {
	b := Bundle{Type: TypeTiered, Tiers: []Tier{
		{ID: "t1", Name: "Trio", Price: d("65"), ProductCount: 3},
	}}
	selected := []SelectedItem{{ProductID: "1", Quantity: 3, Price: d("25")}}

	res := CalculatePricing(b, selected, "t1", 1)
	if !res.Valid {
		t.Fatalf("expected valid, got %+v", res.Errors)
	}
	if !res.DiscountedPrice.Equal(d("65")) {
		t.Fatalf("expected tier price 65, got %s", res.DiscountedPrice)
	}
	if res.Applied == nil || res.Applied.Label != "Trio: €65" {
		t.Fatalf("unexpected applied %+v", res.Applied)
	}
}

func TestCalculatePricingTieredMissingTier(t *testing.T) {
	b := Bundle{Type: TypeTiered, Tiers: []Tier{{ID: "t1", Price: d("65"), ProductCount: 3}}}
	selected := []SelectedItem{{ProductID: "1", Quantity: 3, Price: d("25")}}

	res := CalculatePricing(b, selected, "", 1)
	if res.Valid || res.Errors[0].Message != "Please select a tier" {
		t.Fatalf("expected tier required error, got %+v", res.Errors)
	}
	if !res.DiscountedPrice.Equal(res.OriginalPrice) {
		t.Fatalf("expected price fallback to original")
	}
}

func TestCalculatePricingTieredInvalidTier(t *testing.T) {
	b := Bundle{Type: TypeTiered, Tiers: []Tier{{ID: "t1", Price: d("65"), ProductCount: 3}}}
	selected := []SelectedItem{{ProductID: "1", Quantity: 3, Price: d("25")}}

	res := CalculatePricing(b, selected, "nope", 1)
	if res.Valid || res.Errors[0].Message != "Invalid tier selected" {
		t.Fatalf("expected invalid tier error, got %+v", res.Errors)
	}
	if !res.DiscountedPrice.Equal(res.OriginalPrice) {
		t.Fatalf("expected price fallback to original, got %s", res.DiscountedPrice)
	}
}

func TestCalculatePricingTieredCountMismatchKeepsTierPrice(t *testing.T) {
	b := Bundle{Type: TypeTiered, Tiers: []Tier{{ID: "t1", Name: "Trio", Price: d("65"), ProductCount: 3}}}
	selected := []SelectedItem{{ProductID: "1", Quantity: 2, Price: d("25")}}

	res := CalculatePricing(b, selected, "t1", 1)
	if res.Valid {
		t.Fatalf("expected invalid result")
	}
	// The mismatch does not block price computation.
	if !res.DiscountedPrice.Equal(d("65")) {
		t.Fatalf("expected tier price despite mismatch, got %s", res.DiscountedPrice)
	}
}

func TestCalculatePricingZeroOriginalNoDivisionError(t *testing.T) {
	res := CalculatePricing(fixedBundle("0"), nil, "", 1)
	if !res.SavingsPercent.Equal(decimal.Zero) {
		t.Fatalf("expected zero savings percent, got %s", res.SavingsPercent)
	}
}

func TestCalculatePricingProportionalItemAllocation(t *testing.T) {
	selected := []SelectedItem{
		{ProductID: "1", Quantity: 1, Price: d("30")},
		{ProductID: "2", Quantity: 1, Price: d("10")},
	}
	res := CalculatePricing(fixedBundle("20"), selected, "", 1)

	// 20/40 ratio applied per line, not unit-price-aware.
	if !res.Items[0].DiscountedPrice.Equal(d("15")) {
		t.Fatalf("expected 15 for first line, got %s", res.Items[0].DiscountedPrice)
	}
	if !res.Items[1].DiscountedPrice.Equal(d("5")) {
		t.Fatalf("expected 5 for second line, got %s", res.Items[1].DiscountedPrice)
	}
}

func TestCalculatePricingDefaultsQuantityToOne(t *testing.T) {
	selected := []SelectedItem{{ProductID: "1", Quantity: 1, Price: d("10")}}
	res := CalculatePricing(fixedBundle("8"), selected, "", 0)
	if !res.DiscountedPrice.Equal(d("8")) {
		t.Fatalf("expected quantity fallback to 1, got %s", res.DiscountedPrice)
	}
}
