package bundle

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(value string) decimal.Decimal {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestApplyDiscountPercentage(t *testing.T) {
	cases := []struct {
		value string
		want  string
	}{
		{"0", "100"},
		{"15", "85"},
		{"100", "0"},
	}
	for _, tc := range cases {
		got, label := ApplyDiscount(d("100"), DiscountPercentage, d(tc.value))
		if !got.Equal(d(tc.want)) {
			t.Fatalf("percentage %s: expected %s got %s", tc.value, tc.want, got)
		}
		if label != tc.value+"% off" {
			t.Fatalf("unexpected label %q", label)
		}
	}
}

func TestApplyDiscountFixedAmountClamps(t *testing.T) {
	got, label := ApplyDiscount(d("30"), DiscountFixedAmount, d("50"))
	if !got.Equal(decimal.Zero) {
		t.Fatalf("expected clamp to zero, got %s", got)
	}
	if label != "€50 off" {
		t.Fatalf("unexpected label %q", label)
	}

	got, _ = ApplyDiscount(d("80"), DiscountFixedAmount, d("50"))
	if !got.Equal(d("30")) {
		t.Fatalf("expected 30, got %s", got)
	}
}

func TestApplyDiscountFixedPrice(t *testing.T) {
	got, label := ApplyDiscount(d("99"), DiscountFixedPrice, d("42"))
	if !got.Equal(d("42")) {
		t.Fatalf("expected 42, got %s", got)
	}
	if label != "€42" {
		t.Fatalf("unexpected label %q", label)
	}
}

func TestApplyDiscountFixedPricePerItemPassesThrough(t *testing.T) {
	got, label := ApplyDiscount(d("99"), DiscountFixedPricePerItem, d("10"))
	if !got.Equal(d("99")) {
		t.Fatalf("expected original unchanged, got %s", got)
	}
	if label != "€10 per item" {
		t.Fatalf("unexpected label %q", label)
	}
}

func TestApplyDiscountUnknownTypeIsNoop(t *testing.T) {
	got, label := ApplyDiscount(d("75"), DiscountType("bogus"), d("10"))
	if !got.Equal(d("75")) || label != "" {
		t.Fatalf("expected noop, got %s %q", got, label)
	}
}

func TestFindApplicableRuleHighestThresholdWins(t *testing.T) {
	five := 5
	rules := []VolumeRule{
		{MinQuantity: 3, MaxQuantity: &five, DiscountType: DiscountPercentage, DiscountValue: d("10")},
		{MinQuantity: 6, DiscountType: DiscountPercentage, DiscountValue: d("20")},
	}
	rule := FindApplicableRule(rules, 6)
	if rule == nil || !rule.DiscountValue.Equal(d("20")) {
		t.Fatalf("expected the 20%% rule, got %+v", rule)
	}
}

func TestFindApplicableRuleRespectsGaps(t *testing.T) {
	two := 2
	five := 5
	rules := []VolumeRule{
		{MinQuantity: 1, MaxQuantity: &two, DiscountValue: d("0")},
		{MinQuantity: 3, MaxQuantity: &five, DiscountValue: d("10")},
	}
	if rule := FindApplicableRule(rules, 6); rule != nil {
		t.Fatalf("expected no match above every range, got %+v", rule)
	}
	if rule := FindApplicableRule(nil, 3); rule != nil {
		t.Fatalf("expected no match for empty rules")
	}
}

func TestFindApplicableRuleDoesNotMutateInput(t *testing.T) {
	rules := []VolumeRule{
		{MinQuantity: 1, DiscountValue: d("5")},
		{MinQuantity: 6, DiscountValue: d("20")},
	}
	FindApplicableRule(rules, 10)
	if rules[0].MinQuantity != 1 || rules[1].MinQuantity != 6 {
		t.Fatalf("input slice was reordered: %+v", rules)
	}
}
