package bundle

import "github.com/shopspring/decimal"

// CalculatePricing computes the price breakdown for a customer selection
// against a bundle definition. It never fails: invalid selections still
// produce arithmetic results with Valid=false and accumulated errors.
//
// quantity is the number of bundles purchased and defaults to 1.
func CalculatePricing(b Bundle, selected []SelectedItem, tierID string, quantity int) PricingResult {
	if quantity <= 0 {
		quantity = 1
	}
	qty := decimal.NewFromInt(int64(quantity))

	res := PricingResult{Valid: true}
	original := decimal.Zero
	res.Items = make([]ItemPrice, 0, len(selected))
	for _, sel := range selected {
		line := sel.Price.Mul(decimal.NewFromInt(int64(sel.Quantity))).Mul(qty)
		original = original.Add(line)
		res.Items = append(res.Items, ItemPrice{
			ProductID:       sel.ProductID,
			VariantID:       sel.VariantID,
			Quantity:        sel.Quantity,
			OriginalPrice:   line,
			DiscountedPrice: line,
		})
	}
	res.OriginalPrice = original
	res.DiscountedPrice = original

	switch b.Type {
	case TypeFixed:
		if b.Price != nil {
			res.DiscountedPrice = b.Price.Mul(qty)
			res.Applied = &AppliedDiscount{
				Type:  DiscountFixedPrice,
				Value: *b.Price,
				Label: "Bundle price: €" + b.Price.String(),
			}
		} else if b.DiscountType != nil && b.DiscountValue != nil {
			discounted, label := ApplyDiscount(original, *b.DiscountType, *b.DiscountValue)
			res.DiscountedPrice = discounted
			res.Applied = &AppliedDiscount{Type: *b.DiscountType, Value: *b.DiscountValue, Label: label}
		}

	case TypeMixMatch:
		if b.DiscountType != nil && b.DiscountValue != nil {
			discounted, label := ApplyDiscount(original, *b.DiscountType, *b.DiscountValue)
			res.DiscountedPrice = discounted
			res.Applied = &AppliedDiscount{Type: *b.DiscountType, Value: *b.DiscountValue, Label: label}
		}
		total := totalSelectedQuantity(selected)
		if b.MinProducts != nil && total < *b.MinProducts {
			res.fail("minProducts", minProductsMessage(*b.MinProducts), "MIN_PRODUCTS")
		}
		if b.MaxProducts != nil && total > *b.MaxProducts {
			res.fail("maxProducts", maxProductsMessage(*b.MaxProducts), "MAX_PRODUCTS")
		}

	case TypeVolume:
		totalQuantity := totalSelectedQuantity(selected) * quantity
		if rule := FindApplicableRule(b.VolumeRules, totalQuantity); rule != nil {
			discounted, label := ApplyDiscount(original, rule.DiscountType, rule.DiscountValue)
			if rule.Label != "" {
				label = rule.Label
			}
			res.DiscountedPrice = discounted
			res.Applied = &AppliedDiscount{Type: rule.DiscountType, Value: rule.DiscountValue, Label: label}
		}

	case TypeTiered:
		if tierID == "" {
			res.fail("tierId", "Please select a tier", "TIER_REQUIRED")
			break
		}
		tier := findTier(b.Tiers, tierID)
		if tier == nil {
			res.fail("tierId", "Invalid tier selected", "TIER_INVALID")
			break
		}
		res.DiscountedPrice = tier.Price.Mul(qty)
		res.Applied = &AppliedDiscount{
			Type:  DiscountFixedPrice,
			Value: tier.Price,
			Label: tier.Name + ": €" + tier.Price.String(),
		}
		// The count mismatch invalidates the selection but the tier
		// price above still stands.
		if total := totalSelectedQuantity(selected); total != tier.ProductCount {
			res.fail("items", tierCountMessage(tier.Name, tier.ProductCount), "TIER_PRODUCT_COUNT")
		}
	}

	// Allocate the aggregate discount across lines proportionally. Not
	// unit-price-aware: lines share one ratio, an observable behavior
	// storefront display depends on.
	if res.Applied != nil && original.IsPositive() {
		ratio := res.DiscountedPrice.Div(original)
		for i := range res.Items {
			res.Items[i].DiscountedPrice = res.Items[i].OriginalPrice.Mul(ratio)
		}
	}

	res.SavingsAmount = res.OriginalPrice.Sub(res.DiscountedPrice)
	if res.OriginalPrice.IsPositive() {
		res.SavingsPercent = res.SavingsAmount.Div(res.OriginalPrice).Mul(hundred).Round(2)
	} else {
		res.SavingsPercent = decimal.Zero
	}
	return res
}

func (r *PricingResult) fail(field, message, code string) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Code: code})
}

func totalSelectedQuantity(selected []SelectedItem) int {
	total := 0
	for _, sel := range selected {
		total += sel.Quantity
	}
	return total
}

func findTier(tiers []Tier, tierID string) *Tier {
	for i := range tiers {
		if tiers[i].ID == tierID {
			return &tiers[i]
		}
	}
	return nil
}
