package bundle

import (
	"fmt"
	"strings"
)

// Scope selects how much of the rule set Evaluate applies. The scopes are
// cumulative: selection implies the configuration checks, checkout implies
// both plus inventory sufficiency. One evaluator serves the admin save
// path, the storefront validate path and the add-to-cart path so the three
// call sites cannot drift apart.
type Scope int

const (
	// ScopeConfig covers configuration-time checks applied when a
	// merchant saves a bundle.
	ScopeConfig Scope = iota
	// ScopeSelection adds the checks against a customer's chosen items.
	ScopeSelection
	// ScopeCheckout adds inventory sufficiency on top of selection.
	ScopeCheckout
)

// Context carries everything a validation pass may need. Stock is only
// consulted at ScopeCheckout and is keyed by normalized variant id.
type Context struct {
	Scope    Scope
	Bundle   Bundle
	Selected []SelectedItem
	TierID   string
	Quantity int
	Stock    map[string]StockLevel
}

// ValidateConfig runs the configuration-time checks (merchant save path).
func ValidateConfig(b Bundle) ValidationResult {
	return Evaluate(Context{Scope: ScopeConfig, Bundle: b})
}

// ValidateSelection runs configuration plus selection-time checks
// (storefront validate path).
func ValidateSelection(b Bundle, selected []SelectedItem, tierID string, quantity int) ValidationResult {
	return Evaluate(Context{Scope: ScopeSelection, Bundle: b, Selected: selected, TierID: tierID, Quantity: quantity})
}

// ValidateCheckout runs the full rule set including inventory sufficiency
// (add-to-cart path).
func ValidateCheckout(b Bundle, selected []SelectedItem, tierID string, quantity int, stock map[string]StockLevel) ValidationResult {
	return Evaluate(Context{Scope: ScopeCheckout, Bundle: b, Selected: selected, TierID: tierID, Quantity: quantity, Stock: stock})
}

// Evaluate applies every check for the requested scope. Checks are
// independent and all evaluated; the function never fails, it only
// accumulates errors.
func Evaluate(ictx Context) ValidationResult {
	res := ValidationResult{Valid: true}
	evalConfig(&res, ictx.Bundle)
	if ictx.Scope >= ScopeSelection {
		evalSelection(&res, ictx)
	}
	if ictx.Scope >= ScopeCheckout {
		evalInventory(&res, ictx)
	}
	return res
}

func evalConfig(res *ValidationResult, b Bundle) {
	if strings.TrimSpace(b.Title) == "" {
		res.add("title", "Title is required", "REQUIRED")
	}
	if b.Type == "" {
		res.add("type", "Bundle type is required", "REQUIRED")
	} else if !b.Type.Valid() {
		res.add("type", "Unknown bundle type", "INVALID_TYPE")
	}

	switch b.Type {
	case TypeFixed:
		if len(b.Items) == 0 {
			res.add("items", "At least one product is required", "MIN_ITEMS")
		}
		if b.Price == nil && b.DiscountType == nil {
			res.add("price", "A bundle price or a discount is required", "REQUIRED")
		}
	case TypeMixMatch:
		if len(b.Items) == 0 {
			res.add("items", "At least one product is required", "MIN_ITEMS")
		}
		if b.MinProducts != nil && b.MaxProducts != nil && *b.MinProducts > *b.MaxProducts {
			res.add("minProducts", "Minimum products cannot exceed maximum products", "INVALID_RANGE")
		}
	case TypeVolume:
		if len(b.VolumeRules) == 0 {
			res.add("volumeRules", "At least one volume rule is required", "MIN_RULES")
		}
	case TypeTiered:
		if len(b.Tiers) == 0 {
			res.add("tiers", "At least one tier is required", "MIN_TIERS")
		}
	}

	if b.StartsAt != nil && b.EndsAt != nil && !b.StartsAt.Before(*b.EndsAt) {
		res.add("startsAt", "Start date must be before end date", "INVALID_DATE_RANGE")
	}
}

func evalSelection(res *ValidationResult, ictx Context) {
	b := ictx.Bundle
	total := totalSelectedQuantity(ictx.Selected)

	switch b.Type {
	case TypeMixMatch:
		if b.MinProducts != nil && total < *b.MinProducts {
			res.add("minProducts", minProductsMessage(*b.MinProducts), "MIN_PRODUCTS")
		}
		if b.MaxProducts != nil && total > *b.MaxProducts {
			res.add("maxProducts", maxProductsMessage(*b.MaxProducts), "MAX_PRODUCTS")
		}
		evalCategories(res, b, ictx.Selected)
		if !b.AllowDuplicates {
			evalDuplicates(res, ictx.Selected)
		}
	case TypeVolume:
		if b.ApplyToSameProduct {
			evalSameProduct(res, ictx.Selected)
		}
	case TypeTiered:
		evalTierSelection(res, b, ictx.Selected, ictx.TierID)
	}
}

func evalCategories(res *ValidationResult, b Bundle, selected []SelectedItem) {
	if len(b.Categories) == 0 {
		return
	}
	// Map normalized item identifiers to their category so selections can
	// be attributed without relying on the raw id format.
	itemCategory := make(map[string]string, len(b.Items)*2)
	for _, it := range b.Items {
		if it.CategoryID == nil {
			continue
		}
		if id := NormalizeID(it.VariantID); id != "" {
			itemCategory["v:"+id] = *it.CategoryID
		}
		if id := NormalizeID(it.ProductID); id != "" {
			itemCategory["p:"+id] = *it.CategoryID
		}
	}
	counts := make(map[string]int, len(b.Categories))
	for _, sel := range selected {
		catID, ok := itemCategory["v:"+NormalizeID(sel.VariantID)]
		if !ok {
			catID, ok = itemCategory["p:"+NormalizeID(sel.ProductID)]
		}
		if ok {
			counts[catID] += sel.Quantity
		}
	}
	for _, cat := range b.Categories {
		count := counts[cat.ID]
		if cat.MinSelect > 0 && count < cat.MinSelect {
			res.add("categories", fmt.Sprintf("Select at least %d from %s", cat.MinSelect, cat.Name), "CATEGORY_MIN")
		}
		if cat.MaxSelect != nil && count > *cat.MaxSelect {
			res.add("categories", fmt.Sprintf("Select at most %d from %s", *cat.MaxSelect, cat.Name), "CATEGORY_MAX")
		}
	}
}

func evalDuplicates(res *ValidationResult, selected []SelectedItem) {
	seen := make(map[string]int, len(selected))
	for _, sel := range selected {
		key := NormalizeID(sel.VariantID)
		if key == "" {
			key = NormalizeID(sel.ProductID)
		}
		seen[key]++
	}
	for key, count := range seen {
		if key != "" && count > 1 {
			res.add("items", "Duplicate selections are not allowed for this bundle", "DUPLICATE_SELECTION")
			return
		}
	}
}

func evalSameProduct(res *ValidationResult, selected []SelectedItem) {
	first := ""
	for _, sel := range selected {
		id := NormalizeID(sel.ProductID)
		if id == "" {
			continue
		}
		if first == "" {
			first = id
			continue
		}
		if id != first {
			res.add("items", "All selected items must be the same product", "SAME_PRODUCT_REQUIRED")
			return
		}
	}
}

func evalTierSelection(res *ValidationResult, b Bundle, selected []SelectedItem, tierID string) {
	if tierID == "" {
		res.add("tierId", "Please select a tier", "TIER_REQUIRED")
		return
	}
	tier := findTier(b.Tiers, tierID)
	if tier == nil {
		res.add("tierId", "Invalid tier selected", "TIER_INVALID")
		return
	}
	if total := totalSelectedQuantity(selected); total != tier.ProductCount {
		res.add("items", tierCountMessage(tier.Name, tier.ProductCount), "TIER_PRODUCT_COUNT")
	}
	if len(tier.AllowedProducts) == 0 {
		return
	}
	allowed := make(map[string]struct{}, len(tier.AllowedProducts))
	for _, id := range tier.AllowedProducts {
		allowed[NormalizeID(id)] = struct{}{}
	}
	for _, sel := range selected {
		_, okProduct := allowed[NormalizeID(sel.ProductID)]
		_, okVariant := allowed[NormalizeID(sel.VariantID)]
		if !okProduct && !okVariant {
			res.add("items", fmt.Sprintf("%s is not available in %s", selectionName(sel), tier.Name), "TIER_PRODUCT_NOT_ALLOWED")
		}
	}
}

func evalInventory(res *ValidationResult, ictx Context) {
	quantity := ictx.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	for _, sel := range ictx.Selected {
		key := NormalizeID(sel.VariantID)
		if key == "" {
			key = NormalizeID(sel.ProductID)
		}
		level, ok := ictx.Stock[key]
		if !ok || !level.AvailableForSale {
			res.add("inventory", fmt.Sprintf("%s is unavailable", selectionName(sel)), "OUT_OF_STOCK")
			continue
		}
		required := sel.Quantity * quantity
		if required > level.QuantityAvailable {
			res.add("inventory", fmt.Sprintf("Insufficient stock for %s: only %d available", selectionName(sel), level.QuantityAvailable), "INSUFFICIENT_STOCK")
		}
	}
}

func (r *ValidationResult) add(field, message, code string) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Code: code})
}

func selectionName(sel SelectedItem) string {
	if strings.TrimSpace(sel.Title) != "" {
		return sel.Title
	}
	if id := NormalizeID(sel.VariantID); id != "" {
		return "variant " + id
	}
	return "product " + NormalizeID(sel.ProductID)
}

func minProductsMessage(n int) string {
	return fmt.Sprintf("Minimum %d products required", n)
}

func maxProductsMessage(n int) string {
	return fmt.Sprintf("Maximum %d products allowed", n)
}

func tierCountMessage(name string, n int) string {
	return fmt.Sprintf("%s requires exactly %d products", name, n)
}
