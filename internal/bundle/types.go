package bundle

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type discriminates the four supported bundle kinds.
type Type string

const (
	TypeFixed    Type = "fixed"
	TypeMixMatch Type = "mix_match"
	TypeVolume   Type = "volume"
	TypeTiered   Type = "tiered"
)

// Valid reports whether the type is one of the supported kinds.
func (t Type) Valid() bool {
	switch t {
	case TypeFixed, TypeMixMatch, TypeVolume, TypeTiered:
		return true
	}
	return false
}

// DiscountType enumerates the supported discount formulas.
type DiscountType string

const (
	DiscountPercentage        DiscountType = "percentage"
	DiscountFixedAmount       DiscountType = "fixed_amount"
	DiscountFixedPrice        DiscountType = "fixed_price"
	DiscountFixedPricePerItem DiscountType = "fixed_price_per_item"
)

// Status represents the merchant-facing lifecycle of a bundle.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Bundle is a merchant-defined grouping of products sold under a pricing rule.
// Only the fields relevant to Type are meaningful; the engine ignores the rest.
type Bundle struct {
	ID                 string           `json:"id"`
	Shop               string           `json:"shop"`
	Title              string           `json:"title"`
	Description        string           `json:"description,omitempty"`
	Type               Type             `json:"type"`
	Status             Status           `json:"status"`
	Price              *decimal.Decimal `json:"price,omitempty"`
	DiscountType       *DiscountType    `json:"discountType,omitempty"`
	DiscountValue      *decimal.Decimal `json:"discountValue,omitempty"`
	MinProducts        *int             `json:"minProducts,omitempty"`
	MaxProducts        *int             `json:"maxProducts,omitempty"`
	AllowDuplicates    bool             `json:"allowDuplicates"`
	ApplyToSameProduct bool             `json:"applyToSameProduct"`
	StartsAt           *time.Time       `json:"startsAt,omitempty"`
	EndsAt             *time.Time       `json:"endsAt,omitempty"`
	Items              []Item           `json:"items,omitempty"`
	Categories         []Category       `json:"categories,omitempty"`
	Tiers              []Tier           `json:"tiers,omitempty"`
	VolumeRules        []VolumeRule     `json:"volumeRules,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// Item is a product line belonging to a bundle definition.
type Item struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"productId"`
	VariantID     string          `json:"variantId,omitempty"`
	Title         string          `json:"title,omitempty"`
	Quantity      int             `json:"quantity"`
	IsRequired    bool            `json:"isRequired"`
	OriginalPrice decimal.Decimal `json:"originalPrice"`
	CategoryID    *string         `json:"categoryId,omitempty"`
	Position      int             `json:"position"`
}

// Category groups Mix & Match items under selection bounds.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MinSelect int    `json:"minSelect"`
	MaxSelect *int   `json:"maxSelect,omitempty"`
	Position  int    `json:"position"`
}

// Tier is a named price point of a tiered bundle requiring an exact
// product count, optionally restricted to an allow-list.
type Tier struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	ProductCount    int             `json:"productCount"`
	AllowedProducts []string        `json:"allowedProducts,omitempty"`
	Position        int             `json:"position"`
}

// VolumeRule maps a purchased-quantity range to a discount.
// A nil MaxQuantity leaves the range unbounded above.
type VolumeRule struct {
	ID            string          `json:"id"`
	MinQuantity   int             `json:"minQuantity"`
	MaxQuantity   *int            `json:"maxQuantity,omitempty"`
	DiscountType  DiscountType    `json:"discountType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	Label         string          `json:"label,omitempty"`
	Position      int             `json:"position"`
}

// SelectedItem is a customer's chosen line, supplied by the caller and
// never persisted.
type SelectedItem struct {
	ProductID string          `json:"productId"`
	VariantID string          `json:"variantId,omitempty"`
	Title     string          `json:"title,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// AppliedDiscount is the resolved discount used for a pricing calculation.
type AppliedDiscount struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
	Label string          `json:"label"`
}

// ItemPrice carries the per-line breakdown of a pricing result.
type ItemPrice struct {
	ProductID       string          `json:"productId"`
	VariantID       string          `json:"variantId,omitempty"`
	Quantity        int             `json:"quantity"`
	OriginalPrice   decimal.Decimal `json:"originalPrice"`
	DiscountedPrice decimal.Decimal `json:"discountedPrice"`
}

// PricingResult aggregates the outcome of a pricing calculation. The
// result always carries prices even when the selection is invalid.
type PricingResult struct {
	OriginalPrice   decimal.Decimal   `json:"originalPrice"`
	DiscountedPrice decimal.Decimal   `json:"discountedPrice"`
	SavingsAmount   decimal.Decimal   `json:"savingsAmount"`
	SavingsPercent  decimal.Decimal   `json:"savingsPercent"`
	Items           []ItemPrice       `json:"items"`
	Applied         *AppliedDiscount  `json:"appliedDiscount,omitempty"`
	Valid           bool              `json:"isValid"`
	Errors          []ValidationError `json:"validationErrors,omitempty"`
}

// ValidationError is a structured, field-tagged, user-facing message.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult is the outcome of a validation pass.
type ValidationResult struct {
	Valid  bool              `json:"isValid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// StockLevel describes variant availability as reported by the
// inventory collaborator.
type StockLevel struct {
	AvailableForSale  bool `json:"availableForSale"`
	QuantityAvailable int  `json:"quantityAvailable"`
}

// ScheduleActive reports whether the bundle's optional start/end window
// contains the provided instant. Bundles without a window are always in
// schedule.
func ScheduleActive(b Bundle, now time.Time) bool {
	if b.StartsAt != nil && now.Before(*b.StartsAt) {
		return false
	}
	if b.EndsAt != nil && now.After(*b.EndsAt) {
		return false
	}
	return true
}
