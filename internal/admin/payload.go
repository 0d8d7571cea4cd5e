package admin

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bundleworks/bundle-api/internal/bundle"
)

// bundlePayload is the write shape accepted by create and update endpoints.
type bundlePayload struct {
	Title              string               `json:"title" validate:"required,max=255"`
	Description        string               `json:"description" validate:"max=2000"`
	Type               string               `json:"type" validate:"required,oneof=fixed mix_match volume tiered"`
	Status             string               `json:"status" validate:"omitempty,oneof=draft active archived"`
	Price              *decimal.Decimal     `json:"price"`
	DiscountType       *string              `json:"discountType" validate:"omitempty,oneof=percentage fixed_amount fixed_price fixed_price_per_item"`
	DiscountValue      *decimal.Decimal     `json:"discountValue"`
	MinProducts        *int                 `json:"minProducts" validate:"omitempty,min=0"`
	MaxProducts        *int                 `json:"maxProducts" validate:"omitempty,min=0"`
	AllowDuplicates    bool                 `json:"allowDuplicates"`
	ApplyToSameProduct bool                 `json:"applyToSameProduct"`
	StartsAt           *time.Time           `json:"startsAt"`
	EndsAt             *time.Time           `json:"endsAt"`
	Items              []itemPayload        `json:"items" validate:"dive"`
	Categories         []categoryPayload    `json:"categories" validate:"dive"`
	Tiers              []tierPayload        `json:"tiers" validate:"dive"`
	VolumeRules        []volumeRulePayload  `json:"volumeRules" validate:"dive"`
}

type itemPayload struct {
	ProductID     string          `json:"productId" validate:"required"`
	VariantID     string          `json:"variantId"`
	Title         string          `json:"title"`
	Quantity      int             `json:"quantity" validate:"min=0"`
	IsRequired    bool            `json:"isRequired"`
	OriginalPrice decimal.Decimal `json:"originalPrice"`
	CategoryID    *string         `json:"categoryId"`
}

type categoryPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name" validate:"required"`
	MinSelect int    `json:"minSelect" validate:"min=0"`
	MaxSelect *int   `json:"maxSelect" validate:"omitempty,min=0"`
}

type tierPayload struct {
	ID              string          `json:"id"`
	Name            string          `json:"name" validate:"required"`
	Price           decimal.Decimal `json:"price"`
	ProductCount    int             `json:"productCount" validate:"min=1"`
	AllowedProducts []string        `json:"allowedProducts"`
}

type volumeRulePayload struct {
	MinQuantity   int             `json:"minQuantity" validate:"min=1"`
	MaxQuantity   *int            `json:"maxQuantity" validate:"omitempty,min=1"`
	DiscountType  string          `json:"discountType" validate:"required,oneof=percentage fixed_amount fixed_price fixed_price_per_item"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	Label         string          `json:"label"`
}

func (p bundlePayload) toBundle(shop, id string) bundle.Bundle {
	b := bundle.Bundle{
		ID:                 id,
		Shop:               shop,
		Title:              strings.TrimSpace(p.Title),
		Description:        strings.TrimSpace(p.Description),
		Type:               bundle.Type(p.Type),
		Status:             bundle.StatusDraft,
		Price:              p.Price,
		DiscountValue:      p.DiscountValue,
		MinProducts:        p.MinProducts,
		MaxProducts:        p.MaxProducts,
		AllowDuplicates:    p.AllowDuplicates,
		ApplyToSameProduct: p.ApplyToSameProduct,
		StartsAt:           p.StartsAt,
		EndsAt:             p.EndsAt,
	}
	if p.Status != "" {
		b.Status = bundle.Status(p.Status)
	}
	if p.DiscountType != nil {
		dt := bundle.DiscountType(*p.DiscountType)
		b.DiscountType = &dt
	}
	for i, item := range p.Items {
		b.Items = append(b.Items, bundle.Item{
			ProductID:     item.ProductID,
			VariantID:     item.VariantID,
			Title:         item.Title,
			Quantity:      item.Quantity,
			IsRequired:    item.IsRequired,
			OriginalPrice: item.OriginalPrice,
			CategoryID:    item.CategoryID,
			Position:      i,
		})
	}
	for i, cat := range p.Categories {
		b.Categories = append(b.Categories, bundle.Category{
			ID:        cat.ID,
			Name:      cat.Name,
			MinSelect: cat.MinSelect,
			MaxSelect: cat.MaxSelect,
			Position:  i,
		})
	}
	for i, tier := range p.Tiers {
		b.Tiers = append(b.Tiers, bundle.Tier{
			ID:              tier.ID,
			Name:            tier.Name,
			Price:           tier.Price,
			ProductCount:    tier.ProductCount,
			AllowedProducts: tier.AllowedProducts,
			Position:        i,
		})
	}
	for i, rule := range p.VolumeRules {
		b.VolumeRules = append(b.VolumeRules, bundle.VolumeRule{
			MinQuantity:   rule.MinQuantity,
			MaxQuantity:   rule.MaxQuantity,
			DiscountType:  bundle.DiscountType(rule.DiscountType),
			DiscountValue: rule.DiscountValue,
			Label:         rule.Label,
			Position:      i,
		})
	}
	return b
}

type previewPayload struct {
	Bundle   bundlePayload         `json:"bundle" validate:"required"`
	Selected []bundle.SelectedItem `json:"selectedItems"`
	TierID   string                `json:"tierId"`
	Quantity int                   `json:"quantity" validate:"omitempty,min=1"`
}

type statusPayload struct {
	Status string `json:"status" validate:"required,oneof=draft active archived"`
}
