// Package inventory resolves variant stock levels for checkout validation.
package inventory

import (
	"context"

	"github.com/bundleworks/bundle-api/internal/bundle"
)

// Lookup resolves current stock levels for a set of variant IDs on a shop.
type Lookup interface {
	Levels(ctx context.Context, shop string, variantIDs []string) (map[string]bundle.StockLevel, error)
}

// Static serves fixed stock levels. Used in tests and local development.
type Static struct {
	Stock map[string]bundle.StockLevel
}

// Levels returns the configured levels for the requested variants. Unknown
// variants are reported as available so local runs never block checkout.
func (s Static) Levels(_ context.Context, _ string, variantIDs []string) (map[string]bundle.StockLevel, error) {
	out := make(map[string]bundle.StockLevel, len(variantIDs))
	for _, id := range variantIDs {
		normalized := bundle.NormalizeID(id)
		if level, ok := s.Stock[normalized]; ok {
			out[normalized] = level
			continue
		}
		out[normalized] = bundle.StockLevel{AvailableForSale: true, QuantityAvailable: 1 << 20}
	}
	return out, nil
}
