package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bundleworks/bundle-api/internal/bundle"
	"github.com/bundleworks/bundle-api/internal/obs"
	"github.com/bundleworks/bundle-api/internal/resilience"
)

// ErrLookupFailed is returned when the Admin API could not be queried.
var ErrLookupFailed = errors.New("inventory: lookup failed")

const levelsQuery = `query VariantLevels($ids: [ID!]!) {
  nodes(ids: $ids) {
    ... on ProductVariant {
      id
      availableForSale
      inventoryQuantity
    }
  }
}`

// TokenSource resolves the Admin API access token for a shop.
type TokenSource func(ctx context.Context, shop string) (string, error)

// ShopifyClient queries variant stock levels from the Shopify Admin GraphQL API.
type ShopifyClient struct {
	HTTP       resilience.HTTPClient
	APIVersion string
	Tokens     TokenSource
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type levelsResponse struct {
	Data struct {
		Nodes []struct {
			ID                string `json:"id"`
			AvailableForSale  bool   `json:"availableForSale"`
			InventoryQuantity int    `json:"inventoryQuantity"`
		} `json:"nodes"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Levels fetches stock levels for the given variants. Returned keys are
// normalized numeric variant IDs.
func (c ShopifyClient) Levels(ctx context.Context, shop string, variantIDs []string) (map[string]bundle.StockLevel, error) {
	if len(variantIDs) == 0 {
		return map[string]bundle.StockLevel{}, nil
	}
	if c.Tokens == nil {
		return nil, errors.New("inventory: token source not configured")
	}
	token, err := c.Tokens(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("inventory: resolve token for %s: %w", shop, err)
	}

	gids := make([]string, 0, len(variantIDs))
	for _, id := range variantIDs {
		gids = append(gids, "gid://shopify/ProductVariant/"+bundle.NormalizeID(id))
	}
	payload, err := json.Marshal(graphqlRequest{
		Query:     levelsQuery,
		Variables: map[string]any{"ids": gids},
	})
	if err != nil {
		return nil, err
	}

	version := c.APIVersion
	if version == "" {
		version = "2025-07"
	}
	endpoint := fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shop, version)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", token)

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		recordLookup("error")
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		recordLookup("error")
		return nil, fmt.Errorf("%w: status %d", ErrLookupFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		recordLookup("error")
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	var parsed levelsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		recordLookup("error")
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if len(parsed.Errors) > 0 {
		recordLookup("error")
		return nil, fmt.Errorf("%w: %s", ErrLookupFailed, parsed.Errors[0].Message)
	}

	levels := make(map[string]bundle.StockLevel, len(parsed.Data.Nodes))
	for _, node := range parsed.Data.Nodes {
		if strings.TrimSpace(node.ID) == "" {
			continue
		}
		levels[bundle.NormalizeID(node.ID)] = bundle.StockLevel{
			AvailableForSale:  node.AvailableForSale,
			QuantityAvailable: node.InventoryQuantity,
		}
	}
	recordLookup("ok")
	return levels, nil
}

func recordLookup(result string) {
	if obs.InventoryLookupTotal != nil {
		obs.InventoryLookupTotal.WithLabelValues(result).Inc()
	}
}
