package inventory_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bundleworks/bundle-api/internal/bundle"
	"github.com/bundleworks/bundle-api/internal/inventory"
	"github.com/bundleworks/bundle-api/internal/resilience"
)

func TestShopifyClientLevels(t *testing.T) {
	var gotToken string
	var gotIDs []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		var req struct {
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotIDs, _ = req.Variables["ids"].([]any)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"nodes": []map[string]any{
					{"id": "gid://shopify/ProductVariant/111", "availableForSale": true, "inventoryQuantity": 7},
					{"id": "gid://shopify/ProductVariant/222", "availableForSale": false, "inventoryQuantity": 0},
				},
			},
		})
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv)
	levels, err := client.Levels(context.Background(), "demo-shop.myshopify.com", []string{"gid://shopify/ProductVariant/111", "222"})
	require.NoError(t, err)
	require.Equal(t, "shpat_test", gotToken)
	require.Len(t, gotIDs, 2)
	require.Equal(t, bundle.StockLevel{AvailableForSale: true, QuantityAvailable: 7}, levels["111"])
	require.Equal(t, bundle.StockLevel{AvailableForSale: false, QuantityAvailable: 0}, levels["222"])
}

func TestShopifyClientGraphQLErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "Throttled"}},
		})
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv)
	_, err := client.Levels(context.Background(), "demo-shop.myshopify.com", []string{"111"})
	require.ErrorIs(t, err, inventory.ErrLookupFailed)
}

func TestShopifyClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv)
	_, err := client.Levels(context.Background(), "demo-shop.myshopify.com", []string{"111"})
	require.ErrorIs(t, err, inventory.ErrLookupFailed)
}

func TestStaticDefaultsToAvailable(t *testing.T) {
	static := inventory.Static{Stock: map[string]bundle.StockLevel{
		"111": {AvailableForSale: false, QuantityAvailable: 0},
	}}
	levels, err := static.Levels(context.Background(), "demo-shop.myshopify.com", []string{"gid://shopify/ProductVariant/111", "999"})
	require.NoError(t, err)
	require.False(t, levels["111"].AvailableForSale)
	require.True(t, levels["999"].AvailableForSale)
}

// newTestClient rewrites all outbound requests to the test server so the
// hard-coded shop hostname never resolves.
func newTestClient(t *testing.T, srv *httptest.Server) inventory.ShopifyClient {
	t.Helper()
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	httpClient := &http.Client{
		Transport: rewriteTransport{host: target.Host},
		Timeout:   2 * time.Second,
	}
	return inventory.ShopifyClient{
		HTTP: resilience.HTTPClient{
			Client:      httpClient,
			MaxAttempts: 1,
		},
		APIVersion: "2025-07",
		Tokens: func(context.Context, string) (string, error) {
			return "shpat_test", nil
		},
	}
}

type rewriteTransport struct {
	host string
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = "http"
	clone.URL.Host = rt.host
	return http.DefaultTransport.RoundTrip(clone)
}
