package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bundleworks/bundle-api/internal/common"
)

func TestKeyBundleDisplayScopesByShop(t *testing.T) {
	ctx := common.WithShop(context.Background(), "demo-shop.myshopify.com")
	require.Equal(t, "demo-shop.myshopify.com:bundle:display:b1", KeyBundleDisplay(ctx, "b1"))
	require.Equal(t, "bundle:display:b1", KeyBundleDisplay(context.Background(), "b1"))
}

func TestKeyAnalyticsUsesDateBounds(t *testing.T) {
	from := time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)
	to := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	key := KeyAnalytics("demo-shop.myshopify.com", "bundles", from, to)
	require.Equal(t, "an:demo-shop.myshopify.com:bundles:2026-08-01:2026-08-31", key)
}
