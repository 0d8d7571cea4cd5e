package cache

import (
	"context"
	"strings"
	"time"

	"github.com/bundleworks/bundle-api/internal/common"
)

// KeyBundleDisplay returns a per-shop cache key for the storefront bundle payload.
func KeyBundleDisplay(ctx context.Context, bundleID string) string {
	shop, ok := common.Shop(ctx)
	if !ok {
		return "bundle:display:" + bundleID
	}
	return shop + ":bundle:display:" + bundleID
}

// KeyAnalytics returns a per-shop key for a cached analytics report.
func KeyAnalytics(shop, report string, from, to time.Time) string {
	return strings.Join([]string{
		"an", shop, report, from.Format("2006-01-02"), to.Format("2006-01-02"),
	}, ":")
}
