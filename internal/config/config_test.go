package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func requiredEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":       "postgres://localhost:5432/bundles",
		"REDIS_URL":          "redis://localhost:6379/0",
		"SHOPIFY_API_SECRET": "shh",
	}
}

func TestLoadRequiresCoreVars(t *testing.T) {
	cases := []struct {
		name    string
		missing string
	}{
		{"database url", "DATABASE_URL"},
		{"redis url", "REDIS_URL"},
		{"shopify secret", "SHOPIFY_API_SECRET"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := requiredEnv()
			env[tc.missing] = ""

			_, err := LoadForTests(env)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.missing)
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	env := requiredEnv()
	for _, key := range []string{
		"PORT", "SHOPIFY_API_VERSION", "CURRENCY_CODE", "SESSION_CLOCK_SKEW",
		"IDEMPOTENCY_TTL", "STOREFRONT_RATE_MAX", "ANALYTICS_DEFAULT_DAYS",
		"ADMIN_MAX_PAGE_SIZE", "INVENTORY_MAX_ATTEMPTS", "TRACK_QUEUE_KEY",
	} {
		env[key] = ""
	}

	cfg, err := LoadForTests(env)
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "2025-07", cfg.ShopifyAPIVersion)
	require.Equal(t, "EUR", cfg.CurrencyCode)
	require.Equal(t, 10*time.Second, cfg.SessionClockSkew)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.Equal(t, 120, cfg.StorefrontRateMax)
	require.Equal(t, 30, cfg.AnalyticsDefaultDays)
	require.Equal(t, 100, cfg.AdminMaxPageSize)
	require.Equal(t, 3, cfg.InventoryMaxAttempts)
	require.Equal(t, "track:events", cfg.TrackQueueKey)
}

func TestLoadParsesOverrides(t *testing.T) {
	env := requiredEnv()
	env["STOREFRONT_CACHE_TTL"] = "2m"
	env["ADMIN_MAX_PAGE_SIZE"] = "50"
	env["INVENTORY_BREAKER_FAILURE_RATIO"] = "0.75"
	env["CORS_ALLOWED_ORIGINS"] = "https://admin.example.com, https://widget.example.com"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)

	require.Equal(t, 2*time.Minute, cfg.StorefrontCacheTTL)
	require.Equal(t, 50, cfg.AdminMaxPageSize)
	require.Equal(t, 0.75, cfg.InventoryBreakerRatio)
	require.Equal(t, []string{"https://admin.example.com", "https://widget.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadFallsBackOnBadDuration(t *testing.T) {
	env := requiredEnv()
	env["SESSION_CLOCK_SKEW"] = "soon"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.SessionClockSkew)
}

func TestHTTPAddr(t *testing.T) {
	require.Equal(t, ":8080", (&Config{}).HTTPAddr())
	require.Equal(t, ":3000", (&Config{Port: "3000"}).HTTPAddr())
	require.Equal(t, ":9090", (&Config{Port: ":9090"}).HTTPAddr())
}
