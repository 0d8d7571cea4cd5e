package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	ShopifyAPIKey      string
	ShopifyAPISecret   string
	ShopifyAPIVersion  string
	ShopifyAdminToken  string
	CORSAllowedOrigins []string
	CurrencyCode       string

	SessionClockSkew time.Duration
	IdempotencyTTL   time.Duration

	StorefrontCacheTTL      time.Duration
	StorefrontRateWindow    time.Duration
	StorefrontRateMax       int
	AnalyticsCacheTTL       time.Duration
	AnalyticsDefaultDays    int
	AdminDefaultPageSize    int
	AdminMaxPageSize        int
	InventoryTimeout        time.Duration
	InventoryRetryBase      time.Duration
	InventoryMaxAttempts    int
	InventoryBreakerMinReq  int
	InventoryBreakerRatio   float64
	InventoryBreakerOpenFor time.Duration

	TrackQueueKey string
	TrackLockTTL  time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		ShopifyAPIKey:      k.String("SHOPIFY_API_KEY"),
		ShopifyAPISecret:   k.String("SHOPIFY_API_SECRET"),
		ShopifyAPIVersion:  valueOrDefault(k.String("SHOPIFY_API_VERSION"), "2025-07"),
		ShopifyAdminToken:  k.String("SHOPIFY_ADMIN_TOKEN"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CurrencyCode:       valueOrDefault(k.String("CURRENCY_CODE"), "EUR"),

		SessionClockSkew: parseDuration(k.String("SESSION_CLOCK_SKEW"), "10s"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		StorefrontCacheTTL:      parseDuration(k.String("STOREFRONT_CACHE_TTL"), "60s"),
		StorefrontRateWindow:    parseDuration(k.String("STOREFRONT_RATE_WINDOW"), "1m"),
		StorefrontRateMax:       intOrDefault(k, "STOREFRONT_RATE_MAX", 120),
		AnalyticsCacheTTL:       parseDuration(k.String("ANALYTICS_CACHE_TTL"), "5m"),
		AnalyticsDefaultDays:    intOrDefault(k, "ANALYTICS_DEFAULT_DAYS", 30),
		AdminDefaultPageSize:    intOrDefault(k, "ADMIN_DEFAULT_PAGE_SIZE", 20),
		AdminMaxPageSize:        intOrDefault(k, "ADMIN_MAX_PAGE_SIZE", 100),
		InventoryTimeout:        parseDuration(k.String("INVENTORY_TIMEOUT"), "5s"),
		InventoryRetryBase:      parseDuration(k.String("INVENTORY_RETRY_BASE"), "200ms"),
		InventoryMaxAttempts:    intOrDefault(k, "INVENTORY_MAX_ATTEMPTS", 3),
		InventoryBreakerMinReq:  intOrDefault(k, "INVENTORY_BREAKER_MIN_REQUESTS", 10),
		InventoryBreakerRatio:   floatOrDefault(k, "INVENTORY_BREAKER_FAILURE_RATIO", 0.5),
		InventoryBreakerOpenFor: parseDuration(k.String("INVENTORY_BREAKER_OPEN_FOR"), "30s"),

		TrackQueueKey: valueOrDefault(k.String("TRACK_QUEUE_KEY"), "track:events"),
		TrackLockTTL:  parseDuration(k.String("TRACK_LOCK_TTL"), "30s"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.ShopifyAPISecret == "" {
		return nil, errors.New("SHOPIFY_API_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func intOrDefault(k *koanf.Koanf, key string, fallback int) int {
	if strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	return k.Int(key)
}

func floatOrDefault(k *koanf.Koanf, key string, fallback float64) float64 {
	if strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	return k.Float64(key)
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
