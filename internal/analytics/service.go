// Package analytics aggregates bundle engagement stats for the admin UI.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bundleworks/bundle-api/internal/app"
	"github.com/bundleworks/bundle-api/internal/cache"
	"github.com/bundleworks/bundle-api/internal/store"
)

var cacheLookups, _ = app.Meter("analytics").Int64Counter(
	"analytics_cache_lookups_total",
	metric.WithDescription("Report cache lookups partitioned by outcome."),
)

// Stats defines the database access required for analytics operations.
type Stats interface {
	StatsRange(ctx context.Context, shop string, from, to time.Time) ([]store.StatRow, error)
	Overview(ctx context.Context, shop string, from, to time.Time) (views, adds int64, revenue decimal.Decimal, err error)
}

// Service provides cached access to bundle stats aggregates.
type Service struct {
	Stats        Stats
	R            *redis.Client
	TTL          time.Duration
	DefaultRange int
	Now          func() time.Time
}

// OverviewReport is the shop-wide summary for a date range.
type OverviewReport struct {
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	Views          int64           `json:"views"`
	AddsToCart     int64           `json:"addsToCart"`
	Revenue        decimal.Decimal `json:"revenue"`
	ConversionRate decimal.Decimal `json:"conversionRate"`
}

// BundleReport is a per-bundle rollup over a date range.
type BundleReport struct {
	BundleID       string          `json:"bundleId"`
	Title          string          `json:"title"`
	Views          int64           `json:"views"`
	AddsToCart     int64           `json:"addsToCart"`
	Revenue        decimal.Decimal `json:"revenue"`
	ConversionRate decimal.Decimal `json:"conversionRate"`
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Overview returns the shop-wide summary between from and to.
func (s *Service) Overview(ctx context.Context, shop string, from, to time.Time) (OverviewReport, error) {
	if s == nil || s.Stats == nil {
		return OverviewReport{}, fmt.Errorf("analytics service not configured")
	}
	key := cache.KeyAnalytics(shop, "overview", from, to)
	var cached OverviewReport
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	views, adds, revenue, err := s.Stats.Overview(ctx, shop, from, to)
	if err != nil {
		return OverviewReport{}, err
	}
	report := OverviewReport{
		From:           from,
		To:             to,
		Views:          views,
		AddsToCart:     adds,
		Revenue:        revenue,
		ConversionRate: conversionRate(views, adds),
	}
	s.store(ctx, key, report)
	return report, nil
}

// Bundles returns per-bundle rollups between from and to, ordered by revenue
// descending.
func (s *Service) Bundles(ctx context.Context, shop string, from, to time.Time) ([]BundleReport, error) {
	if s == nil || s.Stats == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	key := cache.KeyAnalytics(shop, "bundles", from, to)
	var cached []BundleReport
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	rows, err := s.Stats.StatsRange(ctx, shop, from, to)
	if err != nil {
		return nil, err
	}
	reports := rollup(rows)
	s.store(ctx, key, reports)
	return reports, nil
}

func rollup(rows []store.StatRow) []BundleReport {
	byBundle := make(map[string]*BundleReport)
	order := make([]string, 0)
	for _, row := range rows {
		report, ok := byBundle[row.BundleID]
		if !ok {
			report = &BundleReport{BundleID: row.BundleID, Title: row.Title, Revenue: decimal.Zero}
			byBundle[row.BundleID] = report
			order = append(order, row.BundleID)
		}
		report.Views += row.Views
		report.AddsToCart += row.Adds
		report.Revenue = report.Revenue.Add(row.Revenue)
	}
	reports := make([]BundleReport, 0, len(order))
	for _, id := range order {
		report := byBundle[id]
		report.ConversionRate = conversionRate(report.Views, report.AddsToCart)
		reports = append(reports, *report)
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].Revenue.GreaterThan(reports[j].Revenue)
	})
	return reports
}

func conversionRate(views, adds int64) decimal.Decimal {
	if views <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(adds).Div(decimal.NewFromInt(views)).Mul(decimal.NewFromInt(100)).Round(2)
}

func (s *Service) fromCache(ctx context.Context, key string, dest any) bool {
	if s.R == nil || s.TTL <= 0 {
		return false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		recordCacheLookup(ctx, "miss")
		return false
	}
	if json.Unmarshal(data, dest) != nil {
		recordCacheLookup(ctx, "miss")
		return false
	}
	recordCacheLookup(ctx, "hit")
	return true
}

func recordCacheLookup(ctx context.Context, outcome string) {
	if cacheLookups == nil {
		return
	}
	cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
