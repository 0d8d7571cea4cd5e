package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingTotal counts pricing calculations by bundle type and validity.
	PricingTotal *prometheus.CounterVec
	// PricingDuration records pricing calculation latency in milliseconds.
	PricingDuration *prometheus.HistogramVec
	// ValidationFailTotal counts validation failures by scope and error code.
	ValidationFailTotal *prometheus.CounterVec
	// InventoryLookupTotal counts Shopify inventory lookups by outcome.
	InventoryLookupTotal *prometheus.CounterVec
	// TrackEventsTotal counts storefront tracking events by kind.
	TrackEventsTotal *prometheus.CounterVec
	// TrackFlushDLQ counts tracking events dropped after repeated failures.
	TrackFlushDLQ prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_total",
			Help:      "Count of bundle pricing calculations by type and validity.",
		}, []string{"bundle_type", "valid"})
		PricingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pricing_duration_ms",
			Help:      "Latency for bundle pricing calculations in milliseconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
		}, []string{"bundle_type"})
		ValidationFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_fail_total",
			Help:      "Count of bundle validation failures by scope and code.",
		}, []string{"scope", "code"})
		InventoryLookupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_lookup_total",
			Help:      "Count of Shopify inventory lookups by outcome.",
		}, []string{"result"})
		TrackEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "track_events_total",
			Help:      "Count of storefront tracking events by kind.",
		}, []string{"event"})
		TrackFlushDLQ = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "track_flush_dropped_total",
			Help:      "Number of tracking events dropped after repeated flush failures.",
		})

		mustRegisterCollector(reg, PricingTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricingTotal = v
			}
		})
		mustRegisterCollector(reg, PricingDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				PricingDuration = v
			}
		})
		mustRegisterCollector(reg, ValidationFailTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ValidationFailTotal = v
			}
		})
		mustRegisterCollector(reg, InventoryLookupTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				InventoryLookupTotal = v
			}
		})
		mustRegisterCollector(reg, TrackEventsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TrackEventsTotal = v
			}
		})
		mustRegisterCollector(reg, TrackFlushDLQ, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				TrackFlushDLQ = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
