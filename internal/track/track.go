// Package track records storefront engagement events and aggregates
// them into daily per-bundle stats.
package track

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/bundleworks/bundle-api/internal/obs"
)

// Event kinds accepted by the queue.
const (
	EventView      = "view"
	EventAddToCart = "add_to_cart"
)

// Event is a single storefront interaction, serialized onto the Redis queue.
type Event struct {
	BundleID   string          `json:"bundleId"`
	Shop       string          `json:"shop"`
	Kind       string          `json:"kind"`
	Revenue    decimal.Decimal `json:"revenue"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Enqueuer pushes events onto the tracking queue. Implementations must be
// safe for concurrent use.
type Enqueuer interface {
	Enqueue(ctx context.Context, e Event) error
}

// RedisQueue is the Redis-list backed Enqueuer used in production.
type RedisQueue struct {
	R   *redis.Client
	Key string
}

// Enqueue serializes the event and pushes it onto the queue. Losses here are
// tolerated: tracking must never fail a storefront request.
func (q RedisQueue) Enqueue(ctx context.Context, e Event) error {
	if q.R == nil {
		return fmt.Errorf("track: redis client not configured")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("track: marshal event: %w", err)
	}
	if err := q.R.LPush(ctx, q.key(), payload).Err(); err != nil {
		return fmt.Errorf("track: enqueue: %w", err)
	}
	if obs.TrackEventsTotal != nil {
		obs.TrackEventsTotal.WithLabelValues(e.Kind).Inc()
	}
	return nil
}

func (q RedisQueue) key() string {
	if q.Key == "" {
		return "track:events"
	}
	return q.Key
}

// Nop discards events. Used when tracking is disabled.
type Nop struct{}

// Enqueue implements Enqueuer.
func (Nop) Enqueue(context.Context, Event) error { return nil }
