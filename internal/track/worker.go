package track

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bundleworks/bundle-api/internal/app"
	"github.com/bundleworks/bundle-api/internal/lock"
	"github.com/bundleworks/bundle-api/internal/obs"
)

// StatsSink receives aggregated event counts. Satisfied by store.Bundles.
type StatsSink interface {
	BumpStats(ctx context.Context, bundleID string, day time.Time, views, adds int64, revenue decimal.Decimal) error
}

// Worker drains the tracking queue and flushes daily aggregates to the sink.
// A Redis lock guards the flush so multiple replicas never double-count a
// batch.
type Worker struct {
	R         *redis.Client
	Sink      StatsSink
	Locker    lock.Locker
	Logger    zerolog.Logger
	Key       string
	LockTTL   time.Duration
	BatchSize int
	PollEvery time.Duration
}

// Run processes the queue until the context is cancelled.
func (w Worker) Run(ctx context.Context) error {
	poll := w.PollEvery
	if poll <= 0 {
		poll = 2 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		processed, err := w.Flush(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.Logger.Error().Err(err).Msg("track_flush_failed")
		}
		if processed == 0 {
			timer := time.NewTimer(poll)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// Flush drains up to BatchSize events under the flush lock and upserts the
// aggregates. It returns the number of events processed.
func (w Worker) Flush(ctx context.Context) (int, error) {
	ctx, span := app.Tracer("track.worker").Start(ctx, "track.flush")
	defer span.End()

	ttl := w.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	var processed int
	err := w.Locker.WithLock(ctx, w.key()+":flush", ttl, func(ctx context.Context) error {
		batch, err := w.drain(ctx)
		if err != nil {
			return err
		}
		processed = len(batch)
		if processed == 0 {
			return nil
		}
		return w.upsert(ctx, batch)
	})
	span.SetAttributes(attribute.Int("track.events_processed", processed))
	return processed, err
}

func (w Worker) drain(ctx context.Context) ([]Event, error) {
	size := w.BatchSize
	if size <= 0 {
		size = 100
	}
	events := make([]Event, 0, size)
	for len(events) < size {
		raw, err := w.R.RPop(ctx, w.key()).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return events, err
		}
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			w.Logger.Warn().Str("payload", raw).Msg("track_event_malformed")
			if obs.TrackFlushDLQ != nil {
				obs.TrackFlushDLQ.Inc()
			}
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

type dayKey struct {
	bundleID string
	day      time.Time
}

func (w Worker) upsert(ctx context.Context, events []Event) error {
	type agg struct {
		views   int64
		adds    int64
		revenue decimal.Decimal
	}
	buckets := make(map[dayKey]*agg)
	for _, e := range events {
		key := dayKey{bundleID: e.BundleID, day: e.OccurredAt.UTC().Truncate(24 * time.Hour)}
		bucket, ok := buckets[key]
		if !ok {
			bucket = &agg{}
			buckets[key] = bucket
		}
		switch e.Kind {
		case EventView:
			bucket.views++
		case EventAddToCart:
			bucket.adds++
			bucket.revenue = bucket.revenue.Add(e.Revenue)
		}
	}
	for key, bucket := range buckets {
		if err := w.Sink.BumpStats(ctx, key.bundleID, key.day, bucket.views, bucket.adds, bucket.revenue); err != nil {
			return err
		}
	}
	return nil
}

func (w Worker) key() string {
	if w.Key == "" {
		return "track:events"
	}
	return w.Key
}
