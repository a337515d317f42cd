// aggregator.go - periodic ledger summarization.
package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/modelrelay/model-gateway/internal/analytics"
)

// Aggregator periodically summarizes the analytics store into snapshots.
// Exactly one Run loop executes per aggregator, so ticks never overlap; an
// overrunning tick is cut off by its per-tick deadline and abandoned for
// that cycle.
type Aggregator struct {
	store     analytics.Store
	ring      *Ring
	interval  time.Duration
	startedAt time.Time
}

// NewAggregator creates an aggregator publishing into ring every interval.
func NewAggregator(store analytics.Store, ring *Ring, interval time.Duration) *Aggregator {
	return &Aggregator{
		store:     store,
		ring:      ring,
		interval:  interval,
		startedAt: time.Now(),
	}
}

// Run ticks until ctx is cancelled. An immediate first tick warms the ring
// so /api/stats rarely needs the cold-start slow path.
func (a *Aggregator) Run(ctx context.Context) {
	a.tick(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("aggregator: stopped")
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// tick reads the store and publishes one snapshot. Failures are logged and
// skipped; the next tick retries. Never propagates to request handlers.
func (a *Aggregator) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, a.interval)
	defer cancel()

	snap, err := a.build(tickCtx)
	if err != nil {
		if ctx.Err() != nil {
			return // shutting down, not a tick failure
		}
		log.Warn().Err(err).Msg("aggregator: tick failed, skipping")
		return
	}
	a.ring.Push(snap)
}

// Latest returns the most recent published snapshot without blocking.
func (a *Aggregator) Latest() (StatsSnapshot, bool) {
	return a.ring.Latest()
}

// Range returns the published snapshots within [start, end], oldest first.
func (a *Aggregator) Range(start, end time.Time) []StatsSnapshot {
	return a.ring.Range(start, end)
}

// ComputeNow synchronously builds a snapshot from the store. This is the
// cold-start slow path only: once the ring has an entry, readers must use
// Latest instead.
func (a *Aggregator) ComputeNow(ctx context.Context) (StatsSnapshot, error) {
	return a.build(ctx)
}

func (a *Aggregator) build(ctx context.Context) (StatsSnapshot, error) {
	sum, err := a.store.Summary(ctx)
	if err != nil {
		return StatsSnapshot{}, err
	}
	return StatsSnapshot{
		Timestamp:          time.Now(),
		TotalRequests:      sum.TotalRequests,
		SuccessfulRequests: sum.SuccessfulRequests,
		FailedRequests:     sum.FailedRequests,
		AvgResponseTimeMs:  sum.AvgResponseTime(),
		TotalCostUSD:       float64(sum.TotalCostNanos) / 1e9,
		TotalTokens:        sum.TotalTokens,
		MessagesCount:      sum.MessagesCount,
		CacheHits:          sum.CacheHits,
		Uptime:             time.Since(a.startedAt),
	}, nil
}
