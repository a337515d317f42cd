// Package analytics implements the append-only call ledger.
//
// DESIGN: Every completed request attempt (success or terminal failure)
// appends exactly one CallRecord. Records are never mutated. The Store
// interface hides the persistence technology; the gateway only ever appends
// on the hot path and reads summaries from the background aggregator.
package analytics

import (
	"context"
	"time"
)

// Outcome classifies how a request attempt finished.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// CallRecord is one ledger line for a completed request attempt.
type CallRecord struct {
	Timestamp    time.Time     `json:"timestamp"`
	Model        string        `json:"model"`
	InputTokens  int64         `json:"input_tokens"`
	OutputTokens int64         `json:"output_tokens"`
	CostNanos    int64         `json:"cost_nanos"`
	CacheHit     bool          `json:"cache_hit"`
	Duration     time.Duration `json:"duration"`
	Outcome      Outcome       `json:"outcome"`
}

// Summary is the aggregate view the metrics aggregator reads on each tick.
type Summary struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	TotalCostNanos     int64
	TotalTokens        int64
	MessagesCount      int64
	TotalDuration      time.Duration
	CacheHits          int64
}

// AvgResponseTime returns the mean request duration in milliseconds.
func (s Summary) AvgResponseTime() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalDuration.Milliseconds()) / float64(s.TotalRequests)
}

// Store is the append-only call history.
type Store interface {
	// Append writes one record. Called once per completed attempt.
	Append(ctx context.Context, rec CallRecord) error
	// Summary aggregates the full ledger.
	Summary(ctx context.Context) (Summary, error)
	// Recent returns up to n most recent records, newest first.
	Recent(ctx context.Context, n int) ([]CallRecord, error)
	// Close releases underlying resources.
	Close() error
}
