// Package metrics implements background usage aggregation.
//
// DESIGN: A single aggregator goroutine periodically folds the analytics
// ledger into immutable StatsSnapshots held in a fixed-capacity ring
// buffer. Request handlers and the stream endpoint only ever read
// precomputed snapshots, turning what would be a full ledger scan into a
// sub-millisecond lookup.
package metrics

import "time"

// StatsSnapshot is an immutable point-in-time summary of gateway usage.
// Produced only by the aggregator on its timer tick.
type StatsSnapshot struct {
	Timestamp          time.Time     `json:"timestamp"`
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	AvgResponseTimeMs  float64       `json:"avg_response_time_ms"`
	TotalCostUSD       float64       `json:"total_cost_usd"`
	TotalTokens        int64         `json:"total_tokens"`
	MessagesCount      int64         `json:"messages_count"`
	CacheHits          int64         `json:"cache_hits"`
	Uptime             time.Duration `json:"uptime"`
}
