// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// TokenEstimateRatio is the approximate number of characters per token.
// Used for rough token counting when exact counts aren't available.
const TokenEstimateRatio = 4

// =============================================================================
// RESPONSE CACHE DEFAULTS
// =============================================================================

// DefaultCacheMaxEntries caps the number of cached responses.
const DefaultCacheMaxEntries = 1024

// DefaultCacheMaxBytes caps the total payload bytes held by the cache (64MB).
const DefaultCacheMaxBytes = 64 * 1024 * 1024

// DefaultCacheTTL is how long a cached response stays servable.
const DefaultCacheTTL = 1 * time.Hour

// =============================================================================
// METRICS AGGREGATION
// =============================================================================

// DefaultAggregationInterval is how often the background aggregator
// summarizes the analytics store into a snapshot.
const DefaultAggregationInterval = 2 * time.Second

// DefaultSnapshotRingCapacity is how many snapshots the ring buffer keeps
// (1800 = one hour of history at the default 2s interval).
const DefaultSnapshotRingCapacity = 1800

// DefaultStreamInterval is the cadence for /api/stream push events.
const DefaultStreamInterval = 2 * time.Second

// =============================================================================
// UPSTREAM FORWARDING
// =============================================================================

// DefaultUpstreamTimeout bounds a single upstream attempt.
const DefaultUpstreamTimeout = 60 * time.Second

// DefaultUpstreamMaxAttempts is the total attempt count for a request
// (1 initial + 2 retries).
const DefaultUpstreamMaxAttempts = 3

// DefaultUpstreamBackoffInitial is the first retry delay.
const DefaultUpstreamBackoffInitial = 250 * time.Millisecond

// DefaultUpstreamBackoffMax caps the retry delay.
const DefaultUpstreamBackoffMax = 4 * time.Second

// =============================================================================
// SHUTDOWN
// =============================================================================

// DefaultDrainTimeout is how long shutdown waits for long-lived tasks
// (streams, aggregator) before force-cancelling stragglers.
const DefaultDrainTimeout = 3 * time.Second

// DefaultServerShutdownTimeout bounds http.Server.Shutdown.
const DefaultServerShutdownTimeout = 5 * time.Second

// =============================================================================
// HTTP AND NETWORKING
// =============================================================================

// DefaultServerPort is the gateway listen port.
const DefaultServerPort = 8765

// MaxRequestBodySize is the maximum allowed request body (10MB).
const MaxRequestBodySize = 10 * 1024 * 1024

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 2 * time.Minute

// DefaultServerWriteTimeout for the HTTP server (generous for streams).
const DefaultServerWriteTimeout = 10 * time.Minute
