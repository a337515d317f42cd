// memory.go - in-memory Store.
//
// Default store for ephemeral gateways and tests. Keeps the running summary
// incrementally so Summary is O(1) regardless of ledger length.
package analytics

import (
	"context"
	"sync"
)

// MemoryStore is a thread-safe in-memory ledger.
type MemoryStore struct {
	mu      sync.RWMutex
	records []CallRecord
	summary Summary
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append implements Store.
func (m *MemoryStore) Append(_ context.Context, rec CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	applyRecord(&m.summary, rec)
	return nil
}

// Summary implements Store.
func (m *MemoryStore) Summary(_ context.Context) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summary, nil
}

// Recent implements Store.
func (m *MemoryStore) Recent(_ context.Context, n int) ([]CallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || len(m.records) == 0 {
		return nil, nil
	}
	if n > len(m.records) {
		n = len(m.records)
	}
	out := make([]CallRecord, 0, n)
	for i := len(m.records) - 1; i >= len(m.records)-n; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

// applyRecord folds one record into a running summary.
func applyRecord(s *Summary, rec CallRecord) {
	s.TotalRequests++
	if rec.Outcome == OutcomeSuccess {
		s.SuccessfulRequests++
	} else {
		s.FailedRequests++
	}
	s.TotalCostNanos += rec.CostNanos
	s.TotalTokens += rec.InputTokens + rec.OutputTokens
	s.MessagesCount++
	s.TotalDuration += rec.Duration
	if rec.CacheHit {
		s.CacheHits++
	}
}
