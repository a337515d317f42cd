// cache.go - TTL + LRU response cache.
//
// DESIGN: Entries live in a map keyed by fingerprint plus an LRU list for
// recency. Capacity is bounded both by entry count and total payload bytes;
// eviction removes already-expired entries first, then least-recently-used,
// always before a new entry is inserted. The cache is strictly an
// optimization: every failure mode degrades to a miss, never to a wrong
// answer.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// Entry is one cached response. Entries are copied in and out of the cache
// and never mutated in place.
type Entry struct {
	Fingerprint  string
	Payload      []byte
	Model        string
	InputTokens  int64
	OutputTokens int64
	CostNanos    int64
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// SizeBytes returns the payload size used for the byte budget.
func (e Entry) SizeBytes() int64 { return int64(len(e.Payload)) }

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Entries int     `json:"entries"`
	Bytes   int64   `json:"bytes"`
}

// ResponseCache is a fingerprint-keyed cache with TTL and LRU eviction.
type ResponseCache struct {
	mu         sync.RWMutex
	entries    map[string]*list.Element
	lru        *list.List // front = most recent
	maxEntries int
	maxBytes   int64
	bytes      int64

	hits   atomic.Int64
	misses atomic.Int64

	now func() time.Time // test seam
}

// New creates a cache bounded by entry count and payload bytes.
func New(maxEntries int, maxBytes int64) *ResponseCache {
	return &ResponseCache{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		now:        time.Now,
	}
}

// Get returns the entry for a fingerprint. An expired-but-present entry is
// a miss and is removed on the way out.
func (c *ResponseCache) Get(fingerprint string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fingerprint]
	if !ok {
		c.misses.Add(1)
		return Entry{}, false
	}
	e := el.Value.(Entry)
	if !c.now().Before(e.ExpiresAt) {
		c.removeLocked(el)
		c.misses.Add(1)
		return Entry{}, false
	}
	c.lru.MoveToFront(el)
	c.hits.Add(1)
	return e, true
}

// Put inserts or replaces the entry for a fingerprint. When capacity would
// be exceeded, expired entries are evicted first, then least-recently-used
// ones, until the new entry fits. Concurrent puts for the same fingerprint
// resolve last-write-wins.
func (c *ResponseCache) Put(fingerprint string, e Entry, ttl time.Duration) {
	if ttl <= 0 || c.maxEntries <= 0 {
		return
	}
	size := e.SizeBytes()
	if c.maxBytes > 0 && size > c.maxBytes {
		// Larger than the whole budget; not cacheable.
		return
	}

	now := c.now()
	e.Fingerprint = fingerprint
	e.CreatedAt = now
	e.ExpiresAt = now.Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[fingerprint]; ok {
		c.removeLocked(el)
	}

	c.evictExpiredLocked()
	for c.lru.Len() >= c.maxEntries || (c.maxBytes > 0 && c.bytes+size > c.maxBytes) {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}

	el := c.lru.PushFront(e)
	c.entries[fingerprint] = el
	c.bytes += size
}

// Invalidate removes a single entry.
func (c *ResponseCache) Invalidate(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[fingerprint]
	if !ok {
		return false
	}
	c.removeLocked(el)
	return true
}

// Clear removes every entry. Counters survive so hit-rate history is not
// lost on administrative flushes.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.bytes = 0
}

// Len returns the current entry count.
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

// Stats returns hit/miss counters and current occupancy.
func (c *ResponseCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	c.mu.RLock()
	entries := c.lru.Len()
	bytes := c.bytes
	c.mu.RUnlock()
	return Stats{Hits: hits, Misses: misses, HitRate: rate, Entries: entries, Bytes: bytes}
}

// evictExpiredLocked removes every entry whose TTL has elapsed.
func (c *ResponseCache) evictExpiredLocked() {
	now := c.now()
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(Entry).ExpiresAt) {
			c.removeLocked(el)
		}
		el = prev
	}
}

func (c *ResponseCache) removeLocked(el *list.Element) {
	e := el.Value.(Entry)
	c.lru.Remove(el)
	delete(c.entries, e.Fingerprint)
	c.bytes -= e.SizeBytes()
}
