// ring.go - fixed-capacity snapshot history.
package metrics

import (
	"sync"
	"time"
)

// Ring is a fixed-capacity FIFO buffer of snapshots. When full, pushing
// evicts the oldest entry. Snapshots arrive from a single producer so the
// buffer is always strictly time-ordered.
type Ring struct {
	mu       sync.RWMutex
	buf      []StatsSnapshot
	start    int // index of oldest entry
	count    int
	capacity int
}

// NewRing creates a ring holding at most capacity snapshots.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]StatsSnapshot, capacity), capacity: capacity}
}

// Push appends a snapshot, evicting the oldest when at capacity.
func (r *Ring) Push(s StatsSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count < r.capacity {
		r.buf[(r.start+r.count)%r.capacity] = s
		r.count++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % r.capacity
}

// Latest returns the most recent snapshot.
func (r *Ring) Latest() (StatsSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.count == 0 {
		return StatsSnapshot{}, false
	}
	return r.buf[(r.start+r.count-1)%r.capacity], true
}

// Range returns snapshots with start <= Timestamp <= end, oldest first.
func (r *Ring) Range(start, end time.Time) []StatsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []StatsSnapshot
	for i := 0; i < r.count; i++ {
		s := r.buf[(r.start+i)%r.capacity]
		if s.Timestamp.Before(start) || s.Timestamp.After(end) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// All returns every held snapshot, oldest first.
func (r *Ring) All() []StatsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StatsSnapshot, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(r.start+i)%r.capacity])
	}
	return out
}

// Len returns the number of held snapshots.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
