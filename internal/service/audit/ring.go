package audit

import (
	"sync"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/audit"
)

// eventRing is a bounded in-memory ring of the most recent events. It
// is the authoritative copy between durable flushes, so appends must be
// safe under concurrent writers. The lock is never held across I/O;
// durable writes work from snapshots.
type eventRing struct {
	mu      sync.RWMutex
	entries []*audit.Event
	head    int
	count   int
}

func newEventRing(capacity int) *eventRing {
	if capacity <= 0 {
		capacity = defaultRingSize
	}
	return &eventRing{
		entries: make([]*audit.Event, capacity),
	}
}

// Append adds an event, overwriting the oldest when full
func (r *eventRing) Append(event *audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.head + r.count) % len(r.entries)
	r.entries[idx] = event
	if r.count < len(r.entries) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.entries)
	}
}

// Snapshot returns the resident events oldest-first
func (r *eventRing) Snapshot() []*audit.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*audit.Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.entries[(r.head+i)%len(r.entries)])
	}
	return out
}

// RemoveIf drops every resident event the predicate matches and
// returns how many were removed. Used by the retention sweep.
func (r *eventRing) RemoveIf(predicate func(*audit.Event) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make([]*audit.Event, 0, r.count)
	removed := 0
	for i := 0; i < r.count; i++ {
		e := r.entries[(r.head+i)%len(r.entries)]
		if predicate(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0
	}

	for i := range r.entries {
		r.entries[i] = nil
	}
	copy(r.entries, kept)
	r.head = 0
	r.count = len(kept)
	return removed
}

// Find returns the resident event with the given predicate match, or nil
func (r *eventRing) Find(predicate func(*audit.Event) bool) *audit.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := 0; i < r.count; i++ {
		e := r.entries[(r.head+i)%len(r.entries)]
		if predicate(e) {
			return e
		}
	}
	return nil
}

// Len returns the resident event count
func (r *eventRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
