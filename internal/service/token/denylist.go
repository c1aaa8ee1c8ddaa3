package token

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Denylist tracks revoked-but-not-yet-expired token IDs. It is the one
// piece of cross-request shared mutable state in the token lifecycle,
// so every operation is safe under concurrent use.
//
// Entries are evicted strictly at-or-after their expiry by Sweep; an
// expired entry may linger until the next sweep tick, but Contains
// already treats it as absent, since an expired token fails
// verification on its own.
type Denylist struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]time.Time

	nowFunc func() time.Time
}

// NewDenylist creates an empty denylist
func NewDenylist() *Denylist {
	return &Denylist{
		entries: make(map[uuid.UUID]time.Time),
		nowFunc: time.Now,
	}
}

// Add records a revoked token until its natural expiry
func (d *Denylist) Add(tokenID uuid.UUID, expiresAt time.Time) {
	if tokenID == uuid.Nil {
		return
	}
	d.mu.Lock()
	d.entries[tokenID] = expiresAt
	d.mu.Unlock()
}

// Contains reports whether the token is currently revoked. O(1).
func (d *Denylist) Contains(tokenID uuid.UUID) bool {
	d.mu.RLock()
	expiresAt, ok := d.entries[tokenID]
	d.mu.RUnlock()
	if !ok {
		return false
	}
	return expiresAt.After(d.nowFunc())
}

// Sweep removes every entry whose expiry has passed and returns the
// number removed. Never removes an entry before its expiry.
func (d *Denylist) Sweep() int {
	now := d.nowFunc()
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for id, expiresAt := range d.entries {
		if !expiresAt.After(now) {
			delete(d.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of resident entries, expired or not
func (d *Denylist) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
