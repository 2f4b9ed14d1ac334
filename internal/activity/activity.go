// Package activity implements the Thread Activity Tracker used by the
// Mattermost adapter to gate mention-only continuation replies.
package activity

import (
	"time"

	"github.com/p-blackswan/chatmesh/internal/message"
	"github.com/p-blackswan/chatmesh/lru"
)

// DefaultCapacity bounds the number of distinct threads tracked at once.
// The tracker itself has no hard cap in the spec; this is a safety valve
// against unbounded growth, sized generously above any realistic workload.
const DefaultCapacity = 100_000

// Tracker records the last touch instant per thread and answers whether a
// thread is still "active" within a configured TTL window.
type Tracker struct {
	cache *lru.Cache[message.ThreadKey, time.Time]
	ttl   time.Duration
}

// New creates a Tracker with the given TTL. ttl == 0 disables continuation
// entirely: IsActive always reports false and Touch is a no-op.
func New(ttl time.Duration) *Tracker {
	return &Tracker{
		cache: lru.New[message.ThreadKey, time.Time](DefaultCapacity),
		ttl:   ttl,
	}
}

// IsActive reports whether key was touched within the TTL window. Expired
// entries are evicted lazily as a side effect of the lookup.
func (t *Tracker) IsActive(key message.ThreadKey) bool {
	if t.ttl <= 0 {
		return false
	}
	_, ok := t.cache.Get(key)
	return ok
}

// Touch records activity for key at the current instant, resetting its TTL
// window. A no-op when continuation is disabled (ttl == 0).
func (t *Tracker) Touch(key message.ThreadKey) {
	if t.ttl <= 0 {
		return
	}
	t.cache.PutWithTTL(key, time.Now(), t.ttl)
}

// Len returns the number of tracked (not-yet-lazily-evicted) threads.
func (t *Tracker) Len() int {
	return t.cache.Len()
}
