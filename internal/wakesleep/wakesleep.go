// Package wakesleep tracks per-thread awake/sleeping state so the agent
// only answers unprompted in threads it has recently been active in.
package wakesleep

import (
	"sync"
	"time"

	"github.com/p-blackswan/chatmesh/internal/message"
)

// DefaultCapacity bounds how many threads the engine tracks at once.
const DefaultCapacity = 10_000

// Decision is the outcome of evaluating an inbound event against a thread's
// wake/sleep state.
type Decision int

const (
	// Forward means the message should be delivered to the agent without
	// changing the thread's prior awake/sleeping classification.
	Forward Decision = iota
	// Wake means a mention pulled a sleeping thread back to life; the
	// message should be delivered and the thread is now Awake.
	Wake
	// Discard means a non-mention arrived in a sleeping thread and must be
	// dropped.
	Discard
)

type state int

const (
	stateAwake state = iota
	stateSleeping
)

type entry struct {
	state        state
	lastActivity time.Time
}

// Engine is a concurrency-safe wake/sleep state machine, one entry per
// thread key, bounded by Capacity.
type Engine struct {
	mu       sync.Mutex
	capacity int
	threads  map[message.ThreadKey]*entry
	now      func() time.Time
}

// New creates an Engine with the given capacity. A capacity <= 0 uses
// DefaultCapacity.
func New(capacity int) *Engine {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Engine{
		capacity: capacity,
		threads:  make(map[message.ThreadKey]*entry),
		now:      time.Now,
	}
}

// OnEvent evaluates an inbound event for thread key and returns the routing
// decision. Rules:
//   - unknown thread: insert Awake (unless at capacity) and return Forward.
//   - Awake: refresh last-activity, return Forward.
//   - Sleeping + mention: transition to Awake, return Wake.
//   - Sleeping + non-mention: return Discard.
func (e *Engine) OnEvent(key message.ThreadKey, isMention bool) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.threads[key]
	if !ok {
		if len(e.threads) >= e.capacity {
			return Forward
		}
		e.threads[key] = &entry{state: stateAwake, lastActivity: e.now()}
		return Forward
	}

	switch ent.state {
	case stateAwake:
		ent.lastActivity = e.now()
		return Forward
	case stateSleeping:
		if isMention {
			ent.state = stateAwake
			ent.lastActivity = e.now()
			return Wake
		}
		return Discard
	}
	return Forward
}

// MarkSleeping transitions an Awake thread to Sleeping. It is a no-op for
// untracked keys — critical so a capacity-dropped thread can never be
// silently resurrected as Sleeping (which would then incorrectly discard
// its future events).
func (e *Engine) MarkSleeping(key message.ThreadKey) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.threads[key]
	if !ok {
		return
	}
	ent.state = stateSleeping
}

// IsAwake reports whether key is currently tracked as Awake. Untracked keys
// (including capacity-dropped ones) are treated as awake.
func (e *Engine) IsAwake(key message.ThreadKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.threads[key]
	if !ok {
		return true
	}
	return ent.state == stateAwake
}

// Len returns the number of tracked threads, for metrics.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.threads)
}
