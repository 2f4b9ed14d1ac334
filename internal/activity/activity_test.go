package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/p-blackswan/chatmesh/internal/message"
)

func TestTouchThenActive(t *testing.T) {
	tr := New(30 * time.Minute)
	key := message.NewThreadKey("C1", "root_post")

	assert.False(t, tr.IsActive(key))
	tr.Touch(key)
	assert.True(t, tr.IsActive(key))
}

func TestIsActive_ExpiresAfterTTL(t *testing.T) {
	tr := New(10 * time.Millisecond)
	key := message.NewThreadKey("C1", "root_post")

	tr.Touch(key)
	assert.True(t, tr.IsActive(key))

	time.Sleep(25 * time.Millisecond)
	assert.False(t, tr.IsActive(key))
}

func TestZeroTTLDisablesContinuation(t *testing.T) {
	tr := New(0)
	key := message.NewThreadKey("C1", "root_post")

	tr.Touch(key)
	assert.False(t, tr.IsActive(key))
}

func TestBareMentionDoesNotDisturbActiveWindow(t *testing.T) {
	// A bare mention in an active thread must not refresh or otherwise
	// perturb the touch — callers must simply not invoke Touch for it.
	tr := New(30 * time.Minute)
	key := message.NewThreadKey("C1", "root_post")
	tr.Touch(key)

	assert.True(t, tr.IsActive(key))
	assert.True(t, tr.IsActive(key)) // reading twice must not evict or change state
}
