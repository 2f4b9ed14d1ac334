package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/chatmesh/internal/message"
)

func TestBus_PublishAndReceive(t *testing.T) {
	b := NewBus(2)
	ctx := context.Background()

	msg := message.ChannelMessage{ID: "1", Content: "hi"}
	require.NoError(t, b.Publish(ctx, msg))

	got := <-b.Messages()
	assert.Equal(t, msg, got)
}

func TestBus_BlocksWhenFullAndRespectsCancellation(t *testing.T) {
	b := NewBus(1)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, message.ChannelMessage{ID: "1"}))
	assert.Equal(t, 1, b.Len())

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	err := b.Publish(cctx, message.ChannelMessage{ID: "2"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_CapReflectsConfiguredCapacity(t *testing.T) {
	b := NewBus(5)
	assert.Equal(t, 5, b.Cap())
}

func TestNewBus_NonPositiveCapacityDefaults(t *testing.T) {
	b := NewBus(0)
	assert.Equal(t, 1024, b.Cap())
}
