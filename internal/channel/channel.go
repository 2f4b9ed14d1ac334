// Package channel defines the common Channel trait implemented by every
// chat-platform adapter and the bounded outbound queue ("Bus") that
// decouples adapter ingress from the agent consuming it.
package channel

import (
	"context"

	"github.com/p-blackswan/chatmesh/internal/message"
)

// Channel is implemented by every chat-platform adapter. Send and the
// typing operations must be safe to call concurrently from multiple
// producers; Listen is called exactly once per adapter, for its lifetime.
type Channel interface {
	// Name returns the adapter's source tag (e.g. "slack", "mattermost").
	Name() string

	// Send delivers an outbound message. Safe for concurrent use.
	Send(ctx context.Context, msg message.SendMessage) error

	// Listen runs the adapter's connect/read loop, publishing inbound
	// messages onto bus, until ctx is cancelled. It owns reconnection and
	// must never return except on unrecoverable startup error or
	// cancellation.
	Listen(ctx context.Context, bus *Bus) error

	// HealthCheck reports whether the adapter's connection is currently
	// healthy.
	HealthCheck(ctx context.Context) bool

	// StartTyping begins a typing indicator loop for recipient, replacing
	// any prior loop for the same adapter.
	StartTyping(ctx context.Context, recipient string) error

	// StopTyping aborts any active typing indicator loop.
	StopTyping(recipient string) error
}

// Bus is a bounded, multi-producer queue of inbound ChannelMessage values.
// Publish blocks when the queue is full, propagating backpressure upstream
// to the adapter's listen loop rather than dropping messages.
type Bus struct {
	ch chan message.ChannelMessage
}

// NewBus creates a Bus with the given capacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Bus{ch: make(chan message.ChannelMessage, capacity)}
}

// Publish enqueues msg, blocking while the queue is full until ctx is
// cancelled, in which case it returns ctx.Err().
func (b *Bus) Publish(ctx context.Context, msg message.ChannelMessage) error {
	select {
	case b.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages exposes the receive side of the bus for the agent consumer.
func (b *Bus) Messages() <-chan message.ChannelMessage {
	return b.ch
}

// Len reports the current queue depth, for metrics.
func (b *Bus) Len() int {
	return len(b.ch)
}

// Cap reports the queue's configured capacity, for metrics.
func (b *Bus) Cap() int {
	return cap(b.ch)
}
