package mattermost

import (
	"context"
	"sync"
	"time"

	"github.com/p-blackswan/chatmesh/internal/message"
	"github.com/rs/zerolog"
)

const typingInterval = 4 * time.Second

// typingLoop manages the single active typing-indicator goroutine for the
// adapter, firing a typing event every typingInterval until stopped or
// replaced. Mattermost's own typing events expire after ~6 s.
type typingLoop struct {
	client *Client
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Start cancels any prior loop and begins a new one for recipient, which is
// "channel_id" or "channel_id:root_id" per the ChannelMessage routing
// grammar.
func (t *typingLoop) Start(ctx context.Context, recipient string) {
	t.Stop()

	channelID, parentID := message.SplitReplyTarget(recipient)
	loopCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			if err := t.client.Typing(loopCtx, channelID, parentID); err != nil {
				t.logger.Debug().Err(err).Msg("mattermost: typing indicator failed")
			}
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop aborts the active typing loop, if any.
func (t *typingLoop) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}
