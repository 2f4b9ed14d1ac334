package mattermost

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const pollInterval = 3 * time.Second

// pollingLoop is the REST fallback used when the WebSocket connection
// exhausts its reconnect attempts. It requires a fixed channel id and polls
// GET /api/v4/channels/{id}/posts?since=<ms> on an interval, funneling
// results through the same dispatcher.handlePost path so authorization,
// mention-gating, and guard behavior are identical to the WebSocket path.
type pollingLoop struct {
	client    *Client
	dispatch  *dispatcher
	channelID string
	logger    zerolog.Logger
}

func (p *pollingLoop) run(ctx context.Context) error {
	if p.channelID == "" {
		return fmt.Errorf("mattermost polling: requires a configured channel id")
	}

	lastCreateAt := nowMillis()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	p.logger.Info().Str("channel", p.channelID).Msg("mattermost: polling fallback active")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			posts, err := p.client.FetchPosts(ctx, p.channelID, lastCreateAt)
			if err != nil {
				p.logger.Warn().Err(err).Msg("mattermost polling: fetch failed")
				continue
			}
			for _, post := range posts {
				watermark := lastCreateAt
				if post.CreateAt > lastCreateAt {
					lastCreateAt = post.CreateAt
				}
				p.dispatch.handlePost(ctx, post, watermark)
			}
		}
	}
}
