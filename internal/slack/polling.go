package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	pollInterval  = 3 * time.Second
	maxListPages  = 50
)

// pollingLoop is the REST fallback used when no app-level token is
// configured for Socket Mode. It polls conversations.history per channel
// and funnels results through the same dispatcher events_api path so
// authorization, wake/sleep, and timer behavior are identical to the
// Socket Mode path.
type pollingLoop struct {
	client    *SafeSlackClient
	dispatch  *dispatcher
	channelID string // fixed channel, if configured
	logger    zerolog.Logger
}

func (p *pollingLoop) run(ctx context.Context) error {
	channels, err := p.resolveChannels(ctx)
	if err != nil {
		return fmt.Errorf("slack polling: resolving channels: %w", err)
	}

	oldest := make(map[string]string, len(channels))
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, ch := range channels {
				p.pollChannel(ctx, ch, oldest)
			}
		}
	}
}

func (p *pollingLoop) resolveChannels(ctx context.Context) ([]string, error) {
	if p.channelID != "" {
		return []string{p.channelID}, nil
	}

	var channels []string
	cursor := ""
	for page := 0; page < maxListPages; page++ {
		chans, next, err := p.client.ListChannels(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, c := range chans {
			channels = append(channels, c.ID)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return channels, nil
}

func (p *pollingLoop) pollChannel(ctx context.Context, channelID string, oldest map[string]string) {
	resp, err := p.client.History(ctx, channelID, oldest[channelID])
	if err != nil {
		p.logger.Warn().Err(err).Str("channel", channelID).Msg("slack polling: history fetch failed")
		return
	}

	for _, m := range resp.Messages {
		if m.Timestamp > oldest[channelID] {
			oldest[channelID] = m.Timestamp
		}

		payload, err := json.Marshal(eventsAPIPayload{
			Event: slackEvent{
				Type:     "message",
				Subtype:  m.SubType,
				BotID:    m.BotID,
				User:     m.User,
				Text:     m.Text,
				Channel:  channelID,
				TS:       m.Timestamp,
				ThreadTS: m.ThreadTimestamp,
			},
		})
		if err != nil {
			continue
		}
		p.dispatch.handleEventsAPI(ctx, payload)
	}
}
