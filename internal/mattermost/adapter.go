package mattermost

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatmesh/internal/activity"
	"github.com/p-blackswan/chatmesh/internal/channel"
	"github.com/p-blackswan/chatmesh/internal/guard"
	"github.com/p-blackswan/chatmesh/internal/message"
	"github.com/p-blackswan/chatmesh/internal/metrics"
)

// Config configures the Mattermost adapter.
type Config struct {
	BaseURL                  string
	BotToken                 string
	AdminToken               string // required for profile sync; falls back to BotToken
	ChannelID                string // empty => no channel filter on WS path; required for polling fallback
	AllowedUsers             []string
	ThreadReplies            bool
	MentionOnly              bool
	ThreadTTL                time.Duration
	SyncProfile              bool
	AIEOSPath                string
	GroupReplyAllowedSenders []string
	GuardAction              guard.Action
	GuardThreshold           float64
}

// Adapter implements channel.Channel for Mattermost.
type Adapter struct {
	cfg     Config
	client  *Client
	tracker *activity.Tracker
	guard   *guard.Guard
	m       *metrics.Metrics
	logger  zerolog.Logger
	typing  *typingLoop

	botUserID   string
	botUsername string

	connState atomic.Int32
}

// NewAdapter builds a Mattermost adapter from configuration and shared
// ingress-fabric components.
func NewAdapter(cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Adapter {
	taggedLogger := logger.With().Str("component", "mattermost.adapter").Logger()
	client := NewClient(cfg.BaseURL, cfg.BotToken, cfg.AdminToken, WithLogger(taggedLogger))
	return &Adapter{
		cfg:     cfg,
		client:  client,
		tracker: activity.New(cfg.ThreadTTL),
		guard:   guard.New(cfg.GuardAction, cfg.GuardThreshold),
		m:       m,
		logger:  taggedLogger,
		typing:  &typingLoop{client: client, logger: taggedLogger},
	}
}

// Name implements channel.Channel.
func (a *Adapter) Name() string { return "mattermost" }

// Send implements channel.Channel.
func (a *Adapter) Send(ctx context.Context, msg message.SendMessage) error {
	channelID, rootID := message.SplitReplyTarget(msg.Recipient)
	return a.client.PostMessage(ctx, channelID, rootID, msg.Content)
}

// HealthCheck implements channel.Channel.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	return a.client.HealthCheck(ctx)
}

// StartTyping implements channel.Channel.
func (a *Adapter) StartTyping(ctx context.Context, recipient string) error {
	a.typing.Start(ctx, recipient)
	return nil
}

// StopTyping implements channel.Channel.
func (a *Adapter) StopTyping(recipient string) error {
	a.typing.Stop()
	return nil
}

// Listen implements channel.Channel. It resolves the bot's own identity,
// best-effort syncs its profile, then runs the WebSocket connection loop,
// falling back to REST polling if the WebSocket exhausts its reconnect
// budget and a channel id is configured.
func (a *Adapter) Listen(ctx context.Context, bus *channel.Bus) error {
	userID, username, err := a.client.BotIdentity(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("mattermost: bot identity unresolved; self-message filtering and mention detection degraded")
	}
	a.botUserID = userID
	a.botUsername = username

	if a.cfg.SyncProfile && a.cfg.AIEOSPath != "" && userID != "" {
		syncProfile(ctx, a.client, a.cfg.AIEOSPath, userID, a.logger)
	}

	d := &dispatcher{
		botUserID:                a.botUserID,
		botUsername:              a.botUsername,
		channelID:                a.cfg.ChannelID,
		allowedUsers:             a.cfg.AllowedUsers,
		groupReplyAllowedSenders: a.cfg.GroupReplyAllowedSenders,
		mentionOnly:              a.cfg.MentionOnly,
		threadReplies:            a.cfg.ThreadReplies,
		tracker:                  a.tracker,
		g:                        a.guard,
		bus:                      bus,
		logger:                   a.logger,
		onForward: func(channelID string) {
			if a.m != nil {
				a.m.RecordMessageForwarded(channelID)
			}
		},
	}

	conn := NewConn(a.cfg.BaseURL, a.cfg.BotToken, func(ctx context.Context, post mattermostPost, channelID string) {
		if channelID != "" {
			post.ChannelID = channelID
		}
		d.handlePost(ctx, post, 0)
	}, a.logger, func(s ConnState) {
		a.connState.Store(int32(s))
		if a.m != nil {
			state := int(s)
			if s == Failed {
				state = metrics.StateFailed
			}
			a.m.SetAdapterState("mattermost", state)
		}
	})

	wsErr := conn.Run(ctx)
	if wsErr == nil || ctx.Err() != nil {
		return wsErr
	}

	if a.cfg.ChannelID == "" {
		return fmt.Errorf("mattermost: websocket exhausted and no channel id configured for polling fallback: %w", wsErr)
	}

	a.logger.Warn().Err(wsErr).Msg("mattermost: websocket unavailable, falling back to polling")
	poll := &pollingLoop{client: a.client, dispatch: d, channelID: a.cfg.ChannelID, logger: a.logger}
	return poll.run(ctx)
}
