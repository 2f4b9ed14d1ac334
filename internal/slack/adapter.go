package slack

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/chatmesh/internal/channel"
	"github.com/p-blackswan/chatmesh/internal/message"
	"github.com/p-blackswan/chatmesh/internal/metrics"
	"github.com/p-blackswan/chatmesh/internal/timerpool"
	"github.com/p-blackswan/chatmesh/internal/wakesleep"
)

// Config configures the Slack adapter.
type Config struct {
	BotToken     string
	AppToken     string // empty => REST polling fallback instead of Socket Mode
	ChannelID    string // empty => discover accessible channels
	AllowedUsers []string
}

// Adapter implements channel.Channel for Slack.
type Adapter struct {
	cfg    Config
	client *SafeSlackClient
	wake   *wakesleep.Engine
	timers *timerpool.Pool
	m      *metrics.Metrics
	logger zerolog.Logger

	botUserID   string
	botUsername string

	connState atomic.Int32
}

// NewAdapter builds a Slack adapter from configuration and shared
// ingress-fabric components.
func NewAdapter(cfg Config, wake *wakesleep.Engine, timers *timerpool.Pool, m *metrics.Metrics, logger zerolog.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: NewSafeSlackClient(cfg.BotToken, cfg.ChannelID),
		wake:   wake,
		timers: timers,
		m:      m,
		logger: logger.With().Str("component", "slack.adapter").Logger(),
	}
}

// Name implements channel.Channel.
func (a *Adapter) Name() string { return "slack" }

// Send implements channel.Channel. msg.Blocks, when set, must be a
// []slack.Block built by DraftIssueBlocks or IssueConfirmationBlocks.
func (a *Adapter) Send(ctx context.Context, msg message.SendMessage) error {
	channelID, threadTS := message.SplitReplyTarget(msg.Recipient)
	if threadTS == "" {
		threadTS = msg.ThreadTS
	}

	blocks, _ := msg.Blocks.([]slack.Block)
	_, err := a.client.PostMessage(ctx, channelID, msg.Content, threadTS, blocks)
	return err
}

// HealthCheck implements channel.Channel.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	if a.cfg.AppToken != "" {
		return ConnState(a.connState.Load()) == Running
	}
	_, _, err := a.client.AuthTest(ctx)
	return err == nil
}

// StartTyping implements channel.Channel. Slack has no typing indicator in
// the REST/Socket Mode surface this adapter uses; it is a documented no-op
// here (Mattermost's adapter is where typing indicators apply).
func (a *Adapter) StartTyping(ctx context.Context, recipient string) error {
	return nil
}

// StopTyping implements channel.Channel.
func (a *Adapter) StopTyping(recipient string) error {
	return nil
}

// Listen implements channel.Channel. It resolves the bot's own identity,
// then runs either the Socket Mode connection loop or the REST polling
// fallback, publishing ChannelMessages onto bus until ctx is cancelled.
func (a *Adapter) Listen(ctx context.Context, bus *channel.Bus) error {
	userID, userName, err := a.client.AuthTest(ctx)
	if err != nil {
		return fmt.Errorf("slack: auth.test failed: %w", err)
	}
	a.botUserID = userID
	a.botUsername = userName
	defer a.timers.CancelAll()

	d := &dispatcher{
		botUserID:    a.botUserID,
		botUsername:  a.botUsername,
		channelID:    a.cfg.ChannelID,
		allowedUsers: a.cfg.AllowedUsers,
		wake:         a.wake,
		timers:       a.timers,
		bus:          bus,
		client:       a.client,
		logger:       a.logger,
		onForward: func(channelID string) {
			if a.m != nil {
				a.m.RecordMessageForwarded(channelID)
			}
		},
	}

	if a.cfg.AppToken == "" {
		a.logger.Info().Msg("no app-level token configured, using REST polling fallback")
		poll := &pollingLoop{client: a.client, dispatch: d, channelID: a.cfg.ChannelID, logger: a.logger}
		return poll.run(ctx)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	conn := NewConn(a.cfg.AppToken, httpClient, d.handleEnvelope, a.logger, func(s ConnState) {
		a.connState.Store(int32(s))
		if a.m != nil {
			state := int(s)
			if s == Failed {
				state = metrics.StateFailed
			}
			a.m.SetAdapterState("slack", state)
		}
	})
	return conn.Run(ctx)
}
