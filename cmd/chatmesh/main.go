package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/chatmesh/internal/channel"
	"github.com/p-blackswan/chatmesh/internal/config"
	"github.com/p-blackswan/chatmesh/internal/guard"
	"github.com/p-blackswan/chatmesh/internal/health"
	"github.com/p-blackswan/chatmesh/internal/mattermost"
	"github.com/p-blackswan/chatmesh/internal/metrics"
	"github.com/p-blackswan/chatmesh/internal/slack"
	"github.com/p-blackswan/chatmesh/internal/timerpool"
	"github.com/p-blackswan/chatmesh/internal/wakesleep"
	"github.com/p-blackswan/chatmesh/internal/webhook"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if level, levelErr := zerolog.ParseLevel(cfg.LogLevel); levelErr == nil {
		zerolog.SetGlobalLevel(level)
	}
	if cfg.Environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger

	logger.Info().
		Str("environment", cfg.Environment).
		Int("webhook_port", cfg.WebhookPort).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Bool("mattermost_enabled", cfg.MattermostEnabled()).
		Msg("starting chatmesh ingress fabric")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	m := metrics.New()
	checker := health.NewChecker(logger)
	bus := channel.NewBus(cfg.QueueCapacity)

	var wg sync.WaitGroup
	var channels []channel.Channel

	if cfg.SlackEnabled() {
		wake := wakesleep.New(0)
		timers := timerpool.New(0, cfg.InactivityTimeout)

		slackAdapter := slack.NewAdapter(slack.Config{
			BotToken:     cfg.SlackBotToken,
			AppToken:     cfg.SlackAppToken,
			ChannelID:    cfg.SlackChannelID,
			AllowedUsers: cfg.SlackAllowedUserList(),
		}, wake, timers, m, logger)

		channels = append(channels, slackAdapter)
		checker.Register("slack", func(ctx context.Context) health.Status {
			if slackAdapter.HealthCheck(ctx) {
				return health.StatusOK
			}
			return health.StatusDown
		})
		logger.Info().Bool("socket_mode", cfg.SlackSocketModeEnabled()).Msg("slack adapter configured")
	} else {
		logger.Info().Msg("slack not configured, skipping")
	}

	if cfg.MattermostEnabled() {
		mattermostAdapter := mattermost.NewAdapter(mattermost.Config{
			BaseURL:                  cfg.MattermostBaseURL,
			BotToken:                 cfg.MattermostBotToken,
			AdminToken:               cfg.MattermostAdminToken,
			ChannelID:                cfg.MattermostChannelID,
			AllowedUsers:             cfg.MattermostAllowedUserList(),
			ThreadReplies:            cfg.MattermostThreadReplies,
			MentionOnly:              cfg.MattermostMentionOnly,
			ThreadTTL:                cfg.MattermostThreadTTL,
			SyncProfile:              cfg.MattermostSyncProfile,
			AIEOSPath:                cfg.MattermostAIEOSPath,
			GroupReplyAllowedSenders: cfg.MattermostGroupReplyAllowedSenderList(),
			GuardAction:              guard.Action(cfg.PromptGuardAction),
			GuardThreshold:           cfg.PromptGuardSensitivity,
		}, m, logger)

		channels = append(channels, mattermostAdapter)
		checker.Register("mattermost", func(ctx context.Context) health.Status {
			if mattermostAdapter.HealthCheck(ctx) {
				return health.StatusOK
			}
			return health.StatusDown
		})
		logger.Info().Msg("mattermost adapter configured")
	} else {
		logger.Info().Msg("mattermost not configured, skipping")
	}

	for _, ch := range channels {
		wg.Add(1)
		go func(ch channel.Channel) {
			defer wg.Done()
			if err := ch.Listen(ctx, bus); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Str("adapter", ch.Name()).Msg("adapter listen loop exited")
			}
		}(ch)
	}

	webhookServer := webhook.NewServer(webhook.Config{
		ListenAddr:    ":" + strconv.Itoa(cfg.WebhookPort),
		LinearSecret:  cfg.LinearSigningSecret,
		GitHubSecret:  cfg.GitHubWebhookSecret,
		GenericSecret: cfg.WebhookSigningSecret,
	}, bus, m, checker, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := webhookServer.Start(); err != nil {
			logger.Error().Err(err).Msg("webhook ingress server error")
		}
	}()

	// Drains the outbound bus. The agent loop that actually acts on these
	// messages is an external collaborator; this loop is the seam it plugs
	// into and keeps the queue depth metric live in the meantime.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-bus.Messages():
				m.QueueDepth.Set(float64(bus.Len()))
				m.QueueCapacity.Set(float64(bus.Cap()))
				logger.Debug().
					Str("channel", msg.Channel).
					Str("reply_target", msg.ReplyTarget).
					Str("sender", msg.Sender).
					Msg("message available for agent consumption")
			}
		}
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := webhookServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("webhook ingress shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("chatmesh stopped")
}
