// Package config loads chatmesh's runtime configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Slack (optional — the fabric runs without Slack if unset)
	SlackBotToken    string `envconfig:"SLACK_BOT_TOKEN"`
	SlackAppToken    string `envconfig:"SLACK_APP_TOKEN"` // xapp- token, Socket Mode; empty => polling fallback
	SlackChannelID   string `envconfig:"SLACK_CHANNEL_ID"`
	SlackAllowedUsers string `envconfig:"SLACK_ALLOWED_USERS"` // comma-separated, "*" = everyone

	// Mattermost (optional — the fabric runs without Mattermost if unset)
	MattermostBaseURL      string        `envconfig:"MATTERMOST_BASE_URL"`
	MattermostBotToken     string        `envconfig:"MATTERMOST_BOT_TOKEN"`
	MattermostAdminToken   string        `envconfig:"MATTERMOST_ADMIN_TOKEN"`
	MattermostChannelID    string        `envconfig:"MATTERMOST_CHANNEL_ID"`
	MattermostAllowedUsers string        `envconfig:"MATTERMOST_ALLOWED_USERS"`
	MattermostThreadReplies bool         `envconfig:"MATTERMOST_THREAD_REPLIES" default:"true"`
	MattermostMentionOnly  bool          `envconfig:"MATTERMOST_MENTION_ONLY" default:"true"`
	MattermostThreadTTL    time.Duration `envconfig:"MATTERMOST_THREAD_TTL" default:"30m"`
	MattermostSyncProfile  bool          `envconfig:"MATTERMOST_SYNC_PROFILE" default:"false"`
	MattermostAIEOSPath    string        `envconfig:"MATTERMOST_AIEOS_PATH"`
	MattermostGroupReplyAllowedSenders string `envconfig:"MATTERMOST_GROUP_REPLY_ALLOWED_SENDERS"`

	// Prompt Guard
	PromptGuardAction      string  `envconfig:"PROMPT_GUARD_ACTION" default:"warn"` // "warn" or "block"
	PromptGuardSensitivity float64 `envconfig:"PROMPT_GUARD_SENSITIVITY" default:"0.7"`

	// Inactivity / wake-sleep tuning
	InactivityTimeout time.Duration `envconfig:"INACTIVITY_TIMEOUT" default:"1h"`

	// Webhook ingress
	WebhookPort         int    `envconfig:"WEBHOOK_PORT" default:"8080"`
	WebhookSigningSecret string `envconfig:"WEBHOOK_SIGNING_SECRET"`
	LinearSigningSecret string `envconfig:"LINEAR_SIGNING_SECRET"`
	GitHubWebhookSecret string `envconfig:"GITHUB_WEBHOOK_SECRET"`

	// Outbound queue
	QueueCapacity int `envconfig:"QUEUE_CAPACITY" default:"1024"`
}

// SlackEnabled returns true if the Slack bot token is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != ""
}

// SlackSocketModeEnabled returns true if Socket Mode should be used instead
// of the REST polling fallback.
func (c *Config) SlackSocketModeEnabled() bool {
	return c.SlackEnabled() && c.SlackAppToken != ""
}

// SlackAllowedUserList parses the comma-separated allowlist. "*" means everyone.
func (c *Config) SlackAllowedUserList() []string {
	return splitCSV(c.SlackAllowedUsers)
}

// MattermostEnabled returns true if Mattermost credentials are configured.
func (c *Config) MattermostEnabled() bool {
	return c.MattermostBaseURL != "" && c.MattermostBotToken != ""
}

// MattermostAllowedUserList parses the comma-separated allowlist.
func (c *Config) MattermostAllowedUserList() []string {
	return splitCSV(c.MattermostAllowedUsers)
}

// MattermostGroupReplyAllowedSenderList parses the comma-separated list of
// senders permitted bare continuation replies in group channels.
func (c *Config) MattermostGroupReplyAllowedSenderList() []string {
	return splitCSV(c.MattermostGroupReplyAllowedSenders)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}
