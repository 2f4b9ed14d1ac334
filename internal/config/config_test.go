package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCSV(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Equal(t, []string{"*"}, splitCSV("*"))
	assert.Equal(t, []string{"U1", "U2"}, splitCSV("U1,U2"))
	assert.Equal(t, []string{"U1", "U2"}, splitCSV(" U1 , U2 "))
	assert.Equal(t, []string{"U1"}, splitCSV("U1,,"))
}

func TestSlackEnabled(t *testing.T) {
	c := &Config{}
	assert.False(t, c.SlackEnabled())
	assert.False(t, c.SlackSocketModeEnabled())

	c.SlackBotToken = "xoxb-1"
	assert.True(t, c.SlackEnabled())
	assert.False(t, c.SlackSocketModeEnabled())

	c.SlackAppToken = "xapp-1"
	assert.True(t, c.SlackSocketModeEnabled())
}

func TestMattermostEnabled(t *testing.T) {
	c := &Config{}
	assert.False(t, c.MattermostEnabled())

	c.MattermostBaseURL = "https://mm.example.com"
	assert.False(t, c.MattermostEnabled())

	c.MattermostBotToken = "token"
	assert.True(t, c.MattermostEnabled())
}

func TestAllowListAccessors(t *testing.T) {
	c := &Config{
		SlackAllowedUsers:                  "U1,U2",
		MattermostAllowedUsers:             "*",
		MattermostGroupReplyAllowedSenders: "U3",
	}
	assert.Equal(t, []string{"U1", "U2"}, c.SlackAllowedUserList())
	assert.Equal(t, []string{"*"}, c.MattermostAllowedUserList())
	assert.Equal(t, []string{"U3"}, c.MattermostGroupReplyAllowedSenderList())
}

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0.7, cfg.PromptGuardSensitivity)
	assert.Equal(t, "warn", cfg.PromptGuardAction)
	assert.Equal(t, 8080, cfg.WebhookPort)
	assert.Equal(t, 1024, cfg.QueueCapacity)
	assert.Equal(t, "1h0m0s", cfg.InactivityTimeout.String())
	assert.Equal(t, "30m0s", cfg.MattermostThreadTTL.String())
}

func TestLoad_CustomValues(t *testing.T) {
	os.Clearenv()
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("WEBHOOK_PORT", "9090")
	t.Setenv("QUEUE_CAPACITY", "64")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "xoxb-test", cfg.SlackBotToken)
	assert.Equal(t, 9090, cfg.WebhookPort)
	assert.Equal(t, 64, cfg.QueueCapacity)
}
