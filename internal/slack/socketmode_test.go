package slack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateWSSURL_AcceptsSlackHost(t *testing.T) {
	assert.NoError(t, validateWSSURL("wss://wss-primary.slack.com/link"))
	assert.NoError(t, validateWSSURL("wss://cerberus-xxl.lb.slack.com/foo"))
	assert.NoError(t, validateWSSURL("wss://slack.com/link"))
}

func TestValidateWSSURL_RejectsLookalikeHost(t *testing.T) {
	assert.Error(t, validateWSSURL("wss://evil-slack.com/link"))
	assert.Error(t, validateWSSURL("wss://evil.com/link"))
	assert.Error(t, validateWSSURL("wss://notslack.com/link"))
}

func TestValidateWSSURL_RejectsNonWSSScheme(t *testing.T) {
	assert.Error(t, validateWSSURL("ws://slack.com/link"))
	assert.Error(t, validateWSSURL("https://slack.com/link"))
}

func TestValidateWSSURL_RejectsPortEmbeddedLookalike(t *testing.T) {
	assert.Error(t, validateWSSURL("wss://evil.com:443/slack.com"))
}

func TestConnState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "failed", Failed.String())
}
