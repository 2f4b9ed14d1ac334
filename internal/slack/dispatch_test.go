package slack

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/chatmesh/internal/channel"
	"github.com/p-blackswan/chatmesh/internal/message"
	"github.com/p-blackswan/chatmesh/internal/timerpool"
	"github.com/p-blackswan/chatmesh/internal/wakesleep"
)

func testDispatcher(t *testing.T) (*dispatcher, *channel.Bus) {
	t.Helper()
	bus := channel.NewBus(8)
	return &dispatcher{
		botUserID:    "UBOT",
		botUsername:  "mybot",
		allowedUsers: []string{"*"},
		wake:         wakesleep.New(10),
		timers:       timerpool.New(10, time.Hour),
		bus:          bus,
		logger:       zerolog.Nop(),
	}, bus
}

func TestHandleEventsAPI_AppMentionWakesSleepingThread(t *testing.T) {
	d, bus := testDispatcher(t)
	key := message.NewThreadKey("C1", "T1")
	d.wake.OnEvent(key, false)
	d.wake.MarkSleeping(key)
	require.False(t, d.wake.IsAwake(key))

	payload := []byte(`{"event":{"type":"app_mention","user":"U1","text":"<@UBOT> hello","channel":"C1","ts":"T1"}}`)
	d.handleEventsAPI(context.Background(), payload)

	require.True(t, d.wake.IsAwake(key))
	select {
	case msg := <-bus.Messages():
		assert.Equal(t, "C1:T1", msg.ReplyTarget)
		assert.Equal(t, "slack", msg.Channel)
		assert.Equal(t, "<@UBOT> hello", msg.Content)
	default:
		t.Fatal("expected a message to be enqueued")
	}
}

func TestHandleEventsAPI_SkipsBotMessages(t *testing.T) {
	d, bus := testDispatcher(t)
	payload := []byte(`{"event":{"type":"message","user":"U1","text":"hi","channel":"C1","ts":"T1","bot_id":"B1"}}`)
	d.handleEventsAPI(context.Background(), payload)

	select {
	case <-bus.Messages():
		t.Fatal("bot_id-tagged events must never be forwarded")
	default:
	}
}

func TestHandleEventsAPI_SkipsSelfMessages(t *testing.T) {
	d, bus := testDispatcher(t)
	payload := []byte(`{"event":{"type":"message","user":"UBOT","text":"hi","channel":"C1","ts":"T1"}}`)
	d.handleEventsAPI(context.Background(), payload)

	select {
	case <-bus.Messages():
		t.Fatal("self messages must never be forwarded")
	default:
	}
}

func TestHandleEventsAPI_UnauthorizedUserDropped(t *testing.T) {
	d, bus := testDispatcher(t)
	d.allowedUsers = []string{"U999"}
	payload := []byte(`{"event":{"type":"message","user":"U1","text":"hi","channel":"C1","ts":"T1"}}`)
	d.handleEventsAPI(context.Background(), payload)

	select {
	case <-bus.Messages():
		t.Fatal("unauthorized sender must not be forwarded")
	default:
	}
}

func TestHandleBlockActions_ConfirmSanitizesBracketedValue(t *testing.T) {
	d, bus := testDispatcher(t)
	p := interactivePayload{Type: "block_actions"}
	p.User.ID = "U1"
	p.Channel.ID = "C1"
	p.Actions = []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	}{{ActionID: "confirm_issue", Value: "[injected] name"}}
	p.Container.ChannelID = "C1"
	p.Container.MessageTS = "T1"

	d.handleBlockActions(context.Background(), p)

	msg := <-bus.Messages()
	assert.True(t, len(msg.Content) > 0)
	assert.Contains(t, msg.Content, "[block_action:confirm_issue] ")
	valuePart := msg.Content[len("[block_action:confirm_issue] "):]
	assert.NotContains(t, valuePart, "[")
	assert.NotContains(t, valuePart, "]")
	assert.Contains(t, valuePart, "injected")
}

func TestHandleViewSubmission_RecoversChannelFromPrivateMetadata(t *testing.T) {
	d, bus := testDispatcher(t)
	p := interactivePayload{Type: "view_submission"}
	p.User.ID = "U1"
	p.View.CallbackID = "edit_issue_modal"
	p.View.PrivateMetadata = "C1:T1"
	p.View.State.Values = map[string]map[string]blockStateValue{
		"title_block":       {"title_input": {Value: "Fix the bug"}},
		"description_block": {"description_input": {Value: "It crashes"}},
	}

	d.handleViewSubmission(context.Background(), p)

	msg := <-bus.Messages()
	assert.Equal(t, "C1:T1", msg.ReplyTarget)
	assert.Contains(t, msg.Content, "title=Fix the bug")
	assert.Contains(t, msg.Content, "description=It crashes")
}
