package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatmesh/internal/channel"
	"github.com/p-blackswan/chatmesh/internal/message"
	"github.com/p-blackswan/chatmesh/internal/timerpool"
	"github.com/p-blackswan/chatmesh/internal/wakesleep"
)

// slackEvent is the subset of an events_api inner event the dispatcher
// needs, shared by the Socket Mode and polling ingestion paths.
type slackEvent struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	BotID    string `json:"bot_id"`
	User     string `json:"user"`
	Text     string `json:"text"`
	Channel  string `json:"channel"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
}

// eventsAPIPayload is the subset of the events_api envelope payload the
// dispatcher needs.
type eventsAPIPayload struct {
	Event slackEvent `json:"event"`
}

// blockStateValue is one entry in a view_submission's state.values block.
type blockStateValue struct {
	Value string `json:"value"`
}

// interactivePayload covers both block_actions and view_submission shapes.
type interactivePayload struct {
	Type    string `json:"type"`
	User    struct {
		ID string `json:"id"`
	} `json:"user"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	TriggerID string `json:"trigger_id"`
	Actions   []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
	View struct {
		CallbackID      string `json:"callback_id"`
		PrivateMetadata string `json:"private_metadata"`
		State           struct {
			Values map[string]map[string]blockStateValue `json:"values"`
		} `json:"state"`
	} `json:"view"`
	// Block actions carry container context (channel/message) directly;
	// some integrations nest the originating message's thread under
	// container.message_ts / container.channel_id.
	Container struct {
		ChannelID string `json:"channel_id"`
		MessageTS string `json:"message_ts"`
	} `json:"container"`
}

// dispatcher holds everything needed to turn a Socket Mode envelope into a
// ChannelMessage published on the bus, mirroring the events_api and
// interactive handling the REST polling fallback also performs.
type dispatcher struct {
	botUserID    string
	botUsername  string
	channelID    string // fixed channel filter; empty = no restriction
	allowedUsers []string

	wake   *wakesleep.Engine
	timers *timerpool.Pool
	bus    *channel.Bus
	client *SafeSlackClient
	logger zerolog.Logger

	onForward func(channelID string) // metrics hook
}

func (d *dispatcher) isAuthorized(userID string) bool {
	for _, u := range d.allowedUsers {
		if u == "*" || u == userID {
			return true
		}
	}
	return false
}

func (d *dispatcher) handleEnvelope(ctx context.Context, env envelope) {
	switch env.Type {
	case "events_api":
		d.handleEventsAPI(ctx, env.Payload)
	case "interactive":
		d.handleInteractive(ctx, env.Payload)
	default:
		// slash_commands and anything else: silently ignored per spec.
	}
}

func (d *dispatcher) handleEventsAPI(ctx context.Context, raw json.RawMessage) {
	var p eventsAPIPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		d.logger.Warn().Err(err).Msg("protocol violation: malformed events_api payload")
		return
	}
	ev := p.Event

	if ev.Type != "message" && ev.Type != "app_mention" {
		return
	}
	if ev.Subtype != "" || ev.BotID != "" {
		return
	}
	if ev.User == d.botUserID {
		return
	}
	if ev.Text == "" || ev.User == "" || ev.Channel == "" || ev.TS == "" {
		return
	}
	if d.channelID != "" && ev.Channel != d.channelID {
		return
	}
	if !d.isAuthorized(ev.User) {
		d.logger.Debug().Str("sender", ev.User).Str("channel", ev.Channel).Msg("dropping message: sender not authorized")
		return
	}

	threadTS := ev.ThreadTS
	if threadTS == "" {
		threadTS = ev.TS
	}
	key := message.NewThreadKey(ev.Channel, threadTS)
	isMention := ev.Type == "app_mention"

	decision := d.wake.OnEvent(key, isMention)
	if decision == wakesleep.Discard {
		return
	}

	// Slack's own event text already carries the raw "<@BOTID>" mention tag;
	// unlike Mattermost, the adapter passes it through unstripped and relies
	// on event.type == "app_mention" as the sole mention signal. Slack has no
	// Prompt Guard integration in the original source (only Mattermost does);
	// this dispatcher never scans content.
	content := ev.Text

	msg := message.ChannelMessage{
		ID:          fmt.Sprintf("slack_%s_%s", ev.Channel, ev.TS),
		Sender:      ev.User,
		ReplyTarget: message.ReplyTarget(ev.Channel, threadTS),
		Content:     content,
		Channel:     "slack",
		Timestamp:   time.Now().Unix(),
		ThreadTS:    threadTS,
	}

	if err := d.bus.Publish(ctx, msg); err != nil {
		return
	}
	if d.onForward != nil {
		d.onForward("slack")
	}
	d.timers.Reset(key, d.expireFunc(key, ev.Channel, threadTS))
}

func (d *dispatcher) expireFunc(key message.ThreadKey, channelID, threadTS string) func() {
	return func() {
		d.wake.MarkSleeping(key)
		if d.client != nil {
			_, _ = d.client.PostMessage(context.Background(), channelID, "Going to sleep due to inactivity.", threadTS, nil)
		}
	}
}

func (d *dispatcher) handleInteractive(ctx context.Context, raw json.RawMessage) {
	var p interactivePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		d.logger.Warn().Err(err).Msg("protocol violation: malformed interactive payload")
		return
	}

	switch p.Type {
	case "block_actions":
		d.handleBlockActions(ctx, p)
	case "view_submission":
		d.handleViewSubmission(ctx, p)
	}
}

func (d *dispatcher) handleBlockActions(ctx context.Context, p interactivePayload) {
	if len(p.Actions) == 0 {
		return
	}
	action := p.Actions[0]
	channelID := p.Channel.ID
	if channelID == "" {
		channelID = p.Container.ChannelID
	}
	threadTS := p.Container.MessageTS

	if action.ActionID == "edit_issue" {
		if d.client != nil {
			_ = d.client.OpenView(ctx, p.TriggerID, editIssueModal(channelID, threadTS, action.Value, ""))
		}
		return
	}

	if action.ActionID != "confirm_issue" && action.ActionID != "cancel_issue" {
		return
	}

	safeValue := sanitizeBlockActionValue(action.Value)
	content := fmt.Sprintf("[block_action:%s] %s", action.ActionID, safeValue)

	key := message.NewThreadKey(channelID, threadTS)
	msg := message.ChannelMessage{
		ID:          fmt.Sprintf("slack_%s_%d", channelID, time.Now().UnixNano()),
		Sender:      p.User.ID,
		ReplyTarget: message.ReplyTarget(channelID, threadTS),
		Content:     content,
		Channel:     "slack",
		Timestamp:   time.Now().Unix(),
		ThreadTS:    threadTS,
	}
	if err := d.bus.Publish(ctx, msg); err != nil {
		return
	}
	if d.onForward != nil {
		d.onForward("slack")
	}
	d.timers.Reset(key, d.expireFunc(key, channelID, threadTS))
}

func (d *dispatcher) handleViewSubmission(ctx context.Context, p interactivePayload) {
	channelID, threadTS := message.SplitReplyTarget(p.View.PrivateMetadata)

	title := extractStateValue(p.View.State.Values, "title_block", "title_input")
	description := extractStateValue(p.View.State.Values, "description_block", "description_input")

	content := fmt.Sprintf("[view_submission:%s] title=%s description=%s", p.View.CallbackID, title, description)

	key := message.NewThreadKey(channelID, threadTS)
	msg := message.ChannelMessage{
		ID:          fmt.Sprintf("slack_%s_%d", channelID, time.Now().UnixNano()),
		Sender:      p.User.ID,
		ReplyTarget: message.ReplyTarget(channelID, threadTS),
		Content:     content,
		Channel:     "slack",
		Timestamp:   time.Now().Unix(),
		ThreadTS:    threadTS,
	}
	if err := d.bus.Publish(ctx, msg); err != nil {
		return
	}
	if d.onForward != nil {
		d.onForward("slack")
	}
	d.timers.Reset(key, d.expireFunc(key, channelID, threadTS))
}

func extractStateValue(values map[string]map[string]blockStateValue, blockID, actionID string) string {
	block, ok := values[blockID]
	if !ok {
		return ""
	}
	return strings.TrimSpace(block[actionID].Value)
}
