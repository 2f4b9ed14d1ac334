package mattermost

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatmesh/internal/activity"
	"github.com/p-blackswan/chatmesh/internal/channel"
	"github.com/p-blackswan/chatmesh/internal/guard"
	"github.com/p-blackswan/chatmesh/internal/mention"
	"github.com/p-blackswan/chatmesh/internal/message"
)

// mattermostPost is the subset of a Mattermost post object the dispatcher
// needs, shared by the WebSocket and REST polling ingestion paths.
type mattermostPost struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	Message   string `json:"message"`
	CreateAt  int64  `json:"create_at"`
	RootID    string `json:"root_id"`
	Metadata  struct {
		Mentions []string `json:"mentions"`
	} `json:"metadata"`
}

// dispatcher turns a parsed post into a ChannelMessage published on the
// bus, applying authorization, mention-only gating via the Thread Activity
// Tracker, and Prompt Guard screening.
type dispatcher struct {
	botUserID   string
	botUsername string
	channelID   string // fixed channel filter; empty = no restriction

	allowedUsers             []string
	groupReplyAllowedSenders []string
	mentionOnly              bool
	threadReplies            bool

	tracker *activity.Tracker
	g       *guard.Guard
	bus     *channel.Bus
	logger  zerolog.Logger

	onForward func(channelID string)
}

func (d *dispatcher) isUserAllowed(userID string) bool {
	for _, u := range d.allowedUsers {
		if u == "*" || u == userID {
			return true
		}
	}
	return false
}

func (d *dispatcher) isGroupSenderTriggerEnabled(userID string) bool {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	for _, u := range d.groupReplyAllowedSenders {
		if u == "*" || u == userID {
			return true
		}
	}
	return false
}

func (d *dispatcher) containsBotMention(post mattermostPost) bool {
	if len(mention.FindBotMentionSpans(post.Message, d.botUsername)) > 0 {
		return true
	}
	if d.botUserID == "" {
		return false
	}
	for _, m := range post.Metadata.Mentions {
		if m == d.botUserID {
			return true
		}
	}
	return false
}

// handlePost applies the full post-to-ChannelMessage pipeline. lastCreateAt
// is the dedup watermark: 0 on the WebSocket path (at-most-once delivery
// per session), the high-water mark of prior polls on the polling path.
func (d *dispatcher) handlePost(ctx context.Context, post mattermostPost, lastCreateAt int64) {
	if post.UserID == d.botUserID || post.CreateAt <= lastCreateAt || post.Message == "" {
		return
	}
	if d.channelID != "" && post.ChannelID != d.channelID {
		return
	}
	if !d.isUserAllowed(post.UserID) {
		d.logger.Debug().Str("sender", post.UserID).Str("channel", post.ChannelID).Msg("dropping message: sender not authorized")
		return
	}

	requireMention := d.mentionOnly && !d.isGroupSenderTriggerEnabled(post.UserID)

	threadID := post.RootID
	if threadID == "" {
		threadID = post.ID
	}
	key := message.NewThreadKey(post.ChannelID, threadID)

	var content string
	if requireMention {
		hasMention := d.containsBotMention(post)
		inActiveThread := threadID != "" && d.tracker.IsActive(key)

		switch {
		case hasMention:
			normalized, ok := mention.NormalizeContent(post.Message, d.botUserID, d.botUsername, post.Metadata.Mentions)
			if !ok {
				// Bare "@bot" with nothing else: must not touch the tracker.
				return
			}
			content = normalized
			if threadID != "" {
				d.tracker.Touch(key)
			}
		case inActiveThread:
			d.tracker.Touch(key)
			content = post.Message
		default:
			return
		}
	} else {
		content = post.Message
	}

	if d.g != nil {
		result := d.g.Scan(content)
		if result.Verdict == guard.Blocked {
			d.logger.Warn().Str("sender", post.UserID).Str("reason", result.Reason).Msg("guard blocked message")
			return
		}
	}

	reply := d.replyTarget(post)
	msg := message.ChannelMessage{
		ID:          fmt.Sprintf("mattermost_%s", post.ID),
		Sender:      post.UserID,
		ReplyTarget: reply,
		Content:     content,
		Channel:     "mattermost",
		Timestamp:   post.CreateAt / 1000,
	}

	if err := d.bus.Publish(ctx, msg); err != nil {
		return
	}
	if d.onForward != nil {
		d.onForward("mattermost")
	}
}

// replyTarget implements the routing rule: an existing thread (root_id set)
// always replies in-thread; otherwise a top-level post starts a new thread
// when thread_replies is on, or replies at channel level otherwise.
func (d *dispatcher) replyTarget(post mattermostPost) string {
	if post.RootID != "" {
		return message.ReplyTarget(post.ChannelID, post.RootID)
	}
	if d.threadReplies {
		return message.ReplyTarget(post.ChannelID, post.ID)
	}
	return message.ReplyTarget(post.ChannelID, "")
}

// nowMillis is the Unix-millisecond "now" used to seed the polling
// watermark at startup.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
