// Package message defines the data types that flow between channel adapters
// and the agent that consumes them.
package message

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChannelMessage is an immutable inbound message normalized from a chat
// platform event, ready for the agent to consume.
type ChannelMessage struct {
	ID           string          `json:"id"`
	Sender       string          `json:"sender"`
	ReplyTarget  string          `json:"reply_target"`
	Content      string          `json:"content"`
	Channel      string          `json:"channel"`
	Timestamp    int64           `json:"timestamp"`
	ThreadTS     string          `json:"thread_ts,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// SendMessage is an outbound message the agent asks an adapter to deliver.
type SendMessage struct {
	Content        string
	Recipient      string
	ThreadTS       string
	Username       string
	IconEmoji      string
	Blocks         any
	ReplyBroadcast bool
}

// ThreadKey is the canonical per-thread state key: "<channel>:<thread_root>".
type ThreadKey string

// NewThreadKey builds the canonical thread key for a channel and root id.
func NewThreadKey(channel, threadRoot string) ThreadKey {
	return ThreadKey(channel + ":" + threadRoot)
}

// String implements fmt.Stringer.
func (k ThreadKey) String() string { return string(k) }

// Split returns the channel and thread-root components of the key.
func (k ThreadKey) Split() (channel, threadRoot string) {
	s := string(k)
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

// ReplyTarget builds the opaque routing token consumed by Channel.Send:
// either "<channelID>" or "<channelID>:<rootID>" when a reply must land in
// a specific thread.
func ReplyTarget(channelID, rootID string) string {
	if rootID == "" {
		return channelID
	}
	return fmt.Sprintf("%s:%s", channelID, rootID)
}

// SplitReplyTarget decomposes a reply target into its channel id and
// optional thread root id.
func SplitReplyTarget(target string) (channelID, rootID string) {
	idx := strings.IndexByte(target, ':')
	if idx < 0 {
		return target, ""
	}
	return target[:idx], target[idx+1:]
}
