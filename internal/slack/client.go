// Package slack implements the Slack Socket Mode adapter: REST calls via
// slack-go/slack, a hand-rolled Socket Mode transport over
// gorilla/websocket, envelope dispatch, interactive Block Kit flows, and a
// REST polling fallback for when no app-level token is configured.
package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SafeSlackClient wraps *slack.Client with a fail-closed channel allowlist:
// every send-side call is rejected unless the target channel is explicitly
// permitted, so a misconfigured adapter can never post into a channel it
// was not set up for.
type SafeSlackClient struct {
	api           *slack.Client
	allowedChannel string // empty means "no fixed channel restriction"
}

// NewSafeSlackClient builds a client restricted to allowedChannel. An empty
// allowedChannel disables the restriction (multi-channel / discovered mode).
func NewSafeSlackClient(botToken, allowedChannel string) *SafeSlackClient {
	return &SafeSlackClient{
		api:            slack.New(botToken),
		allowedChannel: allowedChannel,
	}
}

func (c *SafeSlackClient) checkChannel(channelID string) error {
	if c.allowedChannel != "" && channelID != c.allowedChannel {
		return fmt.Errorf("slack: channel %q is not the configured channel %q", channelID, c.allowedChannel)
	}
	return nil
}

// PostMessage sends text (optionally with blocks) to channelID, threaded
// under threadTS when set.
func (c *SafeSlackClient) PostMessage(ctx context.Context, channelID, text, threadTS string, blocks []slack.Block) (ts string, err error) {
	if err := c.checkChannel(channelID); err != nil {
		return "", err
	}
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, respTS, err := c.api.PostMessageContext(ctx, channelID, opts...)
	return respTS, err
}

// OpenView opens a modal in response to an interactive trigger.
func (c *SafeSlackClient) OpenView(ctx context.Context, triggerID string, view slack.ModalViewRequest) error {
	_, err := c.api.OpenViewContext(ctx, triggerID, view)
	return err
}

// History fetches messages newer than oldest for channelID.
func (c *SafeSlackClient) History(ctx context.Context, channelID, oldest string) (*slack.GetConversationHistoryResponse, error) {
	if err := c.checkChannel(channelID); err != nil {
		return nil, err
	}
	return c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Oldest:    oldest,
		Inclusive: false,
	})
}

// ListChannels returns one page of channels the bot can access.
func (c *SafeSlackClient) ListChannels(ctx context.Context, cursor string) (channels []slack.Channel, nextCursor string, err error) {
	return c.api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
		Cursor: cursor,
		Limit:  200,
		Types:  []string{"public_channel", "private_channel"},
	})
}

// AuthTest confirms the bot token is valid and returns the bot's own user id.
func (c *SafeSlackClient) AuthTest(ctx context.Context) (userID, userName string, err error) {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", "", err
	}
	return resp.UserID, resp.User, nil
}

// AppToken is used only to call apps.connections.open; it is never sent to
// any endpoint but Slack's own connection-open URL.
type AppToken string
