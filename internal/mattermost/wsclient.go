package mattermost

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ConnState mirrors the Slack adapter's connection state machine shape,
// kept as an independent type per adapter so each is testable in isolation.
type ConnState int

const (
	Disconnected ConnState = iota
	Opening
	Authenticated
	Running
	Closing
	Failed
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Opening:
		return "opening"
	case Authenticated:
		return "authenticated"
	case Running:
		return "running"
	case Closing:
		return "closing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	wsMaxReconnect   = 10
	wsBaseBackoff    = 1 * time.Second
	wsMaxBackoff     = 60 * time.Second
	wsBackoffShiftCap = 6
	authFrameBudget  = 5
)

// websocketURL derives the WS URL from a base REST URL by scheme rewrite,
// appending the Mattermost websocket endpoint path.
func websocketURL(baseURL string) string {
	trimmed := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(trimmed, "https://"):
		return "wss://" + strings.TrimPrefix(trimmed, "https://") + "/api/v4/websocket"
	case strings.HasPrefix(trimmed, "http://"):
		return "ws://" + strings.TrimPrefix(trimmed, "http://") + "/api/v4/websocket"
	default:
		return "wss://" + trimmed + "/api/v4/websocket"
	}
}

// wsPostedEvent is the outer envelope of a Mattermost WebSocket event.
type wsPostedEvent struct {
	Event     string `json:"event"`
	Data      struct {
		Post string `json:"post"`
	} `json:"data"`
	Broadcast struct {
		ChannelID string `json:"channel_id"`
	} `json:"broadcast"`
}

// Conn is the Mattermost WebSocket transport: connect, authenticate via
// authentication_challenge, then dispatch "posted" events until the
// connection fails, reconnecting with exponential backoff up to
// wsMaxReconnect consecutive failures.
type Conn struct {
	wsURL    string
	botToken string
	dispatch func(ctx context.Context, post mattermostPost, channelID string)
	logger   zerolog.Logger
	onState  func(ConnState)
}

// NewConn builds a Conn. dispatch is invoked for each successfully parsed
// posted event with lastCreateAt implicitly 0 (WS delivery is at-most-once
// per session, so no dedup watermark is needed on this path).
func NewConn(baseURL, botToken string, dispatch func(ctx context.Context, post mattermostPost, channelID string), logger zerolog.Logger, onState func(ConnState)) *Conn {
	return &Conn{
		wsURL:    websocketURL(baseURL),
		botToken: botToken,
		dispatch: dispatch,
		logger:   logger,
		onState:  onState,
	}
}

func (c *Conn) setState(s ConnState) {
	if c.onState != nil {
		c.onState(s)
	}
}

// Run connects and processes events until ctx is cancelled or
// wsMaxReconnect consecutive connection failures occur, in which case it
// returns the last error so the caller can fall back to REST polling.
func (c *Conn) Run(ctx context.Context) error {
	var attempts int
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		authenticated, err := c.runOnce(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if authenticated {
			attempts = 0
		}
		attempts++
		c.setState(Failed)
		if attempts >= wsMaxReconnect {
			return fmt.Errorf("mattermost: websocket failed after %d attempts: %w", attempts, err)
		}

		shift := attempts - 1
		if shift > wsBackoffShiftCap {
			shift = wsBackoffShiftCap
		}
		delay := wsBaseBackoff * time.Duration(1<<shift)
		if delay > wsMaxBackoff {
			delay = wsMaxBackoff
		}
		c.logger.Warn().Err(err).Int("attempt", attempts).Dur("delay", delay).Msg("mattermost websocket error, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// runOnce runs a single connection; the bool reports whether it got past
// authentication, so Run can reset its consecutive-failure count.
func (c *Conn) runOnce(ctx context.Context) (bool, error) {
	c.setState(Opening)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("mattermost: dial failed: %w", err)
	}
	defer conn.Close()

	if err := c.authenticate(conn); err != nil {
		return false, err
	}
	c.setState(Authenticated)
	c.setState(Running)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			return true, fmt.Errorf("mattermost: read error: %w", err)
		}
		if msgType == websocket.PingMessage {
			_ = conn.WriteMessage(websocket.PongMessage, nil)
			continue
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.handleFrame(ctx, data)
	}
}

func (c *Conn) authenticate(conn *websocket.Conn) error {
	auth := map[string]any{
		"seq":    1,
		"action": "authentication_challenge",
		"data":   map[string]string{"token": c.botToken},
	}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("mattermost: sending authentication_challenge: %w", err)
	}

	for i := 0; i < authFrameBudget; i++ {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("mattermost: connection closed during auth: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var v struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			continue // non-JSON or unrelated frame during auth: keep reading.
		}
		switch v.Status {
		case "OK":
			return nil
		case "":
			continue // hello event or similar, no status field.
		default:
			return fmt.Errorf("mattermost: websocket auth rejected, status=%s", v.Status)
		}
	}
	return fmt.Errorf("mattermost: websocket authentication failed: no OK received in %d frames", authFrameBudget)
}

// handleFrame parses a "posted" event, double-decoding the inner post JSON
// string, and forwards it to dispatch. Malformed inner JSON is a
// single-message drop, never a connection reset.
func (c *Conn) handleFrame(ctx context.Context, data []byte) {
	var env wsPostedEvent
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn().Err(err).Msg("protocol violation: malformed websocket event envelope")
		return
	}
	if env.Event != "posted" {
		return
	}
	if env.Data.Post == "" {
		return
	}

	var post mattermostPost
	if err := json.Unmarshal([]byte(env.Data.Post), &post); err != nil {
		c.logger.Warn().Err(err).Msg("mattermost: failed to parse double-encoded post body")
		return
	}

	channelID := env.Broadcast.ChannelID
	if channelID == "" {
		channelID = post.ChannelID
	}
	if channelID == "" {
		return
	}

	c.dispatch(ctx, post, channelID)
}
