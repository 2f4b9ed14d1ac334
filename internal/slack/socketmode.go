package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ConnState is the Socket Mode connection's lifecycle state.
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
	heartbeatTimeout  = 60 * time.Second
	ackBudget         = 3 * time.Second
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	stableConnWindow  = 30 * time.Second
)

// envelope is a Socket Mode frame.
type envelope struct {
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// ack is the minimal reply Slack expects within ackBudget of an envelope
// arriving.
type ack struct {
	EnvelopeID string `json:"envelope_id"`
}

// openConnectionsURL fetches a one-shot Socket Mode WSS URL via
// apps.connections.open, called with the app-level token. slack-go's REST
// client does not expose this endpoint, so it is a direct HTTP call —
// matching the original implementation's transport exactly.
func openConnectionsURL(ctx context.Context, httpClient *http.Client, appToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://slack.com/api/apps.connections.open", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+appToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("apps.connections.open: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("apps.connections.open: reading response: %w", err)
	}

	var parsed struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("apps.connections.open: response is not valid JSON: %w", err)
	}
	if !parsed.OK {
		if parsed.Error == "" {
			parsed.Error = "unknown"
		}
		return "", fmt.Errorf("apps.connections.open failed: %s", parsed.Error)
	}
	if parsed.URL == "" {
		return "", fmt.Errorf("apps.connections.open: response has no url")
	}

	if err := validateWSSURL(parsed.URL); err != nil {
		return "", err
	}
	return parsed.URL, nil
}

// validateWSSURL rejects anything but a wss:// URL on slack.com or a proper
// *.slack.com subdomain. A naive strings.HasSuffix(host, "slack.com") check
// would wrongly accept a lookalike host like "evil-slack.com"; checking for
// an exact match or a dot-separated ".slack.com" suffix rejects it.
func validateWSSURL(rawURL string) error {
	if !strings.HasPrefix(rawURL, "wss://") {
		scheme := strings.SplitN(rawURL, "://", 2)[0]
		return fmt.Errorf("slack: websocket url must use wss:// scheme, got: %s", scheme)
	}
	rest := strings.TrimPrefix(rawURL, "wss://")
	hostPort := strings.SplitN(rest, "/", 2)[0]
	host := strings.SplitN(hostPort, ":", 2)[0]

	if host != "slack.com" && !strings.HasSuffix(host, ".slack.com") {
		return fmt.Errorf("slack: websocket url host must be slack.com or a *.slack.com subdomain, got: %s", host)
	}
	return nil
}

// Conn manages one Socket Mode session's state machine: connect, heartbeat,
// ack, dispatch, reconnect with exponential backoff.
type Conn struct {
	appToken   string
	httpClient *http.Client
	dispatch   func(ctx context.Context, env envelope)
	logger     zerolog.Logger
	onState    func(ConnState)

	mu    sync.Mutex
	state ConnState
}

// NewConn creates a Socket Mode connection manager. dispatch is invoked for
// every non-control envelope after it has been acked. onState, if non-nil,
// is called on every state transition (used to export connection-state
// metrics).
func NewConn(appToken string, httpClient *http.Client, dispatch func(ctx context.Context, env envelope), logger zerolog.Logger, onState func(ConnState)) *Conn {
	return &Conn{
		appToken:   appToken,
		httpClient: httpClient,
		dispatch:   dispatch,
		logger:     logger.With().Str("component", "slack.socketmode").Logger(),
		onState:    onState,
		state:      Disconnected,
	}
}

func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.onState != nil {
		c.onState(s)
	}
}

// State returns the connection's current state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run drives the connect/run/reconnect loop until ctx is cancelled. It
// never returns except on cancellation — every connection error is
// recovered by reconnecting with backoff.
func (c *Conn) Run(ctx context.Context) error {
	backoff := backoffInitial
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		connectedAt := time.Time{}
		err := c.runOnce(ctx, &connectedAt)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !connectedAt.IsZero() && time.Since(connectedAt) > stableConnWindow {
			backoff = backoffInitial
		}

		c.logger.Warn().Err(err).Dur("backoff", backoff).Msg("socket mode connection lost, reconnecting")
		c.setState(Failed)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// runOnce performs one full Disconnected -> Opening -> Authenticated ->
// Running -> (Closing|Failed) cycle, returning the error that ended it.
func (c *Conn) runOnce(ctx context.Context, connectedAt *time.Time) error {
	c.setState(Opening)

	wssURL, err := openConnectionsURL(ctx, c.httpClient, c.appToken)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wssURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(heartbeatTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(heartbeatTimeout))
		return nil
	})

	// Wait for the initial "hello" frame before marking Authenticated.
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("reading hello frame: %w", err)
	}
	var first envelope
	if err := json.Unmarshal(raw, &first); err != nil {
		return fmt.Errorf("parsing hello frame: %w", err)
	}
	c.setState(Authenticated)
	c.setState(Running)
	*connectedAt = time.Now()

	if first.Type != "hello" {
		if err := c.handleFrame(ctx, conn, first); err != nil {
			return err
		}
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(heartbeatTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.logger.Warn().Err(err).Msg("dropping unparseable socket mode frame")
			continue
		}

		if err := c.handleFrame(ctx, conn, env); err != nil {
			return err
		}
	}
}

// handleFrame acks (when applicable) before any dispatch work, to reliably
// stay inside the 3 s ack budget even when the downstream queue backs up.
func (c *Conn) handleFrame(ctx context.Context, conn *websocket.Conn, env envelope) error {
	switch env.Type {
	case "hello":
		return nil
	case "disconnect":
		return fmt.Errorf("server requested disconnect: %s", env.Reason)
	}

	if env.EnvelopeID != "" {
		ackCtx, cancel := context.WithTimeout(ctx, ackBudget)
		defer cancel()
		if err := c.sendAck(ackCtx, conn, env.EnvelopeID); err != nil {
			return fmt.Errorf("sending ack: %w", err)
		}
	}

	if c.dispatch != nil {
		c.dispatch(ctx, env)
	}
	return nil
}

func (c *Conn) sendAck(_ context.Context, conn *websocket.Conn, envelopeID string) error {
	return conn.WriteJSON(ack{EnvelopeID: envelopeID})
}
