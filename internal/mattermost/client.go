// Package mattermost implements the Mattermost WebSocket adapter: a
// hand-rolled WS transport over gorilla/websocket mirroring the Slack
// adapter's state machine shape, REST calls via net/http with the shared
// connection-pooled client, mention-gated continuation via the Thread
// Activity Tracker, typing indicators, and best-effort profile sync.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/chatmesh/internal/errors"
	"github.com/p-blackswan/chatmesh/internal/retry"
)

// newHTTPClient builds the shared REST client: 10 s overall timeout, 5 s
// connect timeout, redirects disabled.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Client wraps the Mattermost REST API v4 surface the adapter needs.
type Client struct {
	baseURL    string
	botToken   string
	adminToken string // falls back to botToken when unset
	http       *http.Client
	logger     zerolog.Logger
}

// ClientOption configures optional Client behavior.
type ClientOption func(*Client)

// WithLogger attaches a logger used to report retry attempts. Unset, the
// client retries silently (its zero value is zerolog.Nop()).
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a Client for baseURL (trailing slash trimmed).
func NewClient(baseURL, botToken, adminToken string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		botToken:   botToken,
		adminToken: adminToken,
		http:       newHTTPClient(),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryConfig returns the default retry policy instrumented to log each
// backoff attempt against the named operation.
func (c *Client) retryConfig(operation string) retry.Config {
	cfg := retry.DefaultConfig()
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Debug().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("mattermost: retrying after transient failure")
	}
	return cfg
}

// profileToken returns the admin token when configured (required for
// PUT /api/v4/bots/<id>, which bot tokens lack permission for), falling back
// to the bot token otherwise (will 403).
func (c *Client) profileToken() string {
	if strings.TrimSpace(c.adminToken) != "" {
		return c.adminToken
	}
	return c.botToken
}

func (c *Client) do(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("mattermost: encoding request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

// BotIdentity fetches the bot's own user id and username via GET /users/me.
// Retried with backoff: it runs once at adapter startup and a transient
// failure here would otherwise take the whole adapter down with it.
func (c *Client) BotIdentity(ctx context.Context) (userID, username string, err error) {
	var v struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	err = retry.Do(ctx, c.retryConfig("bot identity"), func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodGet, "/api/v4/users/me", c.botToken, nil)
		if err != nil {
			return fmt.Errorf("mattermost: bot identity request failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return perrors.NewAPIError("mattermost", resp.StatusCode, "bot identity")
		}
		return json.NewDecoder(resp.Body).Decode(&v)
	})
	if err != nil {
		return "", "", err
	}
	return v.ID, v.Username, nil
}

// PostMessage creates a post in channelID, threaded under rootID when set.
// Transient failures (429/5xx, network errors) are retried with backoff —
// an outbound post is worth a few extra seconds of latency to avoid
// silently dropping the agent's reply.
func (c *Client) PostMessage(ctx context.Context, channelID, rootID, text string) error {
	body := map[string]string{"channel_id": channelID, "message": text}
	if rootID != "" {
		body["root_id"] = rootID
	}
	return retry.Do(ctx, c.retryConfig("post message"), func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodPost, "/api/v4/posts", c.botToken, body)
		if err != nil {
			return fmt.Errorf("mattermost: post request failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return perrors.NewAPIError("mattermost", resp.StatusCode, "post failed")
		}
		return nil
	})
}

// Typing fires a single typing indicator event for channelID (and, when
// set, the thread rooted at parentID). Mattermost expires typing events
// after ~6 s; the caller re-fires on an interval.
func (c *Client) Typing(ctx context.Context, channelID, parentID string) error {
	body := map[string]string{"channel_id": channelID}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/v4/users/me/typing", c.botToken, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mattermost: typing indicator failed with status %d", resp.StatusCode)
	}
	return nil
}

// FetchPosts returns posts in channelID created after sinceMillis (Unix
// milliseconds), sorted oldest first. Transient failures are retried since
// the polling fallback already runs on its own interval and a single
// dropped poll would otherwise just silently widen the watermark gap.
func (c *Client) FetchPosts(ctx context.Context, channelID string, sinceMillis int64) ([]mattermostPost, error) {
	path := fmt.Sprintf("/api/v4/channels/%s/posts?since=%s", url.PathEscape(channelID), strconv.FormatInt(sinceMillis, 10))

	var page struct {
		Posts map[string]mattermostPost `json:"posts"`
		Order []string                  `json:"order"`
	}
	err := retry.Do(ctx, c.retryConfig("fetch posts"), func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodGet, path, c.botToken, nil)
		if err != nil {
			return fmt.Errorf("mattermost: fetching posts: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return perrors.NewAPIError("mattermost", resp.StatusCode, "fetching posts")
		}
		return json.NewDecoder(resp.Body).Decode(&page)
	})
	if err != nil {
		return nil, err
	}

	posts := make([]mattermostPost, 0, len(page.Posts))
	for _, p := range page.Posts {
		posts = append(posts, p)
	}
	sortPostsByCreateAt(posts)
	return posts, nil
}

// SyncProfile PUTs display name and description for the bot account.
func (c *Client) SyncProfile(ctx context.Context, botUserID, displayName, description string) error {
	body := map[string]string{"display_name": displayName, "description": description}
	resp, err := c.do(ctx, http.MethodPut, "/api/v4/bots/"+url.PathEscape(botUserID), c.profileToken(), body)
	if err != nil {
		return fmt.Errorf("mattermost: profile sync request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("mattermost: profile sync forbidden (token lacks manage_bots): %w", errForbidden)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mattermost: profile sync failed with status %d", resp.StatusCode)
	}
	return nil
}

// UploadAvatar POSTs avatar image bytes for the bot account as multipart form data.
func (c *Client) UploadAvatar(ctx context.Context, botUserID string, data []byte, contentType string) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", "avatar.png")
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v4/users/"+url.PathEscape(botUserID)+"/image", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.profileToken())
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mattermost: avatar upload request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("mattermost: avatar upload forbidden (insufficient permissions): %w", errForbidden)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mattermost: avatar upload failed with status %d", resp.StatusCode)
	}
	return nil
}

// HealthCheck reports whether the bot token can still authenticate.
func (c *Client) HealthCheck(ctx context.Context) bool {
	resp, err := c.do(ctx, http.MethodGet, "/api/v4/users/me", c.botToken, nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

var errForbidden = fmt.Errorf("forbidden")

func sortPostsByCreateAt(posts []mattermostPost) {
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreateAt < posts[j].CreateAt })
}
