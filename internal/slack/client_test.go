package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server, allowedChannel string) *SafeSlackClient {
	t.Helper()
	return &SafeSlackClient{
		api:            slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/")),
		allowedChannel: allowedChannel,
	}
}

func TestSafeSlackClient_PostMessage_RejectsDisallowedChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must never reach the server for a disallowed channel")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "C1")
	_, err := c.PostMessage(context.Background(), "C2", "hi", "", nil)
	require.Error(t, err)
}

func TestSafeSlackClient_PostMessage_AllowsConfiguredChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": "C1", "ts": "1234.5678"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "C1")
	ts, err := c.PostMessage(context.Background(), "C1", "hi", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "1234.5678", ts)
}

func TestSafeSlackClient_PostMessage_NoRestrictionWhenChannelUnset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": "C9", "ts": "1.1"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "")
	_, err := c.PostMessage(context.Background(), "C9", "hi", "", nil)
	require.NoError(t, err)
}

func TestSafeSlackClient_History_RejectsDisallowedChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must never reach the server for a disallowed channel")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "C1")
	_, err := c.History(context.Background(), "C2", "")
	require.Error(t, err)
}

func TestSafeSlackClient_AuthTest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "user_id": "UBOT", "user": "mybot"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "")
	userID, userName, err := c.AuthTest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "UBOT", userID)
	assert.Equal(t, "mybot", userName)
}

func TestSafeSlackClient_ListChannels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":       true,
			"channels": []map[string]any{{"id": "C1"}, {"id": "C2"}},
			"response_metadata": map[string]any{
				"next_cursor": "",
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "")
	channels, next, err := c.ListChannels(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "", next)
	require.Len(t, channels, 2)
	assert.Equal(t, "C1", channels[0].ID)
}
