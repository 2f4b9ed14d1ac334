package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/chatmesh/internal/channel"
	"github.com/p-blackswan/chatmesh/internal/timerpool"
	"github.com/p-blackswan/chatmesh/internal/wakesleep"
)

func TestPollingLoop_ResolveChannels_UsesFixedChannelWhenConfigured(t *testing.T) {
	p := &pollingLoop{channelID: "C1", logger: zerolog.Nop()}
	channels, err := p.resolveChannels(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"C1"}, channels)
}

func TestPollingLoop_PollChannel_ForwardsNewMessagesAndAdvancesWatermark(t *testing.T) {
	var callCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		if callCount == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"messages": []map[string]any{
					{"type": "message", "user": "U1", "text": "hi", "ts": "1000.0001"},
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "messages": []map[string]any{}})
	}))
	defer srv.Close()

	client := &SafeSlackClient{api: slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/"))}
	bus := channel.NewBus(8)
	d := &dispatcher{
		botUserID:    "UBOT",
		allowedUsers: []string{"*"},
		wake:         wakesleep.New(10),
		timers:       timerpool.New(10, time.Hour),
		bus:          bus,
		logger:       zerolog.Nop(),
	}
	p := &pollingLoop{client: client, dispatch: d, logger: zerolog.Nop()}

	oldest := make(map[string]string)
	p.pollChannel(context.Background(), "C1", oldest)

	msg := <-bus.Messages()
	require.Equal(t, "hi", msg.Content)
	require.Equal(t, "1000.0001", oldest["C1"])
}
