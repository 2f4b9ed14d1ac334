package webhook

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/chatmesh/internal/channel"
)

func testServer(t *testing.T, cfg Config) (*Server, *channel.Bus) {
	t.Helper()
	bus := channel.NewBus(8)
	s := NewServer(cfg, bus, nil, nil, zerolog.Nop())
	return s, bus
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestHandleLinear_NoSecretConfiguredAccepts(t *testing.T) {
	s, bus := testServer(t, Config{NotifyTarget: "C1"})
	body := []byte(`{"action":"update","data":{"title":"Fix bug","identifier":"ENG-1"}}`)

	resp := doRequest(t, s, http.MethodPost, "/webhook/linear", body, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	msg := <-bus.Messages()
	assert.Contains(t, msg.Content, "ENG-1")
}

func TestHandleLinear_MissingSignatureRejected(t *testing.T) {
	s, _ := testServer(t, Config{LinearSecret: "topsecret"})
	body := []byte(`{"action":"update"}`)

	resp := doRequest(t, s, http.MethodPost, "/webhook/linear", body, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleLinear_ValidSignatureAccepted(t *testing.T) {
	secret := "topsecret"
	s, bus := testServer(t, Config{LinearSecret: secret})
	body := []byte(`{"action":"update","data":{"title":"Fix bug","identifier":"ENG-1"}}`)
	sig := hmacHex([]byte(secret), body)

	resp := doRequest(t, s, http.MethodPost, "/webhook/linear", body, map[string]string{"linear-signature": sig})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	<-bus.Messages()
}

func TestHandleGenericVendor_UnknownVendorNotFound(t *testing.T) {
	s, _ := testServer(t, Config{})
	resp := doRequest(t, s, http.MethodPost, "/webhooks/notavendor", []byte(`{}`), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleGenericVendor_CustomSanitizesMention(t *testing.T) {
	s, bus := testServer(t, Config{NotifyTarget: "C1"})
	body := []byte(`{"message":"@channel urgent"}`)

	resp := doRequest(t, s, http.MethodPost, "/webhooks/custom", body, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	msg := <-bus.Messages()
	assert.Contains(t, msg.Content, "channel urgent")
	assert.NotContains(t, msg.Content, "@channel")
}

func TestHealthzReady(t *testing.T) {
	s, _ := testServer(t, Config{})
	resp := doRequest(t, s, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
