package mattermost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncProfile_SendsDisplayNameAndTruncatedBio(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/api/v4/bots/"):
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	identityPath := filepath.Join(dir, "identity.json")
	longBio := strings.Repeat("a", 200)
	require.NoError(t, os.WriteFile(identityPath, []byte(`{"identity":{"names":{"first":"Ada"},"bio":"`+longBio+`"}}`), 0o600))

	client := NewClient(srv.URL, "bot-token", "")
	syncProfile(context.Background(), client, identityPath, "UBOT", zerolog.Nop())

	require.NotNil(t, gotBody)
	assert.Equal(t, "Ada", gotBody["display_name"])
	assert.Len(t, gotBody["description"], maxDescriptionRunes)
}

func TestSyncProfile_MissingIdentityFileIsNonFatal(t *testing.T) {
	client := NewClient("http://unused.invalid", "bot-token", "")
	assert.NotPanics(t, func() {
		syncProfile(context.Background(), client, "/does/not/exist.json", "UBOT", zerolog.Nop())
	})
}

func TestResolveAvatar_PrefersLocalFileOverURL(t *testing.T) {
	dir := t.TempDir()
	identityPath := filepath.Join(dir, "identity.json")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "avatar.png"), []byte("local-bytes"), 0o600))

	data, contentType, ok := resolveAvatar(context.Background(), identityPath, "https://example.com/remote.jpg", zerolog.Nop())
	require.True(t, ok)
	assert.Equal(t, "local-bytes", string(data))
	assert.Equal(t, "image/png", contentType)
}

func TestResolveAvatar_FallsBackToURLWithQueryStringStripped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	identityPath := filepath.Join(dir, "identity.json")

	data, contentType, ok := resolveAvatar(context.Background(), identityPath, srv.URL+"/avatar.png?size=large", zerolog.Nop())
	require.True(t, ok)
	assert.Equal(t, "remote-bytes", string(data))
	assert.Equal(t, "image/png", contentType)
}

func TestResolveAvatar_RejectsOversizedResponse(t *testing.T) {
	oversized := make([]byte, maxAvatarBytes+1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(oversized)
	}))
	defer srv.Close()

	dir := t.TempDir()
	identityPath := filepath.Join(dir, "identity.json")

	_, _, ok := resolveAvatar(context.Background(), identityPath, srv.URL+"/avatar.jpg", zerolog.Nop())
	assert.False(t, ok)
}

func TestResolveAvatar_NoLocalFileNoURL(t *testing.T) {
	dir := t.TempDir()
	identityPath := filepath.Join(dir, "identity.json")

	_, _, ok := resolveAvatar(context.Background(), identityPath, "", zerolog.Nop())
	assert.False(t, ok)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "hello", truncateRunes("hello", 10))
	assert.Equal(t, "he", truncateRunes("hello", 2))
}
