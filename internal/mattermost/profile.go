package mattermost

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxAvatarBytes = 10 * 1024 * 1024 // 10 MB
const maxDescriptionRunes = 128

// aieosIdentity is the subset of the aieos identity JSON document the
// profile sync needs.
type aieosIdentity struct {
	Identity struct {
		Names struct {
			First string `json:"first"`
		} `json:"names"`
		Bio       string `json:"bio"`
		AvatarURL string `json:"avatar_url"`
	} `json:"identity"`
}

// syncProfile is a best-effort startup sync of display name, description,
// and avatar from the configured aieos identity file. It never returns an
// error that should abort Listen — every failure is logged and swallowed.
func syncProfile(ctx context.Context, client *Client, aieosPath, botUserID string, logger zerolog.Logger) {
	raw, err := os.ReadFile(aieosPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", aieosPath).Msg("mattermost: profile sync skipped, cannot read identity file")
		return
	}
	var identity aieosIdentity
	if err := json.Unmarshal(raw, &identity); err != nil {
		logger.Warn().Err(err).Str("path", aieosPath).Msg("mattermost: profile sync skipped, invalid identity JSON")
		return
	}

	displayName := identity.Identity.Names.First
	description := truncateRunes(identity.Identity.Bio, maxDescriptionRunes)

	if displayName != "" || description != "" {
		if err := client.SyncProfile(ctx, botUserID, displayName, description); err != nil {
			logger.Warn().Err(err).Msg("mattermost: profile sync failed")
		} else {
			logger.Info().Str("display_name", displayName).Msg("mattermost: synced profile")
		}
	}

	data, contentType, ok := resolveAvatar(ctx, aieosPath, identity.Identity.AvatarURL, logger)
	if !ok {
		return
	}
	if err := client.UploadAvatar(ctx, botUserID, data, contentType); err != nil {
		logger.Warn().Err(err).Msg("mattermost: avatar sync failed")
	} else {
		logger.Info().Msg("mattermost: synced avatar")
	}
}

// resolveAvatar prefers a local avatar.png next to the identity file, then
// falls back to fetching avatarURL (query string stripped before extension
// detection, rejecting responses over maxAvatarBytes).
func resolveAvatar(ctx context.Context, aieosPath, avatarURL string, logger zerolog.Logger) (data []byte, contentType string, ok bool) {
	dir := filepath.Dir(aieosPath)
	local := filepath.Join(dir, "avatar.png")
	if b, err := os.ReadFile(local); err == nil {
		return b, "image/png", true
	}

	if avatarURL == "" {
		return nil, "", false
	}

	path := avatarURL
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	contentType = "image/jpeg"
	if strings.HasSuffix(path, ".png") {
		contentType = "image/png"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, avatarURL, nil)
	if err != nil {
		return nil, "", false
	}
	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		logger.Warn().Err(err).Msg("mattermost: avatar fetch failed")
		return nil, "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn().Int("status", resp.StatusCode).Msg("mattermost: avatar fetch returned error status")
		return nil, "", false
	}
	if resp.ContentLength > maxAvatarBytes {
		logger.Warn().Msg("mattermost: avatar too large, skipping")
		return nil, "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarBytes+1))
	if err != nil {
		logger.Warn().Err(err).Msg("mattermost: avatar fetch body failed")
		return nil, "", false
	}
	if len(body) > maxAvatarBytes {
		logger.Warn().Msg("mattermost: avatar too large, skipping")
		return nil, "", false
	}
	return body, contentType, true
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
