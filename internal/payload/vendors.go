package payload

import (
	"encoding/json"
	"fmt"
)

// fieldMax bounds an individual rendered field before composition into the
// final message, well under MaxMessageRunes even with several fields.
const fieldMax = 2000

// RenderLinear transforms a Linear webhook body into a markdown message.
func RenderLinear(body []byte) (string, error) {
	var evt struct {
		Action string `json:"action"`
		Type   string `json:"type"`
		Data   struct {
			Title       string `json:"title"`
			Identifier  string `json:"identifier"`
			Description string `json:"description"`
			URL         string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return "", fmt.Errorf("linear: decode payload: %w", err)
	}

	title := SanitizeField(evt.Data.Title, fieldMax)
	identifier := SanitizeField(evt.Data.Identifier, 64)
	action := SanitizeField(evt.Action, 32)
	if action == "" {
		action = SanitizeField(evt.Type, 32)
	}

	msg := fmt.Sprintf("Linear %s: %s %s", action, identifier, title)
	if evt.Data.URL != "" {
		if safe, ok := SafeHTTPURL(evt.Data.URL); ok {
			msg += " " + safe
		}
	}
	return ClampMessage(msg), nil
}

// RenderGitHub transforms a GitHub webhook body into a markdown message.
func RenderGitHub(eventType string, body []byte) (string, error) {
	var evt struct {
		Action     string `json:"action"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
		PullRequest struct {
			Title   string `json:"title"`
			HTMLURL string `json:"html_url"`
		} `json:"pull_request"`
		Issue struct {
			Title   string `json:"title"`
			HTMLURL string `json:"html_url"`
		} `json:"issue"`
		HeadCommit struct {
			Message string `json:"message"`
			URL     string `json:"url"`
		} `json:"head_commit"`
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return "", fmt.Errorf("github: decode payload: %w", err)
	}

	repo := SanitizeField(evt.Repository.FullName, 200)
	action := SanitizeField(evt.Action, 32)

	var subject, url string
	switch eventType {
	case "pull_request":
		subject = SanitizeField(evt.PullRequest.Title, fieldMax)
		url = evt.PullRequest.HTMLURL
	case "issues":
		subject = SanitizeField(evt.Issue.Title, fieldMax)
		url = evt.Issue.HTMLURL
	case "push":
		subject = SanitizeField(evt.HeadCommit.Message, fieldMax)
		url = evt.HeadCommit.URL
	default:
		subject = SanitizeField(eventType, 64)
	}

	msg := fmt.Sprintf("GitHub %s %s on %s: %s", eventType, action, repo, subject)
	if safe, ok := SafeHTTPURL(url); ok {
		msg += " " + safe
	}
	return ClampMessage(msg), nil
}

// RenderVercel transforms a Vercel deployment webhook body into a markdown
// message. Vercel frequently reports a bare hostname (no scheme) for the
// deployment URL, which SafeHTTPURL normalizes to https://.
func RenderVercel(body []byte) (string, error) {
	var evt struct {
		Type    string `json:"type"`
		Payload struct {
			Deployment struct {
				URL  string `json:"url"`
				Meta struct {
					GithubCommitMessage string `json:"githubCommitMessage"`
				} `json:"meta"`
			} `json:"deployment"`
			Target string `json:"target"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return "", fmt.Errorf("vercel: decode payload: %w", err)
	}

	commitMsg := SanitizeField(evt.Payload.Deployment.Meta.GithubCommitMessage, fieldMax)
	status := SanitizeField(evt.Type, 64)

	msg := fmt.Sprintf("Vercel %s", status)
	if commitMsg != "" {
		msg += ": " + commitMsg
	}
	if safe, ok := SafeHTTPURL(evt.Payload.Deployment.URL); ok {
		msg += " " + safe
	}
	return ClampMessage(msg), nil
}

// RenderSupabase transforms a Supabase database webhook body into a markdown
// message.
func RenderSupabase(body []byte) (string, error) {
	var evt struct {
		Type   string         `json:"type"`
		Table  string         `json:"table"`
		Schema string         `json:"schema"`
		Record map[string]any `json:"record"`
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return "", fmt.Errorf("supabase: decode payload: %w", err)
	}

	table := SanitizeField(evt.Table, 200)
	op := SanitizeField(evt.Type, 32)
	msg := fmt.Sprintf("Supabase %s on %s.%s", op, SanitizeField(evt.Schema, 64), table)
	return ClampMessage(msg), nil
}

// RenderUpstash transforms an Upstash redis/qstash webhook body into a
// markdown message.
func RenderUpstash(body []byte) (string, error) {
	var evt struct {
		EventType string `json:"eventType"`
		Topic     string `json:"topic"`
		URL       string `json:"url"`
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return "", fmt.Errorf("upstash: decode payload: %w", err)
	}

	msg := fmt.Sprintf("Upstash %s", SanitizeField(evt.EventType, 64))
	if evt.Topic != "" {
		msg += " topic=" + SanitizeField(evt.Topic, 200)
	}
	if safe, ok := SafeHTTPURL(evt.URL); ok {
		msg += " " + safe
	}
	return ClampMessage(msg), nil
}

// RenderCustom transforms an arbitrary custom-webhook body, which is
// expected to carry a free-text "message" field, into sanitized markdown.
// Anything else is rendered as an escaped raw-JSON fallback.
func RenderCustom(body []byte) (string, error) {
	var evt struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &evt); err == nil && evt.Message != "" {
		return ClampMessage(SanitizeField(evt.Message, MaxMessageRunes)), nil
	}

	return fmt.Sprintf("```\n%s\n```", EscapeJSONCodeFence(string(body))), nil
}
