// Package mention locates @bot-username spans in message text and
// normalizes content by stripping them, matching the word-boundary rules
// the Mattermost adapter relies on for mention-gated continuation (the Slack
// adapter does not use this package).
package mention

import (
	"strings"
)

// FindBotMentionSpans returns the non-overlapping byte-range spans where
// "@botUsername" appears at a valid word boundary: the character following
// the match must not be alphanumeric, '_', '-', or '.'. Matching is
// ASCII-case-insensitive only (spec.md's word-boundary rule is defined over
// ASCII usernames) — comparison is done byte-by-byte directly against text
// rather than via strings.ToLower, since Unicode case-folding can change a
// rune's UTF-8 byte length (e.g. "İ" U+0130 folds to a 1-byte "i") and would
// desynchronize any index found in a folded copy from the same offset in
// the original text. A span is [start, end) into text.
func FindBotMentionSpans(text, botUsername string) [][2]int {
	if botUsername == "" {
		return nil
	}
	needle := "@" + botUsername

	var spans [][2]int
	searchFrom := 0
	for searchFrom <= len(text)-len(needle) {
		idx := asciiIndexFold(text[searchFrom:], needle)
		if idx < 0 {
			break
		}
		start := searchFrom + idx
		end := start + len(needle)

		if end >= len(text) || !isUsernameByte(text[end]) {
			spans = append(spans, [2]int{start, end})
			searchFrom = end
		} else {
			searchFrom = start + 1
		}
	}
	return spans
}

// asciiIndexFold returns the byte index of the first ASCII-case-insensitive
// occurrence of needle in haystack, or -1. Non-ASCII bytes are compared
// verbatim (never folded), so byte offsets always match the input exactly.
func asciiIndexFold(haystack, needle string) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i <= len(haystack)-len(needle); i++ {
		if asciiEqualFold(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func asciiEqualFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if asciiLower(a[i]) != asciiLower(b[i]) {
			return false
		}
	}
	return true
}

func asciiLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func isUsernameByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '_', b == '-', b == '.':
		return true
	}
	return false
}

// NormalizeContent implements the spec's normalize_content contract:
//  1. If no text mention is found AND botUserID is not present in
//     metadataMentions, returns ("", false) — the caller must treat this as
//     None and must not touch the activity tracker.
//  2. Otherwise every text-mention span is replaced with a single space, the
//     result trimmed; if the trimmed result is empty, returns ("", false)
//     even though a mention was found — a bare "@bot" must not be treated as
//     content.
func NormalizeContent(text, botUserID, botUsername string, metadataMentions []string) (string, bool) {
	spans := FindBotMentionSpans(text, botUsername)
	metadataMentioned := containsString(metadataMentions, botUserID)

	if len(spans) == 0 && !metadataMentioned {
		return "", false
	}

	stripped := stripSpans(text, spans)
	trimmed := strings.TrimSpace(stripped)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}

func stripSpans(text string, spans [][2]int) string {
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, span := range spans {
		b.WriteString(text[prev:span[0]])
		b.WriteByte(' ')
		prev = span[1]
	}
	b.WriteString(text[prev:])
	return b.String()
}

func containsString(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
