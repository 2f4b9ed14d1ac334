package slack

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// escapeMrkdwn HTML-entity-escapes the three characters Slack's mrkdwn
// renderer treats specially. It must never be applied to a URL — that
// would corrupt query strings.
func escapeMrkdwn(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// DraftIssueBlocks builds the confirm/edit/cancel Block Kit message shown
// when the agent proposes creating an issue from conversation context.
func DraftIssueBlocks(title, description string) []slack.Block {
	text := fmt.Sprintf("*Draft Issue*\n*Title:* %s\n*Description:* %s",
		escapeMrkdwn(title), escapeMrkdwn(description))

	section := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)

	confirm := slack.NewButtonBlockElement("confirm_issue", title, slack.NewTextBlockObject(slack.PlainTextType, "Confirm", false, false))
	confirm.Style = slack.StylePrimary

	edit := slack.NewButtonBlockElement("edit_issue", title, slack.NewTextBlockObject(slack.PlainTextType, "Edit", false, false))

	cancel := slack.NewButtonBlockElement("cancel_issue", title, slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false))
	cancel.Style = slack.StyleDanger

	actions := slack.NewActionBlock("draft_issue_actions", confirm, edit, cancel)

	return []slack.Block{section, actions}
}

// IssueConfirmationBlocks builds the post-creation confirmation message
// linking to the created issue. The URL's '|' must be percent-encoded to
// prevent display-text injection into Slack's <url|text> link syntax; the
// title is HTML-entity-escaped, but the URL itself never is.
func IssueConfirmationBlocks(title, issueURL string) []slack.Block {
	safeURL := strings.ReplaceAll(issueURL, "|", "%7C")
	text := fmt.Sprintf(":white_check_mark: *Issue created:* <%s|%s>", safeURL, escapeMrkdwn(title))
	section := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
	return []slack.Block{section}
}

// editIssueModal builds the modal opened for action_id == "edit_issue".
// private_metadata carries "<channel>:<thread_ts>" so the view_submission
// handler can recover routing without a server-side session store.
func editIssueModal(channel, threadTS, title, description string) slack.ModalViewRequest {
	titleInput := slack.NewInputBlock("title_block",
		slack.NewTextBlockObject(slack.PlainTextType, "Title", false, false),
		nil,
		slack.NewPlainTextInputBlockElement(nil, "title_input"))
	titleInput.Element.(*slack.PlainTextInputBlockElement).InitialValue = title

	descInput := slack.NewInputBlock("description_block",
		slack.NewTextBlockObject(slack.PlainTextType, "Description", false, false),
		nil,
		slack.NewPlainTextInputBlockElement(nil, "description_input"))
	descElem := descInput.Element.(*slack.PlainTextInputBlockElement)
	descElem.Multiline = true
	descElem.InitialValue = description

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		Title:           slack.NewTextBlockObject(slack.PlainTextType, "Edit Issue", false, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Save", false, false),
		Close:           slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
		CallbackID:      "edit_issue_modal",
		PrivateMetadata: channel + ":" + threadTS,
		Blocks:          slack.Blocks{BlockSet: []slack.Block{titleInput, descInput}},
	}
}

// sanitizeBlockActionValue strips '[' and ']' from a block-action button
// value before it is embedded into a synthetic ChannelMessage, preventing
// tag injection into the content the agent will see.
func sanitizeBlockActionValue(v string) string {
	v = strings.ReplaceAll(v, "[", "")
	v = strings.ReplaceAll(v, "]", "")
	return v
}
