package embedding

import (
	"regexp"
	"strings"
)

var (
	userMentionRe    = regexp.MustCompile(`<@\w+>`)
	channelMentionRe = regexp.MustCompile(`<#\w+\|([^>]+)>`)
	titledURLRe      = regexp.MustCompile(`<(https?://[^|>]+)\|([^>]+)>`)
	bareURLRe        = regexp.MustCompile(`<(https?://[^>]+)>`)
	codeBlockRe      = regexp.MustCompile("```[\\s\\S]*?```")
	inlineCodeRe     = regexp.MustCompile("`[^`]+`")
	whitespaceRe     = regexp.MustCompile(`\s+`)
)

// PrepareText normalises Slack markup before embedding: mention and URL
// syntax is flattened, code is collapsed to placeholders, whitespace is
// squashed. The stored message text is untouched; this shapes only what the
// model sees.
func PrepareText(text string) string {
	if text == "" {
		return ""
	}

	text = userMentionRe.ReplaceAllString(text, "@user")
	text = channelMentionRe.ReplaceAllString(text, "#$1")
	text = titledURLRe.ReplaceAllString(text, "$2 ($1)")
	text = bareURLRe.ReplaceAllString(text, "$1")
	text = codeBlockRe.ReplaceAllString(text, "[code block]")
	text = inlineCodeRe.ReplaceAllString(text, "[code]")
	text = whitespaceRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
