package slack

import (
	"regexp"
	"strings"
	"sync"

	"github.com/kyokomi/emoji/v2"
)

var (
	shortcodeRe  = regexp.MustCompile(`:([a-zA-Z0-9_+-]+):`)
	whitespaceRe = regexp.MustCompile(`\s{2,}`)

	codeMap = sync.OnceValue(emoji.CodeMap)
)

// Emojify replaces known :shortcodes: with unicode emoji, drops the ones it
// does not know (workspace custom emoji), collapses whitespace runs and trims.
func Emojify(text string) string {
	codes := codeMap()
	out := shortcodeRe.ReplaceAllStringFunc(text, func(code string) string {
		if e, ok := codes[code]; ok {
			return e
		}
		if e, ok := codes[strings.ToLower(code)]; ok {
			return e
		}
		return ""
	})
	out = whitespaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// StripMention removes the first <@botID> token and trims the result.
func StripMention(text, botID string) string {
	if botID != "" {
		text = strings.Replace(text, "<@"+botID+">", "", 1)
	}
	return strings.TrimSpace(text)
}
