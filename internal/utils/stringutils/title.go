// Package stringutils derives display strings from user content.
package stringutils

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	urlRe      = regexp.MustCompile(`(?i)(https?://|www\.)\S+`)
	mdLinkRe   = regexp.MustCompile(`\[([^\]]*)\]\([^)]+\)`)
	emailRe    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	manySpaces = regexp.MustCompile(`\s+`)
)

const ellipsis = "..."

// GenerateTitle derives a conversation title from the opening message:
// links and noise stripped, truncated to maxLen at a word boundary. An
// empty result means the message had no usable text.
func GenerateTitle(content string, maxLen int) string {
	title := sanitize(content)
	if title == "" {
		return ""
	}
	return truncate(title, maxLen)
}

func sanitize(content string) string {
	content = mdLinkRe.ReplaceAllString(content, "$1")
	content = urlRe.ReplaceAllString(content, "")
	content = emailRe.ReplaceAllString(content, "")

	var b strings.Builder
	for _, r := range content {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) ||
			strings.ContainsRune(".,!?-'", r) {
			b.WriteRune(r)
		}
	}

	content = manySpaces.ReplaceAllString(b.String(), " ")
	return strings.TrimRight(strings.TrimSpace(content), " .,!?-'")
}

// truncate limits the title to maxLen characters. Slicing happens on rune
// boundaries so multi-byte text is never cut mid-character.
func truncate(title string, maxLen int) string {
	runes := []rune(title)
	if len(runes) <= maxLen {
		return title
	}
	limit := maxLen - len(ellipsis)
	if limit < 0 {
		limit = 0
	}
	cut := runes[:limit]
	// Break at a word boundary unless that would eat more than half the title.
	space := -1
	for i, r := range cut {
		if r == ' ' {
			space = i
		}
	}
	if space > limit/2 {
		cut = cut[:space]
	}
	return strings.TrimRight(string(cut), " ") + ellipsis
}
