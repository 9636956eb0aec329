package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	htmlTagRe  = regexp.MustCompile(`<(?:[a-zA-Z][a-zA-Z0-9]*|/[a-zA-Z][a-zA-Z0-9]*)(?:\s[^>]*)?/?>`)
	lineBreaks = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>`)
	spacesRe   = regexp.MustCompile(`[ \t]+`)
	emojiRe    = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}]`)
	punctRe    = regexp.MustCompile(`[^\p{L}\p{N}\s.,!?'"-]`)
	wsRe       = regexp.MustCompile(`\s+`)
)

// NormalizeText returns plain text with line structure preserved. Captions
// forwarded as HTML are flattened so the line-oriented rules still apply.
func NormalizeText(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	if htmlTagRe.MatchString(text) {
		if plain, ok := htmlToText(text); ok {
			text = plain
		}
	}

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spacesRe.ReplaceAllString(l, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func htmlToText(markup string) (string, bool) {
	markup = lineBreaks.ReplaceAllStringFunc(markup, func(tag string) string {
		return tag + "\n"
	})
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", false
	}
	return doc.Text(), true
}

// FormatText squashes text to a single line without emoji or decorative punctuation.
func FormatText(text string) string {
	if text == "" {
		return ""
	}
	text = wsRe.ReplaceAllString(text, " ")
	text = emojiRe.ReplaceAllString(text, "")
	text = punctRe.ReplaceAllString(text, "")
	return strings.TrimSpace(wsRe.ReplaceAllString(text, " "))
}
