package htmlutil

import (
	"strings"
	"unicode/utf8"

	"github.com/k3a/html2text"
)

// maxErrorText bounds how much of an upstream error page ends up in a banner.
const maxErrorText = 300

// ToText converts HTML to plain text using a proper HTML parser.
// Handles entities, strips tags, and preserves readable text.
func ToText(s string) string {
	return html2text.HTML2Text(s)
}

// LooksLikeHTML reports whether a response body is an HTML document rather
// than JSON or plain text. Proxies in front of the forecast services answer
// gateway errors with HTML pages.
func LooksLikeHTML(body []byte) bool {
	s := strings.ToLower(strings.TrimSpace(string(body)))
	return strings.HasPrefix(s, "<!doctype html") || strings.HasPrefix(s, "<html") ||
		strings.Contains(s, "<body")
}

// ErrorText turns an upstream error body into a single readable line.
func ErrorText(body []byte) string {
	s := string(body)
	if LooksLikeHTML(body) {
		s = ToText(s)
	}
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxErrorText {
		n := maxErrorText
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = strings.TrimSpace(s[:n]) + "…"
	}
	return s
}
