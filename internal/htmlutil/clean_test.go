package htmlutil

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestLooksLikeHTML(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"<!DOCTYPE html><html><body>502</body></html>", true},
		{"  <html><head></head></html>", true},
		{`{"detail":"Module invalide"}`, false},
		{"Internal Server Error", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksLikeHTML([]byte(tt.body)), tt.body)
	}
}

func TestErrorText(t *testing.T) {
	page := "<html><body><h1>502 Bad Gateway</h1>\n<p>nginx</p></body></html>"
	got := ErrorText([]byte(page))
	assert.Contains(t, got, "502 Bad Gateway")
	assert.NotContains(t, got, "<h1>")
	assert.NotContains(t, got, "\n")

	long := strings.Repeat("x", 1000)
	assert.LessOrEqual(t, len(ErrorText([]byte(long))), maxErrorText+len("…"))
}

func TestErrorTextKeepsRunesWhole(t *testing.T) {
	// "é" is two bytes, so the limit falls inside a rune.
	body := "x" + strings.Repeat("é", maxErrorText)
	got := ErrorText([]byte(body))
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "é…"))
	assert.LessOrEqual(t, len(got), maxErrorText+len("…"))
}
