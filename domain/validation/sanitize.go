// Package validation bounds, parses and sanitizes gateway requests.
// All functions are pure.
package validation

import (
	"strings"
	"unicode"
)

// Sanitize truncates text to maxLen characters and neutralizes characters that
// could corrupt prompt construction or log output. Newlines and tabs are kept.
//
// Invalid UTF-8 is dropped, "\r\n" and lone "\r" become "\n", other control
// and format characters (including bidirectional overrides) are removed, and
// surrounding whitespace is trimmed.
func Sanitize(text string, maxLen int) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		b.WriteRune(r)
	}

	return truncate(strings.TrimSpace(b.String()), maxLen)
}

// SanitizeLine is Sanitize for single-line values such as identifiers and
// labels: all whitespace runs collapse to one space.
func SanitizeLine(text string, maxLen int) string {
	return truncate(strings.Join(strings.Fields(Sanitize(text, len(text))), " "), maxLen)
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return strings.TrimRightFunc(s[:i], unicode.IsSpace)
		}
		n++
	}
	return s
}
