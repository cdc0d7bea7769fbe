package util

import (
	"strings"
	"unicode"
)

// DisplaySnippet returns a single-line preview of chunk text limited to
// maxRunes. Cuts prefer the last word boundary in the final quarter.
func DisplaySnippet(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 160
	}
	s = strings.Join(strings.Fields(SanitizeText(s)), " ")
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsPrint(r) {
			out = append(out, r)
		}
	}
	if len(out) <= maxRunes {
		return string(out)
	}
	cut := maxRunes
	for i := maxRunes; i > maxRunes*3/4; i-- {
		if out[i] == ' ' {
			cut = i
			break
		}
	}
	return strings.TrimSpace(string(out[:cut])) + "..."
}
