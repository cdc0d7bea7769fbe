package util

import (
	"strings"
	"unicode"
)

// glyphFixes expands presentation-form ligatures PDF fonts often emit and
// drops invisible marks that would split words.
var glyphFixes = strings.NewReplacer(
	"\ufb00", "ff",
	"\ufb01", "fi",
	"\ufb02", "fl",
	"\ufb03", "ffi",
	"\ufb04", "ffl",
	"\ufb05", "st",
	"\ufb06", "st",
	"\u00ad", "",
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\u2060", "",
	"\ufeff", "",
	"\ufffd", "",
)

// SanitizeText cleans text pulled from a PDF text layer or OCR output:
// ligatures are expanded, invisible and control characters removed and
// non-breaking spaces turned into plain spaces. Line breaks and tabs stay.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = glyphFixes.Replace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		switch {
		case ch == '\n' || ch == '\r' || ch == '\t':
			b.WriteRune(ch)
		case ch == '\u00a0' || ch == '\u202f':
			b.WriteByte(' ')
		case unicode.IsControl(ch):
		default:
			b.WriteRune(ch)
		}
	}
	return strings.TrimSpace(b.String())
}
