// Package transcript normalizes recognizer output before dispatch.
package transcript

import (
	"regexp"
	"strings"
	"unicode"
)

// Recognizers annotate non-speech audio as [BLANK_AUDIO], (wind blowing), *music*.
var annotationPattern = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)

// Clean strips non-speech annotations and collapses whitespace.
func Clean(raw string) string {
	stripped := annotationPattern.ReplaceAllString(raw, " ")
	return strings.Join(strings.Fields(stripped), " ")
}

// Fold lowercases text and drops punctuation so spoken phrases compare equal
// regardless of how the recognizer punctuated them.
func Fold(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'':
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Words splits folded text into tokens.
func Words(text string) []string {
	return strings.Fields(Fold(text))
}
