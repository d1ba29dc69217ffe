// Package textutil provides label normalization and excerpt helpers shared by
// the clustering and topic pipeline stages.
package textutil

import (
	"strings"
	"unicode"
)

// NormalizeLabel reduces a raw label to its canonical comparison form:
// lowercased, trimmed, punctuation stripped, interior whitespace collapsed
// to single spaces. Cluster det-keys are derived from the normalized form of
// the winning label, so this function must stay stable across releases.
func NormalizeLabel(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
		// Punctuation and symbols are dropped entirely ("wi-fi" -> "wifi").
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// IsBlank reports whether s is empty after trimming whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Excerpt returns s truncated to at most maxRunes runes, cut at a word
// boundary when one falls in the second half, with an ellipsis appended.
// Newlines are flattened so excerpts stay single-line in prompts and logs.
func Excerpt(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	truncated := string(runes[:maxRunes])
	if idx := strings.LastIndex(truncated, " "); idx > maxRunes/2 {
		truncated = truncated[:idx]
	}
	return truncated + "..."
}
