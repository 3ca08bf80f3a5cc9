package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeTitle lowercases and unaccents s, expands '&' to "and", drops
// apostrophes, brackets and sentence punctuation, and turns every other
// separator into a single space.
func NormalizeTitle(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// Transformers carry state, so each call builds its own chain.
	unaccent := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(unaccent, s); err == nil {
		s = folded
	}
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case r == '&':
			if b.Len() > 0 {
				b.WriteString(" and")
			} else {
				b.WriteString("and")
			}
			pendingSpace = true
		case isDroppedPunct(r):
		default:
			pendingSpace = true
		}
	}
	return b.String()
}

func isDroppedPunct(r rune) bool {
	switch r {
	case '\'', '’', '‘', '`', '"', '“', '”',
		':', '?', '!', ',', '(', ')', '[', ']':
		return true
	}
	return false
}
