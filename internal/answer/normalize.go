// Package answer canonicalizes free-text and selected answers so that two
// answers can be compared without regard to case, accents, punctuation or
// spacing.
package answer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases s, strips diacritics, drops every rune that is not a
// letter, digit or whitespace (underscore included), collapses whitespace runs
// to one space and trims the ends. It never fails; the empty string maps to
// itself.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	// A transform chain keeps internal buffers, so build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Equal reports whether a and b are the same answer after normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
