// Package text canonicalizes chat text so that learned phrases and incoming
// messages compare equal regardless of case, punctuation, spacing or Unicode
// composition form.
package text

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalizer maps text to its canonical phrase form. The same Normalizer must
// be used when phrases are learned and when messages are matched.
type Normalizer struct {
	tag language.Tag
}

// NewNormalizer returns a Normalizer lower-casing with the rules of the given
// BCP 47 language. Unknown or empty tags fall back to language-neutral rules.
func NewNormalizer(lang string) *Normalizer {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.Und
	}
	return &Normalizer{tag: tag}
}

var defaultNormalizer = NewNormalizer("und")

// Normalize canonicalizes s with language-neutral rules
func Normalize(s string) string {
	return defaultNormalizer.Normalize(s)
}

// Normalize splits s into words, rejoins them with single spaces, composes the
// result to NFC and lower-cases it.
func (n *Normalizer) Normalize(s string) string {
	joined := strings.Join(Tokenize(s), " ")
	composed := norm.NFC.String(joined)
	// cases.Caser is stateful, so one per call.
	lowered := cases.Lower(n.tag).String(composed)
	// lower-casing can leave decomposed sequences behind; recompose
	return norm.NFC.String(lowered)
}

// Tokenize returns the words of s using Unicode word boundaries (UAX #29).
// Segments made only of whitespace or punctuation are dropped.
func Tokenize(s string) []string {
	var tokens []string
	state := -1
	rest := s
	for len(rest) > 0 {
		var word string
		word, rest, state = uniseg.FirstWordInString(rest, state)
		if isToken(word) {
			tokens = append(tokens, word)
		}
	}
	return tokens
}

func isToken(segment string) bool {
	for _, r := range segment {
		if !unicode.IsSpace(r) && !unicode.IsPunct(r) && !unicode.IsControl(r) {
			return true
		}
	}
	return false
}
