package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Hello World", "hello world"},
		{"drops punctuation", "hello, world!", "hello world"},
		{"collapses whitespace", "  hello \t\n  world  ", "hello world"},
		{"keeps contractions", "Don't panic", "don't panic"},
		{"unicode case", "ÀÉÎ ÕÜ", "àéî õü"},
		{"german sharp s stays", "Straße", "straße"},
		{"greek", "ΣΟΦΙΑ", "σοφια"},
		{"numbers", "Top 10 tips", "top 10 tips"},
		{"empty", "", ""},
		{"only punctuation", "?!...", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Hello, World!",
		"  what's   UP  ",
		"Café au lait",
		"ÅNGSTRÖM units",
		"good morning :) how are you?",
		"日本語のテキスト",
		"İstanbul",
		"",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalize_CompositionInsensitive(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"
	assert.NotEqual(t, composed, decomposed)
	assert.Equal(t, Normalize(composed), Normalize(decomposed))
	assert.Equal(t, Normalize("CAF\u00c9"), Normalize(decomposed))
}

func TestNormalize_CaseInsensitive(t *testing.T) {
	assert.Equal(t, Normalize("good morning"), Normalize("GOOD Morning"))
	assert.Equal(t, Normalize("ÉCOLE"), Normalize("école"))
}

func TestNormalizer_Language(t *testing.T) {
	tr := NewNormalizer("tr")
	assert.Equal(t, "ıi", tr.Normalize("Iİ"))

	fallback := NewNormalizer("not a tag!")
	assert.Equal(t, "hello", fallback.Normalize("HELLO"))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Tokenize("a, b; c."))
	assert.Empty(t, Tokenize("   "))
}
