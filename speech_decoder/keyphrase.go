package speech_decoder

import (
	"strings"
	"unicode"
)

// NormalizePhrase lower-cases text, drops everything that is not an ASCII
// letter, digit or whitespace and collapses runs of whitespace.
func NormalizePhrase(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}

		if unicode.IsSpace(r) {
			return ' '
		}

		return -1
	}, text)

	return strings.Join(strings.Fields(strings.ToLower(cleaned)), " ")
}

// MatchesKeyphrase reports whether text contains the keyphrase, ignoring
// case and punctuation. An empty keyphrase never matches.
func MatchesKeyphrase(text, keyphrase string) bool {
	want := NormalizePhrase(keyphrase)
	if want == "" {
		return false
	}

	return strings.Contains(" "+NormalizePhrase(text)+" ", " "+want+" ")
}
