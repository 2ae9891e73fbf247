// Package choicekey turns a choice's display text into the stable machine key used by
// question-level branch configurations.
//
// The same algorithm runs wherever keys are produced (authoring UI, survey-taking client,
// server). testdata/vectors.yaml holds the shared golden vectors every implementation is
// checked against.
package choicekey

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Key is a normalized choice key, e.g. "hom_qua" for "Hôm qua".
type Key string

func (k Key) String() string { return string(k) }

// isSpace extends unicode.IsSpace with the file, group, record and unit separators
// (U+001C..U+001F), which stored keys have always treated as whitespace.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= '\x1c' && r <= '\x1f')
}

// Normalize trims and lowercases the text, strips diacritics (NFD then drop nonspacing
// marks), maps đ to d, collapses whitespace runs into a single underscore and removes every
// remaining rune that is not a letter, digit or underscore.
//
// Lowercasing is context sensitive, so a word-final Σ becomes ς.
func Normalize(choice string) Key {
	s := cases.Lower(language.Und).String(strings.TrimFunc(choice, isSpace))

	var b strings.Builder
	b.Grow(len(s))

	inSpace := false
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if r == 'đ' || r == 'Đ' {
			r = 'd'
		}
		if isSpace(r) {
			if !inSpace {
				b.WriteByte('_')
				inSpace = true
			}
			continue
		}
		inSpace = false
		if r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}

	return Key(b.String())
}

// Split parses a comma-separated choices field ("18-25, 26-35, 36+") into trimmed display
// strings, dropping empty entries.
func Split(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	choices := make([]string, 0, len(parts))
	for _, p := range parts {
		if c := strings.TrimSpace(p); c != "" {
			choices = append(choices, c)
		}
	}
	return choices
}

// Keys normalizes every choice, preserving order.
func Keys(choices []string) []Key {
	keys := make([]Key, len(choices))
	for i, c := range choices {
		keys[i] = Normalize(c)
	}
	return keys
}
