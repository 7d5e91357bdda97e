package rules

import (
	"sort"
	"strings"
	"unicode"
)

// KeywordTable maps a predicate tag to the phrases that satisfy it.
type KeywordTable map[string][]string

// Match reports whether any phrase of tag occurs in text as a whole word or phrase.
func (t KeywordTable) Match(tag, text string) bool {
	return matchAny(t[tag], Normalize(text))
}

// Tags returns every tag satisfied by text, sorted by name.
func (t KeywordTable) Tags(text string) []string {
	norm := Normalize(text)
	var tags []string
	for tag, phrases := range t {
		if matchAny(phrases, norm) {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

// Has reports whether tag is declared.
func (t KeywordTable) Has(tag string) bool {
	_, ok := t[tag]
	return ok
}

// Normalize lowercases text, folds every non-alphanumeric rune to a space and
// pads the result with single spaces so phrases can be matched as " phrase ".
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

func matchAny(phrases []string, norm string) bool {
	for _, p := range phrases {
		np := Normalize(p)
		if np == " " {
			continue
		}
		if strings.Contains(norm, np) {
			return true
		}
	}
	return false
}
