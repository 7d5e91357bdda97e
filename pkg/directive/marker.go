package directive

import (
	"regexp"
	"strings"
)

// markerPattern matches marker(type:title:data). Title may not contain the
// delimiters; data may escape them with a backslash.
var markerPattern = regexp.MustCompile(`marker\(\s*([A-Za-z][A-Za-z-]*)\s*:([^:()]*):((?:\\.|[^\\)])*)\)`)

// Marker is one inline marker found in text.
type Marker struct {
	Type  string
	Title string
	Data  string
	Start int
	End   int
}

// FindMarkers returns every marker in text, in source order. Data is unescaped.
func FindMarkers(text string) []Marker {
	matches := markerPattern.FindAllStringSubmatchIndex(text, -1)
	out := make([]Marker, 0, len(matches))
	for _, m := range matches {
		out = append(out, Marker{
			Type:  text[m[2]:m[3]],
			Title: strings.TrimSpace(text[m[4]:m[5]]),
			Data:  text[m[6]:m[7]],
			Start: m[0],
			End:   m[1],
		})
	}
	return out
}

// StripMarkers removes every marker span from text.
func StripMarkers(text string) string {
	return markerPattern.ReplaceAllString(text, " ")
}

// Unescape removes backslash escapes from marker data.
func Unescape(data string) string {
	var b strings.Builder
	escaped := false
	for _, r := range data {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// SplitList splits marker data on unescaped commas, unescaping each element.
// Empty elements are dropped.
func SplitList(data string) []string {
	var (
		out     []string
		b       strings.Builder
		escaped bool
	)
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	for _, r := range data {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ',':
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return out
}

// Collapse folds runs of whitespace into single spaces and trims the result.
func Collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
