// Package text normalizes chat message text before it is judged.
package text

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// ASCII control characters other than tab, newline and carriage return.
	controlCharsRegex = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

	excessNewlinesRegex = regexp.MustCompile(`\n{3,}`)

	invisibleReplacer = strings.NewReplacer(
		// Format and direction controls carry no content.
		"\u2060", "", // word joiner
		"\uFEFF", "", // byte order mark
		"\u00AD", "", // soft hyphen
		"\u200E", "", // left-to-right mark
		"\u200F", "", // right-to-left mark
		"\u202A", "", "\u202B", "", "\u202C", "", "\u202D", "", "\u202E", "",
		"\u2066", "", "\u2067", "", "\u2068", "", "\u2069", "",
		"\u2061", "", "\u2062", "", "\u2063", "", "\u2064", "",

		"\u2028", "\n", // line separator
		"\u2029", "\n\n", // paragraph separator

		// Zero-width breaks still separate words.
		"\u200B", " ",
		"\u200C", " ",
	)
)

// Normalize strips invisible characters from s and collapses whitespace: a run
// inside a line becomes one space and longer gaps between lines become one
// blank line. A message made only of whitespace and invisible characters
// normalizes to "".
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = invisibleReplacer.Replace(s)
	s = controlCharsRegex.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = collapseSpaces(lines[i])
	}

	s = strings.Join(lines, "\n")
	s = excessNewlinesRegex.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func collapseSpaces(line string) string {
	var b strings.Builder
	b.Grow(len(line))

	space := false
	for _, r := range line {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteRune(' ')
				space = true
			}
			continue
		}
		b.WriteRune(r)
		space = false
	}

	return strings.TrimSpace(b.String())
}
