package processor

import (
	"strings"
	"unicode"
)

// Normalize collapses runs of blank lines into one, right-trims every line,
// drops leading and trailing blank lines and terminates the text with a
// single newline. Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))

	prevBlank := false
	for _, line := range lines {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		blank := line == ""
		if blank && prevBlank {
			continue
		}
		cleaned = append(cleaned, line)
		prevBlank = blank
	}

	start, end := 0, len(cleaned)
	for start < end && cleaned[start] == "" {
		start++
	}
	for end > start && cleaned[end-1] == "" {
		end--
	}

	return strings.Join(cleaned[start:end], "\n") + "\n"
}

// EnsureTrailingNewline trims trailing line breaks down to exactly one,
// keeping the text's own final line ending (LF or CRLF). Empty text stays
// empty.
func EnsureTrailingNewline(text string) string {
	if text == "" {
		return text
	}
	trimmed := strings.TrimRight(text, "\r\n")
	if tail := text[len(trimmed):]; tail != "" {
		return trimmed + lineEnding(tail, strings.IndexByte(tail, '\n'))
	}
	return trimmed + lineEnding(trimmed, strings.LastIndexByte(trimmed, '\n'))
}

// lineEnding reports the line ending whose LF sits at index i of s.
func lineEnding(s string, i int) string {
	if i > 0 && s[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}

