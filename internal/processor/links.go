package processor

import (
	"regexp"
	"strings"
)

// DefaultLinkLength is the default maximum display length of a link URL.
const DefaultLinkLength = 42

const ellipsis = "…"

// inlineLink matches [text](url) and [text](url "title"). The link text may
// hold backslash escapes and a nested image, as in [![alt](src)](url).
// Groups: 1 the "[text](" prefix, 2 the URL, 3 the optional title with its
// leading space.
var inlineLink = regexp.MustCompile(`(\[(?:\\.|!\[[^\]]*\]\([^)]*\)|[^\]\\])*\]\()([^\s)]+)(\s+"[^"]*")?\)`)

// TruncateLinks shortens every inline link URL longer than maxLen runes to
// its first maxLen-1 runes followed by an ellipsis. Link text, titles, code
// spans, fenced code blocks and everything outside link syntax are left
// untouched. A maxLen below one disables truncation.
func TruncateLinks(text string, maxLen int) string {
	if maxLen < 1 {
		return text
	}

	// Matching runs on a copy with code blanked out; offsets are the same
	// in both strings.
	matches := inlineLink.FindAllStringSubmatchIndex(maskCode(text), -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		prefix := truncateNested(text[m[2]:m[3]], maxLen)
		url, _ := truncateURL(text[m[4]:m[5]], maxLen)

		b.WriteString(text[last:m[2]])
		b.WriteString(prefix)
		b.WriteString(url)
		last = m[5]
	}
	b.WriteString(text[last:])
	return b.String()
}

// truncateNested shortens links inside a "[text](" prefix, such as the image
// of a linked image.
func truncateNested(prefix string, maxLen int) string {
	inner := prefix[1 : len(prefix)-2]
	if !strings.Contains(inner, "](") {
		return prefix
	}
	return "[" + TruncateLinks(inner, maxLen) + "]("
}

func truncateURL(url string, maxLen int) (string, bool) {
	runes := []rune(url)
	if len(runes) <= maxLen {
		return url, false
	}
	return string(runes[:maxLen-1]) + ellipsis, true
}

// maskCode returns text with fenced code blocks and inline code spans
// replaced by spaces, byte for byte. Line breaks are kept.
func maskCode(text string) string {
	if !strings.ContainsAny(text, "`~") {
		return text
	}

	masked := []byte(text)
	blank := func(from, to int) {
		for i := from; i < to; i++ {
			if masked[i] != '\n' {
				masked[i] = ' '
			}
		}
	}

	var fence string
	fenceStart, regionStart := 0, 0
	for lineStart := 0; lineStart < len(text); {
		lineEnd, next := len(text), len(text)
		if i := strings.IndexByte(text[lineStart:], '\n'); i >= 0 {
			lineEnd, next = lineStart+i, lineStart+i+1
		}
		line := text[lineStart:lineEnd]

		if fence == "" {
			if f := openingFence(line); f != "" {
				maskSpans(text, regionStart, lineStart, blank)
				fence, fenceStart = f, lineStart
			}
		} else if closesFence(line, fence) {
			blank(fenceStart, lineEnd)
			fence, regionStart = "", next
		}
		lineStart = next
	}

	// An unclosed fence runs to the end of the document.
	if fence != "" {
		blank(fenceStart, len(text))
	} else {
		maskSpans(text, regionStart, len(text), blank)
	}
	return string(masked)
}

// openingFence returns the fence marker (``` or ~~~, possibly longer) that
// opens a code block on line, or "".
func openingFence(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return ""
	}
	for _, ch := range []byte{'`', '~'} {
		n := runLength(trimmed, 0, len(trimmed), ch)
		if n >= 3 {
			return trimmed[:n]
		}
	}
	return ""
}

func closesFence(line, fence string) bool {
	trimmed := strings.TrimSpace(line)
	return len(trimmed) >= len(fence) && strings.Trim(trimmed, fence[:1]) == ""
}

// maskSpans blanks inline code spans in text[from:to]. A span opens with a
// run of backticks and closes at the next run of the same length; an
// unmatched run is literal.
func maskSpans(text string, from, to int, blank func(int, int)) {
	for i := from; i < to; {
		if text[i] != '`' {
			i++
			continue
		}
		n := runLength(text, i, to, '`')
		if i > 0 && text[i-1] == '\\' {
			i += n
			continue
		}

		closing := -1
		for j := i + n; j < to; {
			if text[j] != '`' {
				j++
				continue
			}
			m := runLength(text, j, to, '`')
			if m == n {
				closing = j
				break
			}
			j += m
		}
		if closing < 0 {
			i += n
			continue
		}
		blank(i, closing+n)
		i = closing + n
	}
}

func runLength(s string, from, to int, ch byte) int {
	n := 0
	for from+n < to && s[from+n] == ch {
		n++
	}
	return n
}
