package input

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// ContentKind says whether a resource needs HTML extraction and conversion.
type ContentKind string

const (
	ContentHTML      ContentKind = "html"
	ContentMarkdown  ContentKind = "markdown"
	ContentPlainText ContentKind = "text"
)

var markdownExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".mdown":    true,
	".mkdn":     true,
	".mkd":      true,
	".mdwn":     true,
	".mdtxt":    true,
	".mdtext":   true,
	".rmd":      true,
}

var textExtensions = map[string]bool{
	".txt":  true,
	".json": true,
	".xml":  true,
	".yaml": true,
	".yml":  true,
	".csv":  true,
	".toml": true,
	".ini":  true,
	".cfg":  true,
	".conf": true,
	".log":  true,
	".rdf":  true,
	".n3":   true,
	".ttl":  true,
	".nt":   true,
}

// Passthrough reports whether content of this kind skips conversion.
func (k ContentKind) Passthrough() bool {
	return k == ContentMarkdown || k == ContentPlainText
}

// KindFromName classifies a file name or path by its extension.
func KindFromName(name string) ContentKind {
	ext := strings.ToLower(path.Ext(name))
	switch {
	case markdownExtensions[ext]:
		return ContentMarkdown
	case textExtensions[ext]:
		return ContentPlainText
	default:
		return ContentHTML
	}
}

// KindFromURL classifies a URL by the extension of its path, ignoring the
// query string and fragment.
func KindFromURL(rawURL string) ContentKind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return KindFromName(rawURL)
	}
	return KindFromName(u.Path)
}

// IsMarkdownContentType checks if a Content-Type header indicates markdown.
func IsMarkdownContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "markdown")
}

// KindFromContentType classifies a declared Content-Type header value.
func KindFromContentType(contentType string) ContentKind {
	if contentType == "" {
		return ContentHTML
	}
	if IsMarkdownContentType(contentType) {
		return ContentMarkdown
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	if strings.EqualFold(strings.TrimSpace(mediaType), "text/plain") {
		return ContentPlainText
	}
	return ContentHTML
}

// Resolve combines the extension of name with a declared content type.
// The extension wins when it is conclusive; otherwise the content type decides.
func Resolve(name, contentType string) ContentKind {
	if kind := KindFromURL(name); kind.Passthrough() {
		return kind
	}
	return KindFromContentType(contentType)
}
