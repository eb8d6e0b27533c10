package input

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/byteowlz/pagemd/internal/errs"
)

type Kind string

const (
	KindURL       Kind = "url"
	KindLocalFile Kind = "file"
	KindStdin     Kind = "stdin"
)

// Detect decides whether arg names stdin, a URL or a local file.
// Existence on fs is checked before falling back to the domain-name guess,
// so a missing relative name containing a dot is treated as a URL.
func Detect(fs afero.Fs, arg string) (Kind, error) {
	if arg == "" || arg == "-" {
		return KindStdin, nil
	}

	if hasHTTPScheme(arg) {
		return KindURL, nil
	}

	if exists, _ := afero.Exists(fs, arg); exists {
		return KindLocalFile, nil
	}

	// Assume URL if it looks like a domain
	if strings.Contains(arg, ".") && !strings.HasPrefix(arg, "/") && !filepath.IsAbs(arg) {
		return KindURL, nil
	}

	return "", fmt.Errorf("%w: %s", errs.ErrUnresolvableInput, arg)
}

// NormalizeURL adds an https scheme to bare domains.
func NormalizeURL(arg string) string {
	if hasHTTPScheme(arg) {
		return arg
	}
	return "https://" + arg
}

func hasHTTPScheme(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
