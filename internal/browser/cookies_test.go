package browser

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/browserutils/kooky"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrowserType(t *testing.T) {
	for _, in := range []string{"auto", "Chrome", " firefox ", "safari", "zen"} {
		_, err := ParseBrowserType(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseBrowserType("opera")
	assert.Error(t, err)
}

func TestMatchesDomain(t *testing.T) {
	tests := []struct {
		cookie, target string
		want           bool
	}{
		{"example.com", "example.com", true},
		{".example.com", "example.com", true},
		{".example.com", "docs.example.com", true},
		{"Example.COM", "example.com", true},
		{"example.com", "badexample.com", false},
		{"docs.example.com", "example.com", false},
		{"", "example.com", false},
		{"example.com", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesDomain(tt.cookie, tt.target), "%s vs %s", tt.cookie, tt.target)
	}
}

func TestMatchesBrowser(t *testing.T) {
	ce := NewCookieExtractor(BrowserAuto, map[string]string{"zen": "/opt/profiles/custom"})

	assert.True(t, ce.matchesBrowser("anything", "", BrowserAuto))
	assert.True(t, ce.matchesBrowser("chromium", "", BrowserChrome))
	assert.True(t, ce.matchesBrowser("Firefox", "/home/u/.mozilla/firefox/x/cookies.sqlite", BrowserFirefox))
	assert.False(t, ce.matchesBrowser("firefox", "/home/u/.zen/x/cookies.sqlite", BrowserFirefox))
	assert.True(t, ce.matchesBrowser("firefox", "/home/u/.zen/x/cookies.sqlite", BrowserZen))
	assert.True(t, ce.matchesBrowser("firefox", "/opt/profiles/custom/p/cookies.sqlite", BrowserZen))
	assert.False(t, ce.matchesBrowser("chrome", "", BrowserSafari))
}

func fakeStore(cookies ...*kooky.Cookie) cookieTraverser {
	return func(context.Context) iter.Seq2[*kooky.Cookie, error] {
		return func(yield func(*kooky.Cookie, error) bool) {
			if !yield(nil, errors.New("unreadable store")) {
				return
			}
			for _, c := range cookies {
				if !yield(c, nil) {
					return
				}
			}
		}
	}
}

func TestCookieExtractor_Cookies(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ce := NewCookieExtractor(BrowserAuto, nil)
	ce.now = func() time.Time { return now }
	ce.traverse = fakeStore(
		&kooky.Cookie{Cookie: http.Cookie{Name: "sid", Value: "1", Domain: ".example.com", Path: "/"}},
		&kooky.Cookie{Cookie: http.Cookie{Name: "old", Value: "2", Domain: "example.com", Expires: now.Add(-time.Hour)}},
		&kooky.Cookie{Cookie: http.Cookie{Name: "fresh", Value: "3", Domain: "docs.example.com", Expires: now.Add(time.Hour), HttpOnly: true}},
		&kooky.Cookie{Cookie: http.Cookie{Name: "other", Value: "4", Domain: "other.org"}},
	)

	cookies := ce.extractFromBrowser(context.Background(), BrowserAuto, "docs.example.com")
	require.Len(t, cookies, 2)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.Equal(t, "fresh", cookies[1].Name)
	assert.True(t, cookies[1].HttpOnly)
}

func TestCookieExtractor_SpecificBrowser(t *testing.T) {
	ce := NewCookieExtractor(BrowserChrome, nil)
	ce.traverse = fakeStore(&kooky.Cookie{Cookie: http.Cookie{Name: "sid", Domain: "example.com"}})

	// Without browser info a cookie cannot be attributed to chrome.
	cookies, err := ce.Cookies(context.Background(), "https://example.com/page")
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func TestCookieExtractor_InvalidURL(t *testing.T) {
	ce := NewCookieExtractor(BrowserChrome, nil)

	_, err := ce.Cookies(context.Background(), "://nope")
	assert.Error(t, err)

	_, err = ce.Cookies(context.Background(), "file:///tmp/page.html")
	assert.Error(t, err)
}

func TestCheckBrowserPath_Custom(t *testing.T) {
	dir := t.TempDir()
	ce := NewCookieExtractor(BrowserAuto, map[string]string{"zen": dir})
	assert.True(t, ce.checkBrowserPath("zen", nil))
	assert.False(t, ce.checkBrowserPath("zen-missing", []string{filepath.Join(dir, "nope")}))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".zen"), expandPath("~/.zen"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))

	t.Setenv("APPDATA", "/appdata")
	assert.Equal(t, "/appdata/Zen", expandPath("%APPDATA%/Zen"))
}
