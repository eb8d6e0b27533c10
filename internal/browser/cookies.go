package browser

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // Import all browser support
	"github.com/rs/zerolog/log"
)

type BrowserType string

const (
	BrowserAuto    BrowserType = "auto"
	BrowserChrome  BrowserType = "chrome"
	BrowserFirefox BrowserType = "firefox"
	BrowserSafari  BrowserType = "safari"
	BrowserZen     BrowserType = "zen"
)

// autoOrder is the preference order when the browser is "auto".
var autoOrder = []BrowserType{BrowserChrome, BrowserFirefox, BrowserZen, BrowserSafari}

func ParseBrowserType(s string) (BrowserType, error) {
	bt := BrowserType(strings.ToLower(strings.TrimSpace(s)))
	switch bt {
	case BrowserAuto, BrowserChrome, BrowserFirefox, BrowserSafari, BrowserZen:
		return bt, nil
	}
	return "", fmt.Errorf("unsupported cookie browser %q (valid: auto, chrome, firefox, safari, zen)", s)
}

type cookieTraverser func(ctx context.Context) iter.Seq2[*kooky.Cookie, error]

// CookieExtractor reads cookies for a URL from a locally installed browser's
// cookie store.
type CookieExtractor struct {
	browserType BrowserType
	customPaths map[string]string
	traverse    cookieTraverser
	now         func() time.Time
}

func NewCookieExtractor(browserType BrowserType, customPaths map[string]string) *CookieExtractor {
	return &CookieExtractor{
		browserType: browserType,
		customPaths: customPaths,
		traverse: func(ctx context.Context) iter.Seq2[*kooky.Cookie, error] {
			return iter.Seq2[*kooky.Cookie, error](kooky.TraverseCookies(ctx))
		},
		now: time.Now,
	}
}

// Cookies returns the unexpired cookies that apply to targetURL's host.
func (ce *CookieExtractor) Cookies(ctx context.Context, targetURL string) ([]*http.Cookie, error) {
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	host := parsedURL.Hostname()
	if host == "" {
		return nil, fmt.Errorf("URL has no host: %s", targetURL)
	}

	if ce.browserType != BrowserAuto {
		cookies := ce.extractFromBrowser(ctx, ce.browserType, host)
		log.Debug().Str("browser", string(ce.browserType)).Str("host", host).Int("cookies", len(cookies)).Msg("loaded browser cookies")
		return cookies, nil
	}

	for _, browser := range ce.DetectAvailableBrowsers() {
		if cookies := ce.extractFromBrowser(ctx, browser, host); len(cookies) > 0 {
			log.Debug().Str("browser", string(browser)).Str("host", host).Int("cookies", len(cookies)).Msg("loaded browser cookies")
			return cookies, nil
		}
	}

	log.Debug().Str("host", host).Msg("no browser cookies found")
	return nil, nil
}

func (ce *CookieExtractor) extractFromBrowser(ctx context.Context, browserType BrowserType, host string) []*http.Cookie {
	var cookies []*http.Cookie
	now := ce.now()

	for cookie, err := range ce.traverse(ctx) {
		if err != nil || cookie == nil {
			continue
		}
		if !cookie.Expires.IsZero() && cookie.Expires.Before(now) {
			continue
		}

		var name, path string
		if cookie.Browser != nil {
			name, path = cookie.Browser.Browser(), cookie.Browser.FilePath()
		}
		if ce.matchesBrowser(name, path, browserType) && matchesDomain(cookie.Domain, host) {
			cookies = append(cookies, &http.Cookie{
				Name:     cookie.Name,
				Value:    cookie.Value,
				Path:     cookie.Path,
				Domain:   cookie.Domain,
				Expires:  cookie.Expires,
				Secure:   cookie.Secure,
				HttpOnly: cookie.HttpOnly,
			})
		}
	}

	return cookies
}

func (ce *CookieExtractor) matchesBrowser(browserName, storePath string, browserType BrowserType) bool {
	browserName = strings.ToLower(browserName)
	storePath = strings.ToLower(storePath)

	switch browserType {
	case BrowserAuto:
		return true
	case BrowserChrome:
		return strings.Contains(browserName, "chrome") || strings.Contains(browserName, "chromium")
	case BrowserFirefox:
		return strings.Contains(browserName, "firefox") && !ce.isZenStore(storePath)
	case BrowserSafari:
		return strings.Contains(browserName, "safari")
	case BrowserZen:
		return strings.Contains(browserName, "zen") ||
			(strings.Contains(browserName, "firefox") && ce.isZenStore(storePath))
	}

	return false
}

// isZenStore reports whether a Firefox-format store belongs to Zen, which
// shares Firefox's profile layout.
func (ce *CookieExtractor) isZenStore(storePath string) bool {
	if custom := ce.customPaths["zen"]; custom != "" && strings.HasPrefix(storePath, strings.ToLower(expandPath(custom))) {
		return true
	}
	return strings.Contains(storePath, "zen")
}

// matchesDomain applies cookie domain matching: exact host or any subdomain
// of the cookie's domain.
func matchesDomain(cookieDomain, targetDomain string) bool {
	if cookieDomain == "" || targetDomain == "" {
		return false
	}

	cookieDomain = strings.ToLower(strings.TrimPrefix(cookieDomain, "."))
	targetDomain = strings.ToLower(targetDomain)

	if cookieDomain == targetDomain {
		return true
	}
	return strings.HasSuffix(targetDomain, "."+cookieDomain)
}

// DetectAvailableBrowsers lists browsers with a profile directory on this
// machine, in the order "auto" tries them.
func (ce *CookieExtractor) DetectAvailableBrowsers() []BrowserType {
	var available []BrowserType
	for _, browser := range autoOrder {
		if ce.isBrowserAvailable(browser) {
			available = append(available, browser)
		}
	}
	return available
}

func (ce *CookieExtractor) isBrowserAvailable(browserType BrowserType) bool {
	switch browserType {
	case BrowserChrome:
		return ce.checkBrowserPath("chrome", []string{
			"~/.config/google-chrome",
			"~/.config/chromium",
			"~/Library/Application Support/Google/Chrome",
			"%LOCALAPPDATA%/Google/Chrome/User Data",
		})
	case BrowserFirefox:
		return ce.checkBrowserPath("firefox", []string{
			"~/.mozilla/firefox",
			"~/Library/Application Support/Firefox",
			"%APPDATA%/Mozilla/Firefox",
		})
	case BrowserSafari:
		if runtime.GOOS != "darwin" {
			return false
		}
		return ce.checkBrowserPath("safari", []string{
			"~/Library/Cookies",
		})
	case BrowserZen:
		return ce.checkBrowserPath("zen", []string{
			"~/.zen",
			"~/Library/Application Support/Zen",
			"%APPDATA%/Zen",
		})
	}
	return false
}

func (ce *CookieExtractor) checkBrowserPath(browserName string, defaultPaths []string) bool {
	if customPath, exists := ce.customPaths[browserName]; exists && customPath != "" {
		if _, err := os.Stat(expandPath(customPath)); err == nil {
			return true
		}
	}

	for _, path := range defaultPaths {
		if _, err := os.Stat(expandPath(path)); err == nil {
			return true
		}
	}

	return false
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}

	if strings.Contains(path, "%LOCALAPPDATA%") {
		return strings.Replace(path, "%LOCALAPPDATA%", os.Getenv("LOCALAPPDATA"), 1)
	}

	if strings.Contains(path, "%APPDATA%") {
		return strings.Replace(path, "%APPDATA%", os.Getenv("APPDATA"), 1)
	}

	return path
}
