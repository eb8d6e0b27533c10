package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/byteowlz/pagemd/internal/errs"
)

// LoadCondition is the point at which navigation is considered complete.
type LoadCondition string

const (
	LoadCommit           LoadCondition = "commit"
	LoadDOMContentLoaded LoadCondition = "domcontentloaded"
	LoadLoad             LoadCondition = "load"
	LoadNetworkIdle      LoadCondition = "networkidle"
)

// LoadConditions lists the accepted values in order of increasing strictness.
var LoadConditions = []LoadCondition{LoadCommit, LoadDOMContentLoaded, LoadLoad, LoadNetworkIdle}

func ParseLoadCondition(s string) (LoadCondition, error) {
	cond := LoadCondition(strings.ToLower(strings.TrimSpace(s)))
	if cond == "" {
		return LoadNetworkIdle, nil
	}
	for _, c := range LoadConditions {
		if c == cond {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid load condition %q (valid: commit, domcontentloaded, load, networkidle)", s)
}

// hideWebdriver masks the most common automation fingerprint.
const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

const (
	// networkQuietPeriod is how long the network must be silent to count as idle.
	networkQuietPeriod   = 500 * time.Millisecond
	pollInterval         = 50 * time.Millisecond
	// browserLaunchTimeout bounds Chrome startup, separately from page loads.
	browserLaunchTimeout = 30 * time.Second
)

type RenderOptions struct {
	Timeout         time.Duration
	WaitForSelector string
	UserAgent       string
	BrowserAgent    string
	ProxyURL        string
	Headless        bool
	WaitUntil       LoadCondition
	ViewportWidth   int
	ViewportHeight  int
	Locale          string
	Timezone        string
	Cookies         []*http.Cookie
}

func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Timeout:        30 * time.Second,
		Headless:       true,
		WaitUntil:      LoadNetworkIdle,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Locale:         "en-US",
		Timezone:       "America/New_York",
	}
}

// Renderer loads pages in headless Chrome and returns the HTML after
// scripts have run. Every call launches and tears down its own browser.
type Renderer struct {
	userAgentSelect *UserAgentSelector
}

func NewRenderer() *Renderer {
	return &Renderer{userAgentSelect: NewUserAgentSelector()}
}

// RenderURL navigates to targetURL and returns the rendered document.
func (r *Renderer) RenderURL(ctx context.Context, targetURL string, opts RenderOptions) (string, error) {
	opts = withRenderDefaults(opts)
	log.Debug().Str("url", targetURL).Str("wait_until", string(opts.WaitUntil)).Dur("timeout", opts.Timeout).Msg("rendering URL")

	return r.render(ctx, opts, targetURL, func(ctx context.Context, s *session) error {
		return s.navigate(ctx, targetURL, opts.WaitUntil)
	})
}

// RenderHTML loads htmlContent into a blank page so its scripts execute and
// returns the resulting document.
func (r *Renderer) RenderHTML(ctx context.Context, htmlContent string, opts RenderOptions) (string, error) {
	opts = withRenderDefaults(opts)
	log.Debug().Int("bytes", len(htmlContent)).Str("wait_until", string(opts.WaitUntil)).Msg("rendering local HTML")

	return r.render(ctx, opts, "", func(ctx context.Context, s *session) error {
		return s.setContent(ctx, htmlContent, opts.WaitUntil)
	})
}

func (r *Renderer) render(ctx context.Context, opts RenderOptions, targetURL string, load func(context.Context, *session) error) (string, error) {
	userAgent := r.userAgentSelect.Resolve(opts.UserAgent, opts.BrowserAgent)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(opts, userAgent)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	s := newSession()
	chromedp.ListenTarget(browserCtx, s.handle)

	// The first Run starts the browser; it must not carry the load timeout or
	// the browser would be torn down when that timeout fires.
	setup := []chromedp.Action{
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx)
			return err
		}),
		emulation.SetDeviceMetricsOverride(int64(opts.ViewportWidth), int64(opts.ViewportHeight), 1, false),
	}
	if opts.Locale != "" {
		setup = append(setup, emulation.SetLocaleOverride().WithLocale(opts.Locale))
	}
	if opts.Timezone != "" {
		setup = append(setup, emulation.SetTimezoneOverride(opts.Timezone))
	}
	if len(opts.Cookies) > 0 && targetURL != "" {
		params, err := cookieParams(targetURL, opts.Cookies)
		if err != nil {
			return "", err
		}
		setup = append(setup, network.SetCookies(params))
	}
	if err := launchWithin(ctx, browserLaunchTimeout, cancelAlloc, func() error {
		return chromedp.Run(browserCtx, setup...)
	}); err != nil {
		return "", fmt.Errorf("failed to start browser: %w", err)
	}

	if err := withTimeout(browserCtx, opts.Timeout, func(ctx context.Context) error {
		return load(ctx, s)
	}); err != nil {
		return "", err
	}

	if err := settle(browserCtx, s, opts.WaitUntil, opts.Timeout); err != nil {
		return "", err
	}

	if opts.WaitForSelector != "" {
		if err := withTimeout(browserCtx, opts.Timeout, func(ctx context.Context) error {
			return chromedp.Run(ctx, chromedp.WaitVisible(opts.WaitForSelector))
		}); err != nil {
			return "", fmt.Errorf("waiting for selector %q: %w", opts.WaitForSelector, err)
		}
	}

	var html string
	if err := chromedp.Run(browserCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read rendered HTML: %w", err)
	}

	log.Debug().Int("bytes", len(html)).Msg("render complete")
	return html, nil
}

// withTimeout runs fn under a deadline and reports an expired deadline as
// errs.ErrTimeout.
func withTimeout(parent context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	if parent.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return fmt.Errorf("%w after %dms", errs.ErrTimeout, timeout.Milliseconds())
	}
	return err
}

// launchWithin runs launch and calls cancel, tearing the browser down, when
// it has not returned within d.
func launchWithin(parent context.Context, d time.Duration, cancel context.CancelFunc, launch func() error) error {
	timer := time.AfterFunc(d, cancel)
	err := launch()
	if !timer.Stop() && parent.Err() == nil {
		return fmt.Errorf("%w: browser did not start within %s", errs.ErrTimeout, d)
	}
	return err
}

// settle waits for the network to go quiet after a load condition weaker
// than networkidle. Running out of time is not an error; rendering goes on
// with whatever has loaded. Only cancellation of ctx itself is reported.
func settle(ctx context.Context, s *session, cond LoadCondition, timeout time.Duration) error {
	if cond == LoadNetworkIdle || cond == "" {
		return nil
	}

	idleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.waitNetworkIdle(idleCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug().Err(err).Msg("network did not go idle, continuing with partial content")
	}
	return nil
}

func withRenderDefaults(opts RenderOptions) RenderOptions {
	def := DefaultRenderOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.WaitUntil == "" {
		opts.WaitUntil = def.WaitUntil
	}
	if opts.ViewportWidth <= 0 || opts.ViewportHeight <= 0 {
		opts.ViewportWidth, opts.ViewportHeight = def.ViewportWidth, def.ViewportHeight
	}
	return opts
}

func allocatorOptions(opts RenderOptions, userAgent string) []chromedp.ExecAllocatorOption {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
		chromedp.UserAgent(userAgent),
	)
	if opts.Locale != "" {
		allocOpts = append(allocOpts, chromedp.Flag("lang", opts.Locale))
	}
	if opts.ProxyURL != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyURL))
	}
	// Chrome refuses to start its sandbox as root, as in most containers.
	if os.Geteuid() == 0 {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	return allocOpts
}

// cookieParams converts HTTP cookies for the browser, defaulting the domain
// to the target host.
func cookieParams(targetURL string, cookies []*http.Cookie) ([]*network.CookieParam, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL for cookies: %w", err)
	}

	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		domain := c.Domain
		if domain == "" {
			domain = u.Hostname()
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   domain,
			Path:     path,
			Secure:   c.Secure || u.Scheme == "https",
			HTTPOnly: c.HttpOnly,
		})
	}
	return params, nil
}

// session tracks page lifecycle and network activity for one browser tab.
type session struct {
	mu         sync.Mutex
	lifecycle  map[string]bool
	inflight   map[network.RequestID]struct{}
	lastChange time.Time
	notify     chan struct{}
}

func newSession() *session {
	return &session{
		lifecycle:  make(map[string]bool),
		inflight:   make(map[network.RequestID]struct{}),
		lastChange: time.Now(),
		notify:     make(chan struct{}, 1),
	}
}

func lifecycleKey(loaderID cdp.LoaderID, name string) string {
	return string(loaderID) + "/" + name
}

// handle is called from the chromedp event loop and must not block.
func (s *session) handle(ev interface{}) {
	s.mu.Lock()
	switch e := ev.(type) {
	case *page.EventLifecycleEvent:
		s.lifecycle[lifecycleKey(e.LoaderID, e.Name)] = true
	case *network.EventRequestWillBeSent:
		s.inflight[e.RequestID] = struct{}{}
		s.lastChange = time.Now()
	case *network.EventLoadingFinished:
		delete(s.inflight, e.RequestID)
		s.lastChange = time.Now()
	case *network.EventLoadingFailed:
		delete(s.inflight, e.RequestID)
		s.lastChange = time.Now()
	default:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *session) seen(loaderID cdp.LoaderID, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle[lifecycleKey(loaderID, name)]
}

// waitLifecycle blocks until the named lifecycle event fired for loaderID.
func (s *session) waitLifecycle(ctx context.Context, loaderID cdp.LoaderID, name string) error {
	for !s.seen(loaderID, name) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.notify:
		}
	}
	return nil
}

// idle reports whether no request is in flight and nothing changed for quiet.
func (s *session) idle(now time.Time, quiet time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight) == 0 && now.Sub(s.lastChange) >= quiet
}

// waitNetworkIdle blocks until the network has been quiet for networkQuietPeriod.
func (s *session) waitNetworkIdle(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for !s.idle(time.Now(), networkQuietPeriod) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (s *session) navigate(ctx context.Context, targetURL string, cond LoadCondition) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, loaderID, errorText, _, err := page.Navigate(targetURL).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}

		switch cond {
		case LoadCommit:
			return nil
		case LoadDOMContentLoaded:
			return s.waitLifecycle(ctx, loaderID, "DOMContentLoaded")
		case LoadLoad:
			return s.waitLifecycle(ctx, loaderID, "load")
		default:
			if err := s.waitLifecycle(ctx, loaderID, "load"); err != nil {
				return err
			}
			return s.waitNetworkIdle(ctx)
		}
	}))
}

func (s *session) setContent(ctx context.Context, htmlContent string, cond LoadCondition) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		if err := page.SetDocumentContent(tree.Frame.ID, htmlContent).Do(ctx); err != nil {
			return err
		}

		expr := readyStateExpr(cond)
		if expr == "" {
			return nil
		}
		if err := waitForExpression(ctx, expr); err != nil {
			return err
		}
		if cond == LoadNetworkIdle {
			return s.waitNetworkIdle(ctx)
		}
		return nil
	}))
}

// readyStateExpr returns the JavaScript condition satisfying cond for a
// document written in place, or "" when nothing needs to be awaited.
func readyStateExpr(cond LoadCondition) string {
	switch cond {
	case LoadCommit:
		return ""
	case LoadDOMContentLoaded:
		return `document.readyState !== "loading"`
	default:
		return `document.readyState === "complete"`
	}
}

func waitForExpression(ctx context.Context, expr string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var ok bool
		if err := chromedp.Evaluate(expr, &ok).Do(ctx); err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
