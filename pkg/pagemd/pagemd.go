// Package pagemd converts web pages, local HTML files and standard input into
// clean Markdown.
package pagemd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/byteowlz/pagemd/internal/browser"
	"github.com/byteowlz/pagemd/internal/errs"
	"github.com/byteowlz/pagemd/internal/extractor"
	"github.com/byteowlz/pagemd/internal/fetcher"
	"github.com/byteowlz/pagemd/internal/input"
	"github.com/byteowlz/pagemd/internal/processor"
)

// Fetcher performs plain HTTP requests.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts fetcher.FetchOptions) (*fetcher.FetchResult, error)
}

// Renderer executes a page's scripts in a browser and returns the final HTML.
type Renderer interface {
	RenderURL(ctx context.Context, url string, opts fetcher.RenderOptions) (string, error)
	RenderHTML(ctx context.Context, html string, opts fetcher.RenderOptions) (string, error)
}

// CookieSource supplies cookies to send with requests to a URL.
type CookieSource interface {
	Cookies(ctx context.Context, url string) ([]*http.Cookie, error)
}

type Options struct {
	// Input is a URL, a file path, or "" / "-" for standard input.
	Input string
	// Output is a file path; empty writes to stdout.
	Output string

	Timeout   time.Duration
	WaitFor   string
	NoJS      bool
	Headless  bool
	WaitUntil fetcher.LoadCondition

	UserAgent    string
	BrowserAgent string
	ProxyURL     string

	Selector      string
	StripTags     []string
	Raw           bool
	TruncateLinks int

	// CookiesFrom names the browser to read cookies from; empty disables them.
	CookiesFrom string
	CookiePaths map[string]string

	ViewportWidth  int
	ViewportHeight int
	Locale         string
	Timezone       string
}

func DefaultOptions() Options {
	render := fetcher.DefaultRenderOptions()
	return Options{
		Timeout:        render.Timeout,
		Headless:       render.Headless,
		WaitUntil:      render.WaitUntil,
		ViewportWidth:  render.ViewportWidth,
		ViewportHeight: render.ViewportHeight,
		Locale:         render.Locale,
		Timezone:       render.Timezone,
	}
}

type Result struct {
	Text    string
	Input   input.Kind
	Content input.ContentKind
	// Rendered is true when a browser produced the HTML.
	Rendered bool
	// Source names the element the content was extracted from; empty when
	// extraction did not run.
	Source string
	// URL is the final URL after redirects for remote inputs.
	URL string
}

// Pipeline wires the conversion stages to their collaborators.
type Pipeline struct {
	Fetcher  Fetcher
	Renderer Renderer
	// Cookies overrides the browser cookie store when Options.CookiesFrom is set.
	Cookies CookieSource
	Fs      afero.Fs
	Stdin   io.Reader
	Stdout  io.Writer
}

// New returns a pipeline backed by the network, headless Chrome and the
// operating system's filesystem and standard streams.
func New() *Pipeline {
	return &Pipeline{
		Fetcher:  fetcher.NewSimpleFetcher(),
		Renderer: fetcher.NewRenderer(),
		Fs:       afero.NewOsFs(),
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
	}
}

// Convert runs the default pipeline once.
func Convert(ctx context.Context, opts Options) (*Result, error) {
	return New().Run(ctx, opts)
}

// loaded is content retrieved from an input before conversion.
type loaded struct {
	content  string
	kind     input.ContentKind
	rendered bool
	url      string
}

// Run converts opts.Input and writes the result to opts.Output.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()

	inputKind, err := input.Detect(p.Fs, opts.Input)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("input", opts.Input).Str("kind", string(inputKind)).Msg("classified input")

	var doc *loaded
	switch inputKind {
	case input.KindURL:
		doc, err = p.loadURL(ctx, input.NormalizeURL(opts.Input), opts)
	case input.KindLocalFile:
		doc, err = p.loadFile(ctx, opts.Input, opts)
	default:
		doc, err = p.loadStdin(ctx, opts)
	}
	if err != nil {
		return nil, err
	}

	result := &Result{
		Input:    inputKind,
		Content:  doc.kind,
		Rendered: doc.rendered,
		URL:      doc.url,
	}

	switch {
	case opts.Raw:
		result.Text = doc.content
	case doc.kind.Passthrough():
		result.Text = processor.EnsureTrailingNewline(doc.content)
	default:
		text, source, err := toMarkdown(doc, opts)
		if err != nil {
			return nil, err
		}
		result.Text, result.Source = text, source
	}

	if err := p.write(opts.Output, result.Text); err != nil {
		return nil, err
	}

	log.Debug().
		Str("content", string(result.Content)).
		Bool("rendered", result.Rendered).
		Str("source", result.Source).
		Int("bytes", len(result.Text)).
		Dur("elapsed", time.Since(start)).
		Msg("conversion complete")

	return result, nil
}

func (p *Pipeline) loadURL(ctx context.Context, targetURL string, opts Options) (*loaded, error) {
	cookies := p.cookiesFor(ctx, targetURL, opts)

	// Raw Markdown and text files are fetched directly, without a browser.
	if kind := input.KindFromURL(targetURL); kind.Passthrough() || opts.NoJS {
		res, err := p.Fetcher.Fetch(ctx, targetURL, fetchOptions(opts, cookies))
		if err != nil {
			return nil, err
		}
		if !kind.Passthrough() {
			kind = input.KindFromContentType(res.ContentType)
		}
		return &loaded{content: string(res.Body), kind: kind, url: res.URL}, nil
	}

	html, err := p.Renderer.RenderURL(ctx, targetURL, renderOptions(opts, cookies))
	if err != nil {
		return nil, err
	}
	return &loaded{content: html, kind: input.ContentHTML, rendered: true, url: targetURL}, nil
}

func (p *Pipeline) loadFile(ctx context.Context, path string, opts Options) (*loaded, error) {
	data, err := afero.ReadFile(p.Fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrFileIO, err)
	}

	if kind := input.KindFromName(path); kind.Passthrough() {
		return &loaded{content: string(data), kind: kind}, nil
	}
	return p.loadHTML(ctx, string(data), opts)
}

func (p *Pipeline) loadStdin(ctx context.Context, opts Options) (*loaded, error) {
	if p.Stdin == nil {
		return nil, fmt.Errorf("%w: no standard input available", errs.ErrFileIO)
	}
	data, err := io.ReadAll(p.Stdin)
	if err != nil {
		return nil, fmt.Errorf("%w: reading standard input: %w", errs.ErrFileIO, err)
	}
	return p.loadHTML(ctx, string(data), opts)
}

// loadHTML renders local markup so that scripts run, unless NoJS is set.
func (p *Pipeline) loadHTML(ctx context.Context, html string, opts Options) (*loaded, error) {
	if opts.NoJS {
		return &loaded{content: html, kind: input.ContentHTML}, nil
	}
	rendered, err := p.Renderer.RenderHTML(ctx, html, renderOptions(opts, nil))
	if err != nil {
		return nil, err
	}
	return &loaded{content: rendered, kind: input.ContentHTML, rendered: true}, nil
}

// cookiesFor loads browser cookies for targetURL. Failures are logged and
// the request proceeds without cookies.
func (p *Pipeline) cookiesFor(ctx context.Context, targetURL string, opts Options) []*http.Cookie {
	if opts.CookiesFrom == "" {
		return nil
	}

	source := p.Cookies
	if source == nil {
		bt, err := browser.ParseBrowserType(opts.CookiesFrom)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring cookie browser")
			return nil
		}
		source = browser.NewCookieExtractor(bt, opts.CookiePaths)
	}

	cookies, err := source.Cookies(ctx, targetURL)
	if err != nil {
		log.Warn().Err(err).Str("url", targetURL).Msg("failed to load browser cookies")
		return nil
	}
	return cookies
}

func toMarkdown(doc *loaded, opts Options) (string, string, error) {
	if opts.Selector == "" && zerolog.GlobalLevel() <= zerolog.DebugLevel && !extractor.Readerable(doc.content) {
		log.Debug().Msg("page does not look like an article, extracting anyway")
	}

	extracted, err := extractor.Extract(doc.content, opts.Selector)
	if err != nil {
		return "", "", err
	}
	log.Debug().Str("source", extracted.Source).Int("bytes", len(extracted.HTML)).Msg("extracted main content")

	conv := processor.NewConverter(processor.ConverterOptions{
		StripTags: opts.StripTags,
		Domain:    doc.url,
	})
	md, err := conv.Convert(extracted.HTML)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", errs.ErrConversion, err)
	}

	text := processor.Normalize(md)
	if opts.TruncateLinks > 0 {
		text = processor.TruncateLinks(text, opts.TruncateLinks)
	}
	return text, extracted.Source, nil
}

func (p *Pipeline) write(path, text string) error {
	if path == "" {
		if _, err := io.WriteString(p.Stdout, text); err != nil {
			return fmt.Errorf("%w: writing to stdout: %w", errs.ErrFileIO, err)
		}
		return nil
	}

	if err := afero.WriteFile(p.Fs, path, []byte(text), 0644); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrFileIO, err)
	}
	log.Debug().Str("path", path).Msg("wrote output")
	return nil
}

func fetchOptions(opts Options, cookies []*http.Cookie) fetcher.FetchOptions {
	return fetcher.FetchOptions{
		Timeout:      opts.Timeout,
		UserAgent:    opts.UserAgent,
		BrowserAgent: opts.BrowserAgent,
		ProxyURL:     opts.ProxyURL,
		Cookies:      cookies,
	}
}

func renderOptions(opts Options, cookies []*http.Cookie) fetcher.RenderOptions {
	return fetcher.RenderOptions{
		Timeout:         opts.Timeout,
		WaitForSelector: opts.WaitFor,
		UserAgent:       opts.UserAgent,
		BrowserAgent:    opts.BrowserAgent,
		ProxyURL:        opts.ProxyURL,
		Headless:        opts.Headless,
		WaitUntil:       opts.WaitUntil,
		ViewportWidth:   opts.ViewportWidth,
		ViewportHeight:  opts.ViewportHeight,
		Locale:          opts.Locale,
		Timezone:        opts.Timezone,
		Cookies:         cookies,
	}
}
