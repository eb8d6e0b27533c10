package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

type FetchOptions struct {
	Timeout      time.Duration
	UserAgent    string
	BrowserAgent string
	ProxyURL     string
	Cookies      []*http.Cookie
}

type FetchResult struct {
	Body        []byte
	ContentType string
	URL         string
}

// SimpleFetcher performs a plain HTTP GET without executing scripts.
type SimpleFetcher struct {
	client          *http.Client
	userAgentSelect *UserAgentSelector
}

func NewSimpleFetcher() *SimpleFetcher {
	return &SimpleFetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgentSelect: NewUserAgentSelector(),
	}
}

// NewSimpleFetcherWithClient is used by tests to point at an httptest server.
func NewSimpleFetcherWithClient(client *http.Client) *SimpleFetcher {
	return &SimpleFetcher{
		client:          client,
		userAgentSelect: NewUserAgentSelector(),
	}
}

func (sf *SimpleFetcher) Fetch(ctx context.Context, targetURL string, opts FetchOptions) (*FetchResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", sf.userAgentSelect.Resolve(opts.UserAgent, opts.BrowserAgent))
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/markdown;q=0.9,text/plain;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	for _, cookie := range opts.Cookies {
		req.AddCookie(cookie)
	}

	client, err := sf.clientFor(opts.ProxyURL)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("url", targetURL).Str("proxy", opts.ProxyURL).Int("cookies", len(opts.Cookies)).Msg("fetching over HTTP")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	log.Debug().Str("url", targetURL).Int("bytes", len(body)).Str("content_type", resp.Header.Get("Content-Type")).Msg("HTTP fetch complete")

	return &FetchResult{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		URL:         resp.Request.URL.String(),
	}, nil
}

// clientFor returns a client routed through proxyURL, or the default client.
func (sf *SimpleFetcher) clientFor(proxyURL string) (*http.Client, error) {
	if proxyURL == "" {
		return sf.client, nil
	}

	proxy, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyURL(proxy)

	client := *sf.client
	client.Transport = transport
	return &client, nil
}
