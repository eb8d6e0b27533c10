package pagemd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byteowlz/pagemd/internal/errs"
	"github.com/byteowlz/pagemd/internal/fetcher"
	"github.com/byteowlz/pagemd/internal/input"
)

type fakeRenderer struct {
	html      string
	err       error
	urls      []string
	documents []string
	opts      []fetcher.RenderOptions
}

func (f *fakeRenderer) RenderURL(_ context.Context, url string, opts fetcher.RenderOptions) (string, error) {
	f.urls = append(f.urls, url)
	f.opts = append(f.opts, opts)
	return f.html, f.err
}

func (f *fakeRenderer) RenderHTML(_ context.Context, html string, opts fetcher.RenderOptions) (string, error) {
	f.documents = append(f.documents, html)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return "", f.err
	}
	if f.html != "" {
		return f.html, nil
	}
	return html, nil
}

type fakeCookies struct {
	cookies []*http.Cookie
	err     error
	urls    []string
}

func (f *fakeCookies) Cookies(_ context.Context, url string) ([]*http.Cookie, error) {
	f.urls = append(f.urls, url)
	return f.cookies, f.err
}

type testPipeline struct {
	*Pipeline
	fs       afero.Fs
	stdout   *bytes.Buffer
	renderer *fakeRenderer
}

func newTestPipeline(stdin string, client *http.Client) *testPipeline {
	fs := afero.NewMemMapFs()
	stdout := &bytes.Buffer{}
	renderer := &fakeRenderer{}

	var f Fetcher = fetcher.NewSimpleFetcher()
	if client != nil {
		f = fetcher.NewSimpleFetcherWithClient(client)
	}

	return &testPipeline{
		Pipeline: &Pipeline{
			Fetcher:  f,
			Renderer: renderer,
			Fs:       fs,
			Stdin:    strings.NewReader(stdin),
			Stdout:   stdout,
		},
		fs:       fs,
		stdout:   stdout,
		renderer: renderer,
	}
}

const samplePage = `<html><body><h1>T</h1><p><strong>b</strong></p></body></html>`

func TestRun_StdinHTML(t *testing.T) {
	tp := newTestPipeline(samplePage, nil)

	res, err := tp.Run(context.Background(), DefaultOptions())
	require.NoError(t, err)

	assert.Contains(t, res.Text, "# T")
	assert.Contains(t, res.Text, "**b**")
	assert.Equal(t, input.KindStdin, res.Input)
	assert.Equal(t, input.ContentHTML, res.Content)
	assert.True(t, res.Rendered)
	assert.Equal(t, "body", res.Source)
	assert.Equal(t, res.Text, tp.stdout.String())
	assert.Equal(t, []string{samplePage}, tp.renderer.documents)
	assert.True(t, strings.HasSuffix(res.Text, "\n"))
	assert.False(t, strings.HasSuffix(res.Text, "\n\n"))
}

func TestRun_StdinNoJS(t *testing.T) {
	tp := newTestPipeline(samplePage, nil)
	opts := DefaultOptions()
	opts.Input = "-"
	opts.NoJS = true

	res, err := tp.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, res.Rendered)
	assert.Empty(t, tp.renderer.documents)
	assert.Contains(t, res.Text, "# T")
}

func TestRun_JSONFilePassthrough(t *testing.T) {
	tp := newTestPipeline("", nil)
	body := `{"title": "<h1>not html</h1>", "n": 1}`
	require.NoError(t, afero.WriteFile(tp.fs, "data.json", []byte(body), 0644))

	opts := DefaultOptions()
	opts.Input = "data.json"

	res, err := tp.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, body+"\n", res.Text)
	assert.Equal(t, input.KindLocalFile, res.Input)
	assert.Equal(t, input.ContentPlainText, res.Content)
	assert.Empty(t, tp.renderer.documents, "passthrough never reaches the browser")
}

func TestRun_MarkdownFilePassthrough(t *testing.T) {
	tp := newTestPipeline("", nil)
	body := "# Notes\n\n\n\n[a](https://example.com/a/very/long/link/that/stays)\n\n"
	require.NoError(t, afero.WriteFile(tp.fs, "notes.MD", []byte(body), 0644))

	opts := DefaultOptions()
	opts.Input = "notes.MD"
	opts.TruncateLinks = 10

	res, err := tp.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, input.ContentMarkdown, res.Content)
	assert.Equal(t, "# Notes\n\n\n\n[a](https://example.com/a/very/long/link/that/stays)\n", res.Text)
}

func TestRun_HTMLFileToOutputFile(t *testing.T) {
	tp := newTestPipeline("", nil)
	page := `<html><body><nav><a href="/">Home</a></nav><main><h2>Guide</h2>` +
		`<p>See <a href="https://example.com/docs/reference/section/subsection">the docs</a>.</p>` +
		`<script>alert(1)</script></main></body></html>`
	require.NoError(t, afero.WriteFile(tp.fs, "/in/page.html", []byte(page), 0644))

	opts := DefaultOptions()
	opts.Input = "/in/page.html"
	opts.Output = "/out/page.md"
	opts.TruncateLinks = 42

	res, err := tp.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "main", res.Source)
	assert.Empty(t, tp.stdout.String())

	written, err := afero.ReadFile(tp.fs, "/out/page.md")
	require.NoError(t, err)
	assert.Equal(t, res.Text, string(written))
	assert.Contains(t, res.Text, "## Guide")
	assert.Contains(t, res.Text, "[the docs](https://example.com/docs/reference/sectio…)")
	assert.NotContains(t, res.Text, "Home")
	assert.NotContains(t, res.Text, "alert")
}

func TestRun_Raw(t *testing.T) {
	tp := newTestPipeline(samplePage, nil)
	tp.renderer.html = "<html><body><p>rendered</p></body></html>"

	opts := DefaultOptions()
	opts.Raw = true

	res, err := tp.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "<html><body><p>rendered</p></body></html>", res.Text)
	assert.Empty(t, res.Source)
}

func TestRun_SelectorNotFound(t *testing.T) {
	tp := newTestPipeline(samplePage, nil)
	opts := DefaultOptions()
	opts.Selector = "#missing"

	_, err := tp.Run(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSelectorNotFound))
	assert.Empty(t, tp.stdout.String(), "nothing is written on failure")
}

func TestRun_Selector(t *testing.T) {
	tp := newTestPipeline(`<html><body><nav>menu</nav><div id="x"><p>picked</p></div><p>other</p></body></html>`, nil)
	opts := DefaultOptions()
	opts.Selector = "#x"

	res, err := tp.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "picked\n", res.Text)
}

func TestRun_StripTags(t *testing.T) {
	tp := newTestPipeline(`<html><body><main><p>keep</p><form><p>drop</p></form></main></body></html>`, nil)
	opts := DefaultOptions()
	opts.StripTags = []string{"form"}

	res, err := tp.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "keep\n", res.Text)
}

func TestRun_URLRendered(t *testing.T) {
	tp := newTestPipeline("", nil)
	tp.renderer.html = `<html><body><article><h1>News</h1><a href="/more">More</a></article></body></html>`

	opts := DefaultOptions()
	opts.Input = "example.com/news"
	opts.WaitFor = "#app"
	opts.WaitUntil = fetcher.LoadLoad
	opts.Timeout = 5 * time.Second

	res, err := tp.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/news"}, tp.renderer.urls)
	require.Len(t, tp.renderer.opts, 1)
	assert.Equal(t, "#app", tp.renderer.opts[0].WaitForSelector)
	assert.Equal(t, fetcher.LoadLoad, tp.renderer.opts[0].WaitUntil)
	assert.Equal(t, 5*time.Second, tp.renderer.opts[0].Timeout)

	assert.True(t, res.Rendered)
	assert.Equal(t, "article", res.Source)
	assert.Contains(t, res.Text, "# News")
	assert.Contains(t, res.Text, "[More](https://example.com/more)")
}

func TestRun_RenderTimeout(t *testing.T) {
	tp := newTestPipeline("", nil)
	tp.renderer.err = errs.ErrTimeout

	opts := DefaultOptions()
	opts.Input = "https://slow.example.com"

	_, err := tp.Run(context.Background(), opts)
	assert.True(t, errors.Is(err, errs.ErrTimeout))
}

func TestRun_URLFetchPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/README.md":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("# Readme"))
		case "/plain":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("just text"))
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(samplePage))
		}
	}))
	defer srv.Close()

	t.Run("markdown extension skips the browser", func(t *testing.T) {
		tp := newTestPipeline("", srv.Client())
		opts := DefaultOptions()
		opts.Input = srv.URL + "/README.md"

		res, err := tp.Run(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, input.ContentMarkdown, res.Content)
		assert.Equal(t, "# Readme\n", res.Text)
		assert.False(t, res.Rendered)
		assert.Empty(t, tp.renderer.urls)
	})

	t.Run("no-js html is converted", func(t *testing.T) {
		tp := newTestPipeline("", srv.Client())
		opts := DefaultOptions()
		opts.Input = srv.URL + "/page"
		opts.NoJS = true

		res, err := tp.Run(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, input.ContentHTML, res.Content)
		assert.Contains(t, res.Text, "# T")
		assert.Empty(t, tp.renderer.urls)
	})

	t.Run("no-js plain text content type passes through", func(t *testing.T) {
		tp := newTestPipeline("", srv.Client())
		opts := DefaultOptions()
		opts.Input = srv.URL + "/plain"
		opts.NoJS = true

		res, err := tp.Run(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, input.ContentPlainText, res.Content)
		assert.Equal(t, "just text\n", res.Text)
	})
}

func TestRun_Cookies(t *testing.T) {
	tp := newTestPipeline("", nil)
	tp.renderer.html = samplePage
	cookies := &fakeCookies{cookies: []*http.Cookie{{Name: "sid", Value: "1"}}}
	tp.Cookies = cookies

	opts := DefaultOptions()
	opts.Input = "https://example.com"
	opts.CookiesFrom = "chrome"

	_, err := tp.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com"}, cookies.urls)
	require.Len(t, tp.renderer.opts, 1)
	assert.Equal(t, cookies.cookies, tp.renderer.opts[0].Cookies)
}

func TestRun_CookieFailureIsNotFatal(t *testing.T) {
	tp := newTestPipeline("", nil)
	tp.renderer.html = samplePage
	tp.Cookies = &fakeCookies{err: errors.New("store locked")}

	opts := DefaultOptions()
	opts.Input = "https://example.com"
	opts.CookiesFrom = "auto"

	res, err := tp.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "# T")
	assert.Nil(t, tp.renderer.opts[0].Cookies)
}

func TestRun_CookiesOnlyWhenRequested(t *testing.T) {
	tp := newTestPipeline("", nil)
	tp.renderer.html = samplePage
	cookies := &fakeCookies{}
	tp.Cookies = cookies

	opts := DefaultOptions()
	opts.Input = "https://example.com"

	_, err := tp.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, cookies.urls)
}

func TestRun_Unresolvable(t *testing.T) {
	tp := newTestPipeline("", nil)
	opts := DefaultOptions()
	opts.Input = "/no/such/file"

	_, err := tp.Run(context.Background(), opts)
	assert.True(t, errors.Is(err, errs.ErrUnresolvableInput))
}

func TestRun_WriteFailure(t *testing.T) {
	tp := newTestPipeline(samplePage, nil)
	tp.Fs = afero.NewReadOnlyFs(tp.fs)

	opts := DefaultOptions()
	opts.Output = "/out.md"

	_, err := tp.Run(context.Background(), opts)
	assert.True(t, errors.Is(err, errs.ErrFileIO))
}
