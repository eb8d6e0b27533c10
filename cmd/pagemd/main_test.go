package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byteowlz/pagemd/internal/config"
	"github.com/byteowlz/pagemd/internal/errs"
	"github.com/byteowlz/pagemd/internal/fetcher"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: foo", errs.ErrUnresolvableInput), ExitInvalidInput},
		{fmt.Errorf("%w %q", errs.ErrInvalidSelector, "div["), ExitInvalidInput},
		{fmt.Errorf("%w: #x", errs.ErrSelectorNotFound), ExitProcessError},
		{fmt.Errorf("%w: boom", errs.ErrConversion), ExitProcessError},
		{fmt.Errorf("%w: open x: no such file", errs.ErrFileIO), ExitFileIOError},
		{fmt.Errorf("%w after 100ms", errs.ErrTimeout), ExitNetworkError},
		{errors.New("failed to fetch URL: connection refused"), ExitNetworkError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCodeFor(tt.err), tt.err.Error())
	}
}

func changedSet(names ...string) func(string) bool {
	set := map[string]bool{}
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func TestBuildOptions_ConfigValues(t *testing.T) {
	cfg := config.Default()
	cfg.Render.TimeoutMS = 5000
	cfg.Render.WaitUntil = "load"
	cfg.Extraction.Selector = "article"
	cfg.Output.TruncateLinks = 30
	cfg.Cookies.Browser = "firefox"

	timeoutMS, selector = 999, "ignored"
	defer func() { timeoutMS, selector = 30000, "" }()

	opts, err := buildOptions(cfg, changedSet())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, fetcher.LoadLoad, opts.WaitUntil)
	assert.Equal(t, "article", opts.Selector)
	assert.Equal(t, 30, opts.TruncateLinks)
	assert.Equal(t, "firefox", opts.CookiesFrom)
	assert.True(t, opts.Headless)
	assert.Equal(t, 1920, opts.ViewportWidth)
}

func TestBuildOptions_FlagsOverrideConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Extraction.Selector = "article"

	timeoutMS, waitUntil, selector, headless, truncateLinks = 1500, "commit", "#main", false, 42
	stripTags = []string{"form"}
	defer func() {
		timeoutMS, waitUntil, selector, headless, truncateLinks = 30000, "networkidle", "", true, 0
		stripTags = nil
	}()

	opts, err := buildOptions(cfg, changedSet("timeout", "wait-until", "selector", "headless", "truncate-links", "strip-tags"))
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, opts.Timeout)
	assert.Equal(t, fetcher.LoadCommit, opts.WaitUntil)
	assert.Equal(t, "#main", opts.Selector)
	assert.False(t, opts.Headless)
	assert.Equal(t, 42, opts.TruncateLinks)
	assert.Equal(t, []string{"form"}, opts.StripTags)
}

func TestBuildOptions_Invalid(t *testing.T) {
	waitUntil = "eventually"
	defer func() { waitUntil = "networkidle" }()

	_, err := buildOptions(config.Default(), changedSet("wait-until"))
	assert.Error(t, err)
}

func TestTruncateLinksBareFlag(t *testing.T) {
	flag := rootCmd.Flags().Lookup("truncate-links")
	require.NotNil(t, flag)
	assert.Equal(t, "42", flag.NoOptDefVal)
	assert.Equal(t, "0", flag.DefValue)
}
