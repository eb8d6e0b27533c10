package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/byteowlz/pagemd/internal/config"
	"github.com/byteowlz/pagemd/internal/errs"
	"github.com/byteowlz/pagemd/internal/fetcher"
	"github.com/byteowlz/pagemd/internal/logger"
	"github.com/byteowlz/pagemd/internal/processor"
	"github.com/byteowlz/pagemd/pkg/pagemd"
)

// Exit codes for granular error handling
const (
	ExitSuccess      = 0
	ExitNetworkError = 1
	ExitProcessError = 2
	ExitInvalidInput = 3
	ExitConfigError  = 4
	ExitFileIOError  = 5
)

var (
	cfgFile         string
	initConfigFile  bool
	outputFile      string
	waitFor         string
	timeoutMS       int
	noJS            bool
	selector        string
	userAgent       string
	browserAgent    string
	proxyURL        string
	headless        bool
	waitUntil       string
	raw             bool
	truncateLinks   int
	stripTags       []string
	cookiesFrom     string
	ignoreRobotsTxt bool
	verbose         bool
	quiet           bool
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "pagemd [input]",
	Short: "Convert web pages and HTML to clean Markdown",
	Long: `pagemd renders a URL, a local HTML file or standard input in a headless
browser, extracts the main content and prints it as Markdown.

Markdown and plain-text inputs (.md, .txt, .json, ...) are passed through
unchanged. Omit the input or use "-" to read from standard input.`,
	Args:          cobra.MaximumNArgs(1),
	Version:       version,
	RunE:          run,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitErr
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitInvalidInput)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/pagemd/config.toml)")
	rootCmd.Flags().BoolVar(&initConfigFile, "init-config", false, "write an example config file and exit")

	// Input/Output flags
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	rootCmd.Flags().BoolVar(&raw, "raw", false, "output the fetched content without converting to Markdown")

	// Rendering flags
	rootCmd.Flags().StringVar(&waitFor, "wait-for", "", "CSS selector to wait for before extracting")
	rootCmd.Flags().IntVar(&timeoutMS, "timeout", 30000, "page load timeout in milliseconds")
	rootCmd.Flags().BoolVar(&noJS, "no-js", false, "disable JavaScript rendering (plain HTTP fetch)")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless (--headless=false for a visible window)")
	rootCmd.Flags().StringVar(&waitUntil, "wait-until", string(fetcher.LoadNetworkIdle), "load condition (commit|domcontentloaded|load|networkidle)")

	// Network flags
	rootCmd.Flags().StringVar(&userAgent, "user-agent", "", "custom user agent string")
	rootCmd.Flags().StringVar(&browserAgent, "browser-agent", "", "browser agent type (auto|chrome|firefox|safari|edge)")
	rootCmd.Flags().StringVar(&proxyURL, "proxy-url", "", "proxy server URL")
	rootCmd.Flags().StringVar(&cookiesFrom, "cookies-from", "", "send cookies from a local browser (auto|chrome|firefox|safari|zen)")
	rootCmd.Flags().BoolVar(&ignoreRobotsTxt, "ignore-robots-txt", false, "accepted for compatibility; robots.txt is never fetched")

	// Content processing flags
	rootCmd.Flags().StringVarP(&selector, "selector", "s", "", "CSS selector for the content to extract")
	rootCmd.Flags().IntVar(&truncateLinks, "truncate-links", 0, "truncate link URLs longer than N characters (bare flag: "+strconv.Itoa(processor.DefaultLinkLength)+")")
	rootCmd.Flags().Lookup("truncate-links").NoOptDefVal = strconv.Itoa(processor.DefaultLinkLength)
	rootCmd.Flags().StringSliceVar(&stripTags, "strip-tags", nil, "HTML tags to remove before conversion (comma separated)")

	// System flags
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print errors")
}

func run(cmd *cobra.Command, args []string) error {
	if initConfigFile {
		return writeExampleConfig()
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return exitError(ExitConfigError, "Error: failed to load config: %v", err)
	}

	opts, err := buildOptions(cfg, cmd.Flags().Changed)
	if err != nil {
		return exitError(ExitConfigError, "Error: %v", err)
	}
	if len(args) > 0 {
		opts.Input = args[0]
	}

	logger.Init(logger.Options{Verbose: verbose, Quiet: quiet, Level: cfg.Logging.Level})
	if ignoreRobotsTxt {
		log.Debug().Msg("robots.txt is not consulted; --ignore-robots-txt has no effect")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if _, err := pagemd.New().Run(ctx, opts); err != nil {
		return exitError(exitCodeFor(err), "Error: %v", err)
	}
	return nil
}

// buildOptions layers explicitly set flags over the loaded config.
func buildOptions(cfg *config.Config, changed func(string) bool) (pagemd.Options, error) {
	if changed("timeout") {
		cfg.Render.TimeoutMS = timeoutMS
	}
	if changed("wait-until") {
		cfg.Render.WaitUntil = waitUntil
	}
	if changed("headless") {
		cfg.Render.Headless = headless
	}
	if changed("user-agent") {
		cfg.Network.UserAgent = userAgent
	}
	if changed("browser-agent") {
		cfg.Network.BrowserAgent = browserAgent
	}
	if changed("proxy-url") {
		cfg.Network.ProxyURL = proxyURL
	}
	if changed("selector") {
		cfg.Extraction.Selector = selector
	}
	if changed("strip-tags") {
		cfg.Extraction.StripTags = stripTags
	}
	if changed("truncate-links") {
		cfg.Output.TruncateLinks = truncateLinks
	}
	if changed("cookies-from") {
		cfg.Cookies.Browser = cookiesFrom
	}

	if err := cfg.Validate(); err != nil {
		return pagemd.Options{}, err
	}

	cond, err := fetcher.ParseLoadCondition(cfg.Render.WaitUntil)
	if err != nil {
		return pagemd.Options{}, err
	}

	return pagemd.Options{
		Output:         outputFile,
		Timeout:        time.Duration(cfg.Render.TimeoutMS) * time.Millisecond,
		WaitFor:        waitFor,
		NoJS:           noJS,
		Headless:       cfg.Render.Headless,
		WaitUntil:      cond,
		UserAgent:      cfg.Network.UserAgent,
		BrowserAgent:   cfg.Network.BrowserAgent,
		ProxyURL:       cfg.Network.ProxyURL,
		Selector:       cfg.Extraction.Selector,
		StripTags:      cfg.Extraction.StripTags,
		Raw:            raw,
		TruncateLinks:  cfg.Output.TruncateLinks,
		CookiesFrom:    cfg.Cookies.Browser,
		CookiePaths:    cfg.Cookies.Paths,
		ViewportWidth:  cfg.Render.ViewportWidth,
		ViewportHeight: cfg.Render.ViewportHeight,
		Locale:         cfg.Render.Locale,
		Timezone:       cfg.Render.Timezone,
	}, nil
}

func writeExampleConfig() error {
	path := cfgFile
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return exitError(ExitConfigError, "Error: %v", err)
		}
	}

	if err := config.Default().CreateExampleConfig(path); err != nil {
		return exitError(ExitFileIOError, "Error: %v", err)
	}
	if !quiet {
		fmt.Fprintf(os.Stderr, "Created config file: %s\n", path)
	}
	return nil
}

// exitCodeFor maps pipeline failures onto exit codes.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrUnresolvableInput), errors.Is(err, errs.ErrInvalidSelector):
		return ExitInvalidInput
	case errors.Is(err, errs.ErrSelectorNotFound), errors.Is(err, errs.ErrConversion):
		return ExitProcessError
	case errors.Is(err, errs.ErrFileIO):
		return ExitFileIOError
	default:
		return ExitNetworkError
	}
}

type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string {
	return e.msg
}

func exitError(code int, format string, args ...interface{}) *exitErr {
	msg := fmt.Sprintf(format, args...)
	if msg != "" {
		fmt.Fprintf(os.Stderr, "%s\n", msg)
	}
	return &exitErr{code: code, msg: msg}
}
