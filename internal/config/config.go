package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/byteowlz/pagemd/internal/fetcher"
)

type Config struct {
	Render     RenderConfig     `mapstructure:"render"`
	Network    NetworkConfig    `mapstructure:"network"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Output     OutputConfig     `mapstructure:"output"`
	Cookies    CookiesConfig    `mapstructure:"cookies"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type RenderConfig struct {
	TimeoutMS      int    `mapstructure:"timeout_ms" validate:"gt=0"`
	WaitUntil      string `mapstructure:"wait_until" validate:"oneof=commit domcontentloaded load networkidle"`
	Headless       bool   `mapstructure:"headless"`
	ViewportWidth  int    `mapstructure:"viewport_width" validate:"gt=0"`
	ViewportHeight int    `mapstructure:"viewport_height" validate:"gt=0"`
	Locale         string `mapstructure:"locale"`
	Timezone       string `mapstructure:"timezone"`
}

type NetworkConfig struct {
	UserAgent    string `mapstructure:"user_agent"`
	BrowserAgent string `mapstructure:"browser_agent"`
	ProxyURL     string `mapstructure:"proxy_url" validate:"omitempty,url"`
}

type ExtractionConfig struct {
	Selector  string   `mapstructure:"selector"`
	StripTags []string `mapstructure:"strip_tags"`
}

type OutputConfig struct {
	// TruncateLinks is the maximum link URL length; 0 disables truncation.
	TruncateLinks int `mapstructure:"truncate_links" validate:"gte=0"`
}

type CookiesConfig struct {
	// Browser to read cookies from; empty disables cookie injection.
	Browser string            `mapstructure:"browser" validate:"omitempty,oneof=auto chrome firefox safari zen"`
	Paths   map[string]string `mapstructure:"paths"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
}

func Default() *Config {
	return &Config{
		Render: RenderConfig{
			TimeoutMS:      30000,
			WaitUntil:      string(fetcher.LoadNetworkIdle),
			Headless:       true,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			Locale:         "en-US",
			Timezone:       "America/New_York",
		},
		Network:    NetworkConfig{},
		Extraction: ExtractionConfig{StripTags: []string{}},
		Output:     OutputConfig{TruncateLinks: 0},
		Cookies:    CookiesConfig{Paths: map[string]string{}},
		Logging:    LoggingConfig{Level: "info"},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/pagemd/config.toml, falling back to
// ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("error finding home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "pagemd", "config.toml"), nil
}

func Load(configFile string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), configFile)
}

// LoadFs reads configuration from fs. An explicit configFile must exist; the
// default location is optional. Environment variables prefixed PAGEMD_
// override file values (PAGEMD_RENDER_TIMEOUT_MS, ...).
func LoadFs(fs afero.Fs, configFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("toml")
	setDefaults(v, cfg)

	explicit := configFile != ""
	if !explicit {
		path, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		configFile = path
	}
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("PAGEMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		exists, _ := afero.Exists(fs, configFile)
		var notFound viper.ConfigFileNotFoundError
		if explicit || exists || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return cfg, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("render.timeout_ms", cfg.Render.TimeoutMS)
	v.SetDefault("render.wait_until", cfg.Render.WaitUntil)
	v.SetDefault("render.headless", cfg.Render.Headless)
	v.SetDefault("render.viewport_width", cfg.Render.ViewportWidth)
	v.SetDefault("render.viewport_height", cfg.Render.ViewportHeight)
	v.SetDefault("render.locale", cfg.Render.Locale)
	v.SetDefault("render.timezone", cfg.Render.Timezone)
	v.SetDefault("network.user_agent", cfg.Network.UserAgent)
	v.SetDefault("network.browser_agent", cfg.Network.BrowserAgent)
	v.SetDefault("network.proxy_url", cfg.Network.ProxyURL)
	v.SetDefault("extraction.selector", cfg.Extraction.Selector)
	v.SetDefault("extraction.strip_tags", cfg.Extraction.StripTags)
	v.SetDefault("output.truncate_links", cfg.Output.TruncateLinks)
	v.SetDefault("cookies.browser", cfg.Cookies.Browser)
	v.SetDefault("cookies.paths", cfg.Cookies.Paths)
	v.SetDefault("logging.level", cfg.Logging.Level)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their config key rather than the Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate lower-cases enumerated settings and reports the first invalid one.
func (c *Config) Validate() error {
	c.Render.WaitUntil = strings.ToLower(strings.TrimSpace(c.Render.WaitUntil))
	c.Cookies.Browser = strings.ToLower(strings.TrimSpace(c.Cookies.Browser))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("invalid config: %w", err)
	}
	return fmt.Errorf("invalid config: %s", formatFieldError(fieldErrs[0]))
}

func formatFieldError(e validator.FieldError) string {
	key := e.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}

	switch e.Tag() {
	case "gt":
		return fmt.Sprintf("%s must be greater than %s, got %v", key, e.Param(), e.Value())
	case "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", key, e.Param(), e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", key, e.Param(), e.Value())
	case "url":
		return fmt.Sprintf("%s must be a valid URL, got %q", key, e.Value())
	default:
		return fmt.Sprintf("%s failed validation '%s'", key, e.Tag())
	}
}

func (c *Config) CreateExampleConfig(configPath string) error {
	return c.WriteExampleConfig(afero.NewOsFs(), configPath)
}

// WriteExampleConfig writes a commented config file to configPath. An
// existing file is left untouched.
func (c *Config) WriteExampleConfig(fs afero.Fs, configPath string) error {
	if exists, err := afero.Exists(fs, configPath); err != nil {
		return fmt.Errorf("error checking config file: %w", err)
	} else if exists {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	if err := fs.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	return afero.WriteFile(fs, configPath, []byte(exampleConfig), 0644)
}

const exampleConfig = `# pagemd configuration file
# Command-line flags override these values.

[render]
timeout_ms = 30000          # page load timeout in milliseconds
wait_until = "networkidle"  # commit, domcontentloaded, load, networkidle
headless = true
viewport_width = 1920
viewport_height = 1080
locale = "en-US"
timezone = "America/New_York"

[network]
user_agent = ""             # custom User-Agent (empty = default)
browser_agent = ""          # auto, chrome, firefox, safari, edge
proxy_url = ""              # e.g. http://127.0.0.1:8080

[extraction]
selector = ""               # CSS selector for the content root (empty = heuristic)
strip_tags = []             # tags removed before conversion, e.g. ["form", "table"]

[output]
truncate_links = 0          # max link URL length (0 = keep full URLs)

[cookies]
browser = ""                # auto, chrome, firefox, safari, zen (empty = no cookies)

# Browser profile paths (optional, auto-detected if empty)
[cookies.paths]
chrome = ""
firefox = ""
safari = ""
zen = ""

[logging]
level = "info"              # debug, info, warn, error
`
