// Package config loads harvester settings from defaults, an optional YAML
// file, a .env file, HARVEST_* environment variables and bound CLI flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is prepended to every environment override, e.g.
// HARVEST_FETCH_PAGE_TIMEOUT for fetch.page_timeout.
const EnvPrefix = "HARVEST"

// DefaultTarget is the campaign page harvested when no URL is given.
const DefaultTarget = "https://event.rakuten.co.jp/campaign/supersale/?l-id=top_normal_emergency_pc_big01"

// Config is the complete harvester configuration.
type Config struct {
	Target   TargetConfig   `mapstructure:"target"`
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Store    StoreConfig    `mapstructure:"store"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// TargetConfig names the page and the extractor that understands it.
type TargetConfig struct {
	URL  string `mapstructure:"url"`
	Site string `mapstructure:"site"`
}

// HarvestConfig is the per-cycle policy.
type HarvestConfig struct {
	// MaxItems caps product candidates per cycle; 0 means no cap.
	MaxItems    int           `mapstructure:"max_items"`
	MaxBanners  int           `mapstructure:"max_banners"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// FetchConfig controls page loading.
type FetchConfig struct {
	// Static fetches plain HTML over HTTP instead of driving a browser.
	Static       bool          `mapstructure:"static"`
	Headless     bool          `mapstructure:"headless"`
	Proxy        string        `mapstructure:"proxy"`
	UserAgent    string        `mapstructure:"user_agent"`
	BlockedHosts []string      `mapstructure:"blocked_hosts"`
	PageTimeout  time.Duration `mapstructure:"page_timeout"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
	ScrollStep   int           `mapstructure:"scroll_step"`
	ScrollPause  time.Duration `mapstructure:"scroll_pause"`
	MaxScrolls   int           `mapstructure:"max_scrolls"`
}

// EnrichConfig controls translation and OCR.
type EnrichConfig struct {
	Workers   int             `mapstructure:"workers"`
	CacheSize int             `mapstructure:"cache_size"`
	Translate TranslateConfig `mapstructure:"translate"`
	OCR       OCRConfig       `mapstructure:"ocr"`
}

// TranslateConfig configures the translation client.
type TranslateConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Source  string        `mapstructure:"source"`
	Target  string        `mapstructure:"target"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// OCRConfig configures banner text recognition.
type OCRConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	ServerURL        string        `mapstructure:"server_url"`
	Languages        []string      `mapstructure:"languages"`
	ImageTimeout     time.Duration `mapstructure:"image_timeout"`
	ImageRetries     int           `mapstructure:"image_retries"`
	RecognizeTimeout time.Duration `mapstructure:"recognize_timeout"`
	MinWidth         int           `mapstructure:"min_width"`
	MinHeight        int           `mapstructure:"min_height"`
}

// StoreConfig locates the corpus file.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Development bool     `mapstructure:"development"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// ScheduleConfig configures monitoring. Interval is kept as text so that
// "60" and "5m" are both accepted; see ParseInterval.
type ScheduleConfig struct {
	Interval              string `mapstructure:"interval"`
	Rounds                int    `mapstructure:"rounds"`
	FailureAlertThreshold int    `mapstructure:"failure_alert_threshold"`
}

// IntervalDuration parses Interval.
func (s ScheduleConfig) IntervalDuration() (time.Duration, error) {
	return ParseInterval(s.Interval)
}

// Loader accumulates configuration sources before Load.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a Loader with defaults and environment overrides set up.
// A .env file in the working directory is loaded into the environment first
// when present.
func NewLoader() *Loader {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return &Loader{v: v}
}

// BindFlags binds flags by name to config keys. Only flags the user set
// override lower-precedence sources.
func (l *Loader) BindFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		f := flags.Lookup(name)
		if f == nil {
			return fmt.Errorf("bind flag %q: no such flag", name)
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

// Load reads file when non-empty, otherwise config.yaml from . or ./config
// when present, then decodes and validates the result.
func (l *Loader) Load(file string) (*Config, error) {
	if file != "" {
		l.v.SetConfigFile(file)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("./config")
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is shorthand for NewLoader().Load(file).
func Load(file string) (*Config, error) {
	return NewLoader().Load(file)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target", map[string]any{
		"url":  DefaultTarget,
		"site": "rakuten",
	})
	v.SetDefault("harvest", map[string]any{
		"max_items":    50,
		"max_banners":  20,
		"max_attempts": 2,
		"retry_delay":  "5s",
	})
	v.SetDefault("fetch", map[string]any{
		"static":   false,
		"headless": true,
		"proxy":    "",
		"user_agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"blocked_hosts": []string{
			"doubleclick", "googletagmanager", "analytics",
			"facebook", "adservice", "scorecardresearch",
		},
		"page_timeout":  "60s",
		"ready_timeout": "15s",
		"scroll_step":   1500,
		"scroll_pause":  "500ms",
		"max_scrolls":   10,
	})
	v.SetDefault("enrich", map[string]any{
		"workers":    4,
		"cache_size": 1000,
		"translate": map[string]any{
			"base_url": "https://translate.googleapis.com",
			"source":   "ja",
			"target":   "en",
			"timeout":  "10s",
			"retries":  1,
		},
		"ocr": map[string]any{
			"enabled":           false,
			"server_url":        "http://127.0.0.1:8884",
			"languages":         []string{"jpn", "eng"},
			"image_timeout":     "10s",
			"image_retries":     1,
			"recognize_timeout": "30s",
			"min_width":         200,
			"min_height":        50,
		},
	})
	v.SetDefault("store", map[string]any{
		"path": "ai_storage.json",
	})
	v.SetDefault("server", map[string]any{
		"address":       "127.0.0.1:8000",
		"read_timeout":  "15s",
		"write_timeout": "0s",
		"idle_timeout":  "60s",
	})
	v.SetDefault("log", map[string]any{
		"level":        "info",
		"development":  false,
		"output_paths": []string{"stderr"},
	})
	v.SetDefault("schedule", map[string]any{
		"interval":                "0",
		"rounds":                  0,
		"failure_alert_threshold": 3,
	})
}

// ParseInterval accepts a bare number of seconds ("60") or a Go duration
// ("5m", "90s"). The empty string is zero.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("%w: interval %q is negative", ErrInvalid, s)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: interval %q: %w", ErrInvalid, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: interval %q is negative", ErrInvalid, s)
	}
	return d, nil
}

// Validate checks every operator-controlled value.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	u, err := url.Parse(c.Target.URL)
	check(err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "",
		"target.url must be an absolute http(s) URL, got %q", c.Target.URL)
	check(c.Target.Site != "", "target.site is required")

	check(c.Harvest.MaxItems >= 0, "harvest.max_items must be >= 0, got %d", c.Harvest.MaxItems)
	check(c.Harvest.MaxBanners >= 0, "harvest.max_banners must be >= 0, got %d", c.Harvest.MaxBanners)
	check(c.Harvest.MaxAttempts >= 1, "harvest.max_attempts must be >= 1, got %d", c.Harvest.MaxAttempts)
	check(c.Harvest.RetryDelay >= 0, "harvest.retry_delay must be >= 0, got %s", c.Harvest.RetryDelay)

	check(c.Fetch.PageTimeout > 0, "fetch.page_timeout must be positive, got %s", c.Fetch.PageTimeout)
	check(c.Fetch.ReadyTimeout > 0, "fetch.ready_timeout must be positive, got %s", c.Fetch.ReadyTimeout)
	check(c.Fetch.MaxScrolls >= 0, "fetch.max_scrolls must be >= 0, got %d", c.Fetch.MaxScrolls)

	check(c.Enrich.Workers >= 1, "enrich.workers must be >= 1, got %d", c.Enrich.Workers)
	check(c.Enrich.CacheSize >= 1, "enrich.cache_size must be >= 1, got %d", c.Enrich.CacheSize)
	check(!c.Enrich.OCR.Enabled || c.Enrich.OCR.ServerURL != "",
		"enrich.ocr.server_url is required when OCR is enabled")

	check(strings.TrimSpace(c.Store.Path) != "", "store.path is required")
	check(c.Server.Address != "", "server.address is required")

	_, err = c.Schedule.IntervalDuration()
	check(err == nil, "schedule.interval: %v", err)
	check(c.Schedule.Rounds >= 0, "schedule.rounds must be >= 0, got %d", c.Schedule.Rounds)
	check(c.Schedule.FailureAlertThreshold >= 0,
		"schedule.failure_alert_threshold must be >= 0, got %d", c.Schedule.FailureAlertThreshold)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
