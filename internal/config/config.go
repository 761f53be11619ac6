// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/oops"

	"github.com/shehryarbajwa/giftcard-mini/internal/browser"
	"github.com/shehryarbajwa/giftcard-mini/internal/logging"
	"github.com/shehryarbajwa/giftcard-mini/internal/site"
)

// Config is the full service configuration.
type Config struct {
	ListenAddr string
	Site       string
	TargetURL  string
	Headless   bool

	MaxConcurrent   int
	BrowserMode     browser.Mode
	CDPEndpoint     string
	BrowserImage    string
	ProfileDir      string
	InstallBrowsers bool

	LoginTimeout    time.Duration
	ExtractTimeout  time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RateLimitPerHour int
	RateLimitBurst   int

	LogFormat string
	LogLevel  slog.Level
}

// Load reads envFile into the environment when it exists, without overriding
// variables already set, then builds a Config. An empty envFile means ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, oops.
			Code("CONFIG_INVALID").
			With("file", envFile).
			Wrapf(err, "failed to read env file")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults and validating.
func FromEnv(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}

	cfg := &Config{
		ListenAddr:      r.str("LISTEN_ADDR", ":8080"),
		Site:            r.str("SITE", "everyday"),
		TargetURL:       r.str("TARGET_URL", ""),
		Headless:        r.boolean("HEADLESS", true),
		MaxConcurrent:   r.integer("MAX_CONCURRENT", 3),
		CDPEndpoint:     r.str("CDP_ENDPOINT", "http://127.0.0.1:9222"),
		BrowserImage:    r.str("BROWSER_IMAGE", browser.DefaultImage),
		ProfileDir:      r.str("PROFILE_DIR", filepath.Join(os.TempDir(), "giftcard-profiles")),
		InstallBrowsers: r.boolean("INSTALL_BROWSERS", false),

		LoginTimeout:    r.duration("LOGIN_TIMEOUT", 8*time.Second),
		ExtractTimeout:  r.duration("EXTRACT_TIMEOUT", 20*time.Second),
		IdleTimeout:     r.duration("IDLE_TIMEOUT", 5*time.Minute),
		ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 10*time.Second),

		RateLimitPerHour: r.integer("RATE_LIMIT_PER_HOUR", 100),
		RateLimitBurst:   r.integer("RATE_LIMIT_BURST", 10),

		LogFormat: strings.ToLower(r.str("LOG_FORMAT", "json")),
	}

	mode, err := browser.ParseMode(r.str("BROWSER_MODE", string(browser.ModeLaunch)))
	if err != nil {
		r.errs = append(r.errs, err)
	}
	cfg.BrowserMode = mode

	level, err := logging.ParseLevel(r.str("LOG_LEVEL", "info"))
	if err != nil {
		r.errs = append(r.errs, err)
	}
	cfg.LogLevel = level

	if err := errors.Join(append(r.errs, cfg.validate()...)...); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "invalid configuration")
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	if c.MaxConcurrent < 1 {
		errs = append(errs, errors.New("MAX_CONCURRENT must be at least 1"))
	}
	if _, err := site.Lookup(c.Site); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, errors.New("LOG_FORMAT must be json or text"))
	}
	if c.LoginTimeout <= 0 || c.ExtractTimeout <= 0 {
		errs = append(errs, errors.New("LOGIN_TIMEOUT and EXTRACT_TIMEOUT must be positive"))
	}
	if c.RateLimitPerHour < 1 || c.RateLimitBurst < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_HOUR and RATE_LIMIT_BURST must be positive"))
	}
	return errs
}

// SiteConfig resolves the configured site, with TargetURL applied.
func (c *Config) SiteConfig() (*site.Site, error) {
	s, err := site.Lookup(c.Site)
	if err != nil {
		return nil, err
	}
	return s.WithURL(c.TargetURL), nil
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, oops.With("key", key).Errorf("%s: not an integer: %q", key, v))
		return def
	}
	return n
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, oops.With("key", key).Errorf("%s: not a boolean: %q", key, v))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, oops.With("key", key).Errorf("%s: not a duration: %q", key, v))
		return def
	}
	return d
}
