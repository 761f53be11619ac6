package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/giftcard-mini/internal/browser"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "everyday", cfg.Site)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 3, cfg.MaxConcurrent)
	assert.Equal(t, browser.ModeLaunch, cfg.BrowserMode)
	assert.Equal(t, browser.DefaultImage, cfg.BrowserImage)
	assert.Equal(t, 8*time.Second, cfg.LoginTimeout)
	assert.Equal(t, 20*time.Second, cfg.ExtractTimeout)
	assert.Equal(t, 5*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 100, cfg.RateLimitPerHour)
	assert.Equal(t, 10, cfg.RateLimitBurst)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"SITE":           "giftcards",
		"TARGET_URL":     "http://localhost:9000/check",
		"HEADLESS":       "false",
		"MAX_CONCURRENT": "5",
		"BROWSER_MODE":   "docker",
		"IDLE_TIMEOUT":   "90s",
		"LOG_FORMAT":     "TEXT",
		"LOG_LEVEL":      "debug",
	}))
	require.NoError(t, err)

	assert.False(t, cfg.Headless)
	assert.Equal(t, 5, cfg.MaxConcurrent)
	assert.Equal(t, browser.ModeDocker, cfg.BrowserMode)
	assert.Equal(t, 90*time.Second, cfg.IdleTimeout)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)

	s, err := cfg.SiteConfig()
	require.NoError(t, err)
	assert.Equal(t, "giftcards", s.Name)
	assert.Equal(t, "http://localhost:9000/check", s.URL)
}

func TestFromEnv_CollectsAllErrors(t *testing.T) {
	_, err := FromEnv(env(map[string]string{
		"MAX_CONCURRENT": "lots",
		"HEADLESS":       "maybe",
		"LOGIN_TIMEOUT":  "soon",
		"SITE":           "nowhere",
		"BROWSER_MODE":   "telepathy",
	}))
	require.Error(t, err)

	for _, key := range []string{"MAX_CONCURRENT", "HEADLESS", "LOGIN_TIMEOUT", "nowhere", "telepathy"} {
		assert.Contains(t, err.Error(), key)
	}
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, "CONFIG_INVALID", oopsErr.Code())
}

func TestFromEnv_RejectsZeroCapacity(t *testing.T) {
	_, err := FromEnv(env(map[string]string{"MAX_CONCURRENT": "0"}))
	assert.Error(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("GIFTCARD_TEST_ONLY=1\nMAX_CONCURRENT=4\n"), 0o600))
	t.Setenv("MAX_CONCURRENT", "")
	require.NoError(t, os.Unsetenv("MAX_CONCURRENT"))
	t.Cleanup(func() {
		_ = os.Unsetenv("GIFTCARD_TEST_ONLY")
		_ = os.Unsetenv("MAX_CONCURRENT")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxConcurrent)
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
