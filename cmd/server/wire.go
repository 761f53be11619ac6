package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/shehryarbajwa/giftcard-mini/internal/browser"
	"github.com/shehryarbajwa/giftcard-mini/internal/config"
	"github.com/shehryarbajwa/giftcard-mini/internal/gate"
	"github.com/shehryarbajwa/giftcard-mini/internal/logging"
	"github.com/shehryarbajwa/giftcard-mini/internal/metrics"
	"github.com/shehryarbajwa/giftcard-mini/internal/session"
)

const serviceName = "giftcard-mini"

// app is everything serve and check share.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	resolver *browser.EndpointResolver
	provider *browser.PlaywrightProvider
	metrics  *metrics.Metrics
	sessions *session.Manager
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger := logging.Setup(serviceName, version, cfg.LogFormat, cfg.LogLevel, os.Stderr)
	slog.SetDefault(logger)
	return logger
}

func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	s, err := cfg.SiteConfig()
	if err != nil {
		return nil, err
	}

	resolver := browser.NewEndpointResolver(5 * time.Second)

	var pool *browser.Pool
	if cfg.BrowserMode == browser.ModeDocker {
		pool, err = browser.NewPool(browser.PoolOptions{
			Image:        cfg.BrowserImage,
			ProfileDir:   cfg.ProfileDir,
			Sessions:     cfg.MaxConcurrent,
			ReadyTimeout: 60 * time.Second,
		}, resolver, logger)
		if err != nil {
			return nil, err
		}
	}

	provider, err := browser.NewPlaywrightProvider(browser.PlaywrightOptions{
		Mode:            cfg.BrowserMode,
		CDPEndpoint:     cfg.CDPEndpoint,
		InstallBrowsers: cfg.InstallBrowsers,
		Pool:            pool,
		Resolver:        resolver,
		Logger:          logger,
	})
	if err != nil {
		if pool != nil {
			_ = pool.Close()
		}
		return nil, err
	}

	// IDLE_TIMEOUT=0 turns reaping off.
	idle := cfg.IdleTimeout
	if idle == 0 {
		idle = -1
	}

	met := metrics.New()
	g := gate.New(cfg.MaxConcurrent)
	sessions, err := session.NewManager(session.Options{
		Site:           s,
		Provider:       provider,
		Gate:           g,
		Metrics:        met,
		Logger:         logger,
		LoginTimeout:   cfg.LoginTimeout,
		ExtractTimeout: cfg.ExtractTimeout,
		IdleTimeout:    idle,
	})
	if err != nil {
		_ = provider.Close()
		return nil, err
	}
	met.ObserveGate(g)
	met.ObserveSessions(sessions.Live)

	return &app{
		cfg:      cfg,
		logger:   logger,
		resolver: resolver,
		provider: provider,
		metrics:  met,
		sessions: sessions,
	}, nil
}
