package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/giftcard-mini/internal/api"
	"github.com/shehryarbajwa/giftcard-mini/internal/config"
	"github.com/shehryarbajwa/giftcard-mini/internal/logging"
	"github.com/shehryarbajwa/giftcard-mini/internal/proxy"
	"github.com/shehryarbajwa/giftcard-mini/internal/ratelimit"
)

const (
	limiterPruneEvery = 10 * time.Minute
	limiterIdle       = 2 * time.Hour
)

func newServeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	logger := newLogger(cfg)

	a, err := buildApp(cfg, logger)
	if err != nil {
		logging.LogError(parent, logger, "failed to start", err)
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := ratelimit.NewLimiter(cfg.RateLimitPerHour, cfg.RateLimitBurst)
	go pruneLimiter(ctx, limiter)

	handler := api.NewHandler(a.sessions, cfg.Headless, logger)
	router := handler.SetupRoutes(api.Routes{
		Proxy:       proxy.NewServer(a.sessions, a.provider.DebugEndpoint, a.resolver, logger),
		RateLimiter: limiter,
		Metrics:     a.metrics.Handler(),
		Logger:      logger,
	})

	// A login plus a fetch can take the sum of both timeouts, queueing aside.
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LoginTimeout + cfg.ExtractTimeout + 60*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", cfg.ListenAddr,
			"site", a.sessions.Site().Name,
			"browser_mode", cfg.BrowserMode,
			"max_concurrent", cfg.MaxConcurrent,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errc:
		logging.LogError(ctx, logger, "server error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// HTTP first so no new logins arrive, then sessions, then the browser.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(shutdownCtx, logger, "http shutdown", err)
	}
	if err := a.sessions.Close(shutdownCtx); err != nil {
		logging.LogError(shutdownCtx, logger, "session shutdown", err)
	}
	if err := a.provider.Close(); err != nil {
		logging.LogError(shutdownCtx, logger, "browser shutdown", err)
	}

	logger.Info("server stopped")
	return serveErr
}

func pruneLimiter(ctx context.Context, limiter *ratelimit.Limiter) {
	ticker := time.NewTicker(limiterPruneEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune(limiterIdle)
		}
	}
}
