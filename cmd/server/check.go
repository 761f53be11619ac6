package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/giftcard-mini/internal/browser"
	"github.com/shehryarbajwa/giftcard-mini/internal/config"
	"github.com/shehryarbajwa/giftcard-mini/internal/session"
	"github.com/shehryarbajwa/giftcard-mini/internal/site"
)

type checkFlags struct {
	mode    string
	site    string
	url     string
	browser string
}

func newCheckCmd(envFile *string) *cobra.Command {
	var f checkFlags

	cmd := &cobra.Command{
		Use:   "check <card-number> <pin>",
		Short: "Log in once and print the card balance as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			if err := f.apply(cfg); err != nil {
				return err
			}
			return check(cmd.Context(), cfg, args[0], args[1], cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.mode, "mode", "", "headless or headed (default from HEADLESS)")
	cmd.Flags().StringVar(&f.site, "site", "", "site to check: "+strings.Join(site.Names(), ", "))
	cmd.Flags().StringVar(&f.url, "url", "", "override the balance page URL")
	cmd.Flags().StringVar(&f.browser, "browser", "", "browser mode: launch, connect or docker")
	return cmd
}

func (f checkFlags) apply(cfg *config.Config) error {
	switch strings.ToLower(f.mode) {
	case "":
	case "headless":
		cfg.Headless = true
	case "headed":
		cfg.Headless = false
	default:
		return fmt.Errorf("unknown mode %q, want headless or headed", f.mode)
	}
	if f.site != "" {
		if _, err := site.Lookup(f.site); err != nil {
			return err
		}
		cfg.Site = f.site
	}
	if f.url != "" {
		cfg.TargetURL = f.url
	}
	if f.browser != "" {
		m, err := browser.ParseMode(f.browser)
		if err != nil {
			return err
		}
		cfg.BrowserMode = m
	}
	// One check needs one slot.
	cfg.MaxConcurrent = 1
	return nil
}

func check(parent context.Context, cfg *config.Config, card, pin string, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	logger := newLogger(cfg)
	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.sessions.Close(context.Background())
		_ = a.provider.Close()
	}()

	id, err := a.sessions.CreateSession(ctx, session.Credentials{CardNumber: card, PIN: pin, Headless: cfg.Headless})
	if err != nil {
		return fmt.Errorf("%s: %w", session.StatusOf(err), err)
	}

	result, err := a.sessions.Fetch(ctx, id)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
