package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Mode selects how the provider reaches a browser.
type Mode string

const (
	// ModeLaunch starts a local Chromium per headless setting.
	ModeLaunch Mode = "launch"
	// ModeConnect attaches over CDP to an already running browser.
	ModeConnect Mode = "connect"
	// ModeDocker starts a shared browserless container and attaches to it.
	ModeDocker Mode = "docker"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeLaunch, ModeConnect, ModeDocker:
		return m, nil
	case "":
		return ModeLaunch, nil
	default:
		return "", fmt.Errorf("unknown browser mode %q", s)
	}
}

const (
	fillWait  = 300 * time.Millisecond
	clickWait = 800 * time.Millisecond

	defaultNavigationTimeout = 30 * time.Second
	defaultActionTimeout     = 10 * time.Second
)

// PlaywrightOptions configures a PlaywrightProvider.
type PlaywrightOptions struct {
	Mode        Mode
	CDPEndpoint string
	// InstallBrowsers downloads the playwright driver and browsers on start.
	InstallBrowsers   bool
	NavigationTimeout time.Duration
	// Pool is required in docker mode.
	Pool     *Pool
	Resolver *EndpointResolver
	Logger   *slog.Logger
}

// PlaywrightProvider obtains pages from Chromium through playwright.
type PlaywrightProvider struct {
	opts   PlaywrightOptions
	logger *slog.Logger

	mu       sync.Mutex
	pw       *playwright.Playwright
	browsers map[bool]playwright.Browser
	endpoint string
	closed   bool
}

// NewPlaywrightProvider creates a provider. The playwright driver is started
// lazily on the first Obtain.
func NewPlaywrightProvider(opts PlaywrightOptions) (*PlaywrightProvider, error) {
	if opts.Mode == "" {
		opts.Mode = ModeLaunch
	}
	if opts.Mode == ModeDocker && opts.Pool == nil {
		return nil, errors.New("docker mode requires a container pool")
	}
	if opts.Mode == ModeConnect && opts.CDPEndpoint == "" {
		return nil, errors.New("connect mode requires a CDP endpoint")
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = defaultNavigationTimeout
	}
	if opts.Resolver == nil {
		opts.Resolver = NewEndpointResolver(5 * time.Second)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &PlaywrightProvider{
		opts:     opts,
		logger:   opts.Logger,
		browsers: make(map[bool]playwright.Browser),
	}, nil
}

// Obtain returns a fresh context and page on a reused or newly started
// browser.
func (p *PlaywrightProvider) Obtain(ctx context.Context, headless bool) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browser, err := p.browser(ctx, headless)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	bctx, err := browser.NewContext()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create context: %w", ErrUnavailable, err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("%w: failed to create page: %w", ErrUnavailable, err)
	}
	page.SetDefaultTimeout(float64(defaultActionTimeout.Milliseconds()))

	return &pageHandle{
		key:        headless,
		browser:    browser,
		context:    bctx,
		page:       page,
		navTimeout: p.opts.NavigationTimeout,
	}, nil
}

// browser returns a connected browser for the key, replacing one that has
// dropped its connection.
func (p *PlaywrightProvider) browser(ctx context.Context, headless bool) (playwright.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errors.New("provider closed")
	}
	if err := p.startLocked(); err != nil {
		return nil, err
	}

	// External browsers are shared regardless of the headless flag.
	key := headless
	if p.opts.Mode != ModeLaunch {
		key = false
	}

	if b, ok := p.browsers[key]; ok {
		if b.IsConnected() {
			return b, nil
		}
		p.logger.WarnContext(ctx, "browser disconnected, obtaining a new one", "mode", p.opts.Mode)
		delete(p.browsers, key)
	}

	var (
		b   playwright.Browser
		err error
	)
	switch p.opts.Mode {
	case ModeConnect:
		b, err = p.connect(ctx, p.opts.CDPEndpoint)
	case ModeDocker:
		var c *Container
		c, err = p.opts.Pool.Ensure(ctx)
		if err == nil {
			b, err = p.connect(ctx, c.ConnectURL)
		}
	default:
		b, err = p.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(headless),
		})
		if err != nil {
			err = fmt.Errorf("failed to launch chromium: %w", err)
		}
	}
	if err != nil {
		return nil, err
	}

	p.browsers[key] = b
	return b, nil
}

// connect attaches over CDP. An HTTP endpoint that refuses the direct attach
// is resolved to its websocket URL and retried once.
func (p *PlaywrightProvider) connect(ctx context.Context, endpoint string) (playwright.Browser, error) {
	b, err := p.pw.Chromium.ConnectOverCDP(endpoint)
	if err == nil {
		p.endpoint = endpoint
		return b, nil
	}
	if !strings.HasPrefix(endpoint, "http") {
		return nil, fmt.Errorf("failed to connect over CDP: %w", err)
	}

	p.logger.InfoContext(ctx, "direct CDP connect failed, resolving websocket URL", "endpoint", endpoint, "error", err)
	wsURL, rerr := p.opts.Resolver.WebSocketURL(ctx, endpoint)
	if rerr != nil {
		return nil, fmt.Errorf("failed to connect over CDP: %w", errors.Join(err, rerr))
	}

	b, err = p.pw.Chromium.ConnectOverCDP(wsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect over CDP at %s: %w", wsURL, err)
	}
	p.endpoint = wsURL
	return b, nil
}

func (p *PlaywrightProvider) startLocked() error {
	if p.pw != nil {
		return nil
	}

	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if p.opts.InstallBrowsers {
		if err := playwright.Install(runOpts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	p.pw = pw
	return nil
}

// Release closes the handle's page and context, and the browser too unless
// preserveBrowser is set.
func (p *PlaywrightProvider) Release(h Handle, preserveBrowser bool) error {
	ph, ok := h.(*pageHandle)
	if !ok {
		return fmt.Errorf("foreign handle %T", h)
	}

	err := ph.close()
	if preserveBrowser {
		return err
	}

	p.mu.Lock()
	key := ph.key
	if p.opts.Mode != ModeLaunch {
		key = false
	}
	if b, ok := p.browsers[key]; ok && b == ph.browser {
		delete(p.browsers, key)
	}
	p.mu.Unlock()

	return errors.Join(err, ph.browser.Close())
}

// DebugEndpoint is the DevTools websocket of the attached browser, empty in
// launch mode. Clients must be pointed at a single page target, never at
// this URL directly.
func (p *PlaywrightProvider) DebugEndpoint() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoint
}

// Close closes every browser, stops the driver and removes the docker
// container when one was started.
func (p *PlaywrightProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for key, b := range p.browsers {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.browsers, key)
	}
	if p.pw != nil {
		if err := p.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}
	if p.opts.Pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.opts.Pool.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := p.opts.Pool.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type pageHandle struct {
	key        bool
	browser    playwright.Browser
	context    playwright.BrowserContext
	page       playwright.Page
	navTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (h *pageHandle) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := h.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(h.navTimeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (h *pageHandle) FillField(ctx context.Context, selectors []string, value string) (bool, error) {
	if ok, err := fillIn(ctx, func(sel string) playwright.Locator { return h.page.Locator(sel) }, selectors, value); ok || err != nil {
		return ok, err
	}

	// The form is sometimes rendered inside an iframe.
	main := h.page.MainFrame()
	for _, frame := range h.page.Frames() {
		if frame == main {
			continue
		}
		f := frame
		if ok, err := fillIn(ctx, func(sel string) playwright.Locator { return f.Locator(sel) }, selectors, value); ok || err != nil {
			return ok, err
		}
	}
	return false, nil
}

func fillIn(ctx context.Context, locate func(string) playwright.Locator, selectors []string, value string) (bool, error) {
	for _, sel := range selectors {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		loc := locate(sel).First()
		if err := loc.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(float64(fillWait.Milliseconds())),
		}); err != nil {
			continue
		}
		if err := loc.Fill(value); err != nil {
			continue
		}
		if got, err := loc.InputValue(); err == nil && got == value {
			return true, nil
		}
	}
	return false, nil
}

func (h *pageHandle) ClickFirst(ctx context.Context, selectors []string) (bool, error) {
	for _, sel := range selectors {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		loc := h.page.Locator(sel).First()
		if err := loc.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(float64(clickWait.Milliseconds())),
		}); err != nil {
			continue
		}
		_ = loc.ScrollIntoViewIfNeeded()
		if err := loc.Click(playwright.LocatorClickOptions{
			Timeout: playwright.Float(float64(clickWait.Milliseconds())),
		}); err != nil {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (h *pageHandle) CurrentURL() string {
	return h.page.URL()
}

func (h *pageHandle) ExtractPageData(ctx context.Context) (RawExtraction, error) {
	if err := ctx.Err(); err != nil {
		return RawExtraction{}, err
	}
	html, err := h.page.Content()
	if err != nil {
		return RawExtraction{}, fmt.Errorf("failed to read page content: %w", err)
	}
	return RawExtraction{
		URL:        h.page.URL(),
		HTML:       html,
		CapturedAt: time.Now(),
	}, nil
}

func (h *pageHandle) BringToFront(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.page.BringToFront()
}

func (h *pageHandle) DebugTarget(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cdp, err := h.context.NewCDPSession(h.page)
	if err != nil {
		return "", fmt.Errorf("failed to open CDP session: %w", err)
	}
	defer func() { _ = cdp.Detach() }()

	res, err := cdp.Send("Target.getTargetInfo", nil)
	if err != nil {
		return "", fmt.Errorf("failed to read target info: %w", err)
	}
	return targetIDOf(res)
}

// targetIDOf picks targetInfo.targetId out of a Target.getTargetInfo reply.
func targetIDOf(res any) (string, error) {
	reply, _ := res.(map[string]any)
	info, _ := reply["targetInfo"].(map[string]any)
	id, _ := info["targetId"].(string)
	if id == "" {
		return "", errors.New("target info carries no target id")
	}
	return id, nil
}

func (h *pageHandle) close() error {
	h.closeOnce.Do(func() {
		h.closeErr = errors.Join(h.page.Close(), h.context.Close())
	})
	return h.closeErr
}
