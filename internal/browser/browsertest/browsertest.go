// Package browsertest provides an in-memory browser.Provider for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shehryarbajwa/giftcard-mini/internal/browser"
)

// Release records one call to Provider.Release.
type Release struct {
	Handle   *Handle
	Preserve bool
}

// Provider hands out scripted handles.
type Provider struct {
	// ObtainErr makes every Obtain fail.
	ObtainErr error
	// Configure prepares each new handle before it is returned.
	Configure func(h *Handle)

	mu       sync.Mutex
	obtained int
	handles  []*Handle
	releases []Release
	closed   bool
}

// NewProvider returns a provider whose handles log in successfully.
func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) Obtain(ctx context.Context, headless bool) (browser.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.obtained++
	n := p.obtained
	if p.ObtainErr != nil {
		err := p.ObtainErr
		p.mu.Unlock()
		return nil, err
	}
	if p.closed {
		p.mu.Unlock()
		return nil, browser.ErrUnavailable
	}
	p.mu.Unlock()

	h := &Handle{
		Headless: headless,
		FillOK:   true,
		ClickOK:  true,
		Target:   fmt.Sprintf("PAGE%04d", n),
		url:      "about:blank",
	}
	if p.Configure != nil {
		p.Configure(h)
	}

	p.mu.Lock()
	p.handles = append(p.handles, h)
	p.mu.Unlock()
	return h, nil
}

func (p *Provider) Release(h browser.Handle, preserveBrowser bool) error {
	fh, ok := h.(*Handle)
	if !ok {
		return fmt.Errorf("foreign handle %T", h)
	}
	fh.mu.Lock()
	fh.releases++
	fh.mu.Unlock()

	p.mu.Lock()
	p.releases = append(p.releases, Release{Handle: fh, Preserve: preserveBrowser})
	p.mu.Unlock()
	return nil
}

func (p *Provider) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Obtained counts Obtain calls, failed ones included.
func (p *Provider) Obtained() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.obtained
}

// Handles returns every handle handed out so far.
func (p *Provider) Handles() []*Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Handle(nil), p.handles...)
}

// Releases returns every Release call in order.
func (p *Provider) Releases() []Release {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Release(nil), p.releases...)
}

// Live counts handles that were handed out and never released.
func (p *Provider) Live() int {
	p.mu.Lock()
	handles := append([]*Handle(nil), p.handles...)
	p.mu.Unlock()

	n := 0
	for _, h := range handles {
		if h.Releases() == 0 {
			n++
		}
	}
	return n
}

// Handle is a scripted page. Exported fields are set in Provider.Configure
// and must not change afterwards.
type Handle struct {
	Headless bool

	// Block makes Navigate wait until the channel is closed.
	Block <-chan struct{}
	// LoginDelay is slept in Navigate.
	LoginDelay  time.Duration
	NavigateErr error
	// PanicOnNavigate panics inside Navigate with this value.
	PanicOnNavigate any

	FillOK  bool
	FillErr error
	ClickOK bool
	// ResultURL becomes the current URL after a successful click.
	ResultURL string

	HTML         string
	ExtractErr   error
	ExtractDelay time.Duration

	// Target is the DevTools target id. Obtain numbers it per handle.
	Target    string
	TargetErr error

	mu       sync.Mutex
	url      string
	filled   map[string]string
	extracts int
	fronted  int
	releases int
}

var errNotFound = errors.New("no matching element")

func (h *Handle) Navigate(ctx context.Context, url string) error {
	if h.PanicOnNavigate != nil {
		panic(h.PanicOnNavigate)
	}
	if h.Block != nil {
		select {
		case <-h.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := sleep(ctx, h.LoginDelay); err != nil {
		return err
	}
	if h.NavigateErr != nil {
		return h.NavigateErr
	}

	h.mu.Lock()
	h.url = url
	h.mu.Unlock()
	return nil
}

func (h *Handle) FillField(_ context.Context, selectors []string, value string) (bool, error) {
	if h.FillErr != nil {
		return false, h.FillErr
	}
	if !h.FillOK || len(selectors) == 0 {
		return false, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.filled == nil {
		h.filled = make(map[string]string)
	}
	h.filled[selectors[0]] = value
	return true, nil
}

func (h *Handle) ClickFirst(_ context.Context, selectors []string) (bool, error) {
	if !h.ClickOK || len(selectors) == 0 {
		return false, nil
	}
	if h.ResultURL != "" {
		h.mu.Lock()
		h.url = h.ResultURL
		h.mu.Unlock()
	}
	return true, nil
}

func (h *Handle) CurrentURL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

func (h *Handle) ExtractPageData(ctx context.Context) (browser.RawExtraction, error) {
	h.mu.Lock()
	h.extracts++
	h.mu.Unlock()

	if err := sleep(ctx, h.ExtractDelay); err != nil {
		return browser.RawExtraction{}, err
	}
	if h.ExtractErr != nil {
		return browser.RawExtraction{}, h.ExtractErr
	}
	return browser.RawExtraction{
		URL:        h.CurrentURL(),
		HTML:       h.HTML,
		CapturedAt: time.Now(),
	}, nil
}

func (h *Handle) BringToFront(context.Context) error {
	h.mu.Lock()
	h.fronted++
	h.mu.Unlock()
	return nil
}

func (h *Handle) DebugTarget(context.Context) (string, error) {
	if h.TargetErr != nil {
		return "", h.TargetErr
	}
	return h.Target, nil
}

// Filled returns the value written through the first selector of a set.
func (h *Handle) Filled(selector string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.filled[selector]
	if !ok {
		return "", errNotFound
	}
	return v, nil
}

// Extracts counts ExtractPageData calls.
func (h *Handle) Extracts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.extracts
}

// Fronted counts BringToFront calls.
func (h *Handle) Fronted() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fronted
}

// Releases counts Provider.Release calls for this handle.
func (h *Handle) Releases() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.releases
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
