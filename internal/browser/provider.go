// Package browser obtains and drives browser pages for balance checks.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by Obtain when no usable browser could be reached
// or started.
var ErrUnavailable = errors.New("browser: no usable browser")

// RawExtraction is a snapshot of the rendered page.
type RawExtraction struct {
	URL        string
	HTML       string
	CapturedAt time.Time
}

// Handle is one page inside its own browser context. A handle is owned by a
// single session until it is released.
type Handle interface {
	Navigate(ctx context.Context, url string) error
	// FillField fills the first visible field matching any selector and
	// reports whether a value was written.
	FillField(ctx context.Context, selectors []string, value string) (bool, error)
	// ClickFirst clicks the first visible element matching any selector.
	ClickFirst(ctx context.Context, selectors []string) (bool, error)
	CurrentURL() string
	ExtractPageData(ctx context.Context) (RawExtraction, error)
	BringToFront(ctx context.Context) error
	// DebugTarget returns the DevTools target id of this page.
	DebugTarget(ctx context.Context) (string, error)
}

// Provider hands out page handles. Whether a browser is reused or launched is
// up to the implementation.
type Provider interface {
	Obtain(ctx context.Context, headless bool) (Handle, error)
	// Release closes the handle's page and context. When preserveBrowser is
	// false the underlying browser is closed too.
	Release(h Handle, preserveBrowser bool) error
	Close() error
}
