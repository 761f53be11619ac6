// Package session runs the login-then-fetch lifecycle of balance checks.
// Each session holds a concurrency slot and a browser page from login until
// its single fetch, and is torn down exactly once.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"golang.org/x/sync/singleflight"

	"github.com/shehryarbajwa/giftcard-mini/internal/browser"
	"github.com/shehryarbajwa/giftcard-mini/internal/gate"
	"github.com/shehryarbajwa/giftcard-mini/internal/logging"
	"github.com/shehryarbajwa/giftcard-mini/internal/metrics"
	"github.com/shehryarbajwa/giftcard-mini/internal/poll"
	"github.com/shehryarbajwa/giftcard-mini/internal/site"
	"github.com/shehryarbajwa/giftcard-mini/pkg/models"
)

// maxIdentifierAttempts bounds retries on identifier collisions.
const maxIdentifierAttempts = 8

// Defaults applied by NewManager.
const (
	DefaultLoginTimeout    = 8 * time.Second
	DefaultLoginInterval   = 250 * time.Millisecond
	DefaultExtractTimeout  = 20 * time.Second
	DefaultExtractInterval = 500 * time.Millisecond
	DefaultIdleTimeout     = 5 * time.Minute
)

// Credentials are what the balance form asks for.
type Credentials struct {
	CardNumber string
	PIN        string
	Headless   bool
}

// Options configures a Manager. Site and Provider are required.
type Options struct {
	Site     *site.Site
	Provider browser.Provider
	Gate     *gate.Gate
	Store    *Store
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	LoginTimeout    time.Duration
	LoginInterval   time.Duration
	ExtractTimeout  time.Duration
	ExtractInterval time.Duration
	// IdleTimeout tears down sessions that are never fetched. Negative
	// disables reaping; zero means DefaultIdleTimeout.
	IdleTimeout time.Duration

	// NewIdentifier overrides identifier generation.
	NewIdentifier func() (string, error)
}

// Manager owns the gate, the store and the provider for one site.
type Manager struct {
	site     *site.Site
	provider browser.Provider
	gate     *gate.Gate
	store    *Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
	opts     Options
	newID    func() (string, error)

	flight singleflight.Group

	// admit orders the closed flag against creating.
	admit    sync.Mutex
	closed   atomic.Bool
	creating atomic.Int64

	afterFunc func(time.Duration, func()) *time.Timer
}

// NewManager validates opts and fills defaults. A nil Gate gets capacity 1.
func NewManager(opts Options) (*Manager, error) {
	if opts.Site == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("session manager needs a site")
	}
	if opts.Provider == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("session manager needs a browser provider")
	}
	if opts.Gate == nil {
		opts.Gate = gate.New(1)
	}
	if opts.Store == nil {
		opts.Store = NewStore()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = DefaultLoginTimeout
	}
	if opts.LoginInterval <= 0 {
		opts.LoginInterval = DefaultLoginInterval
	}
	if opts.ExtractTimeout <= 0 {
		opts.ExtractTimeout = DefaultExtractTimeout
	}
	if opts.ExtractInterval <= 0 {
		opts.ExtractInterval = DefaultExtractInterval
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	newID := opts.NewIdentifier
	if newID == nil {
		newID = NewIdentifier
	}

	return &Manager{
		site:     opts.Site,
		provider: opts.Provider,
		gate:     opts.Gate,
		store:    opts.Store,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("site", opts.Site.Name),
		opts:     opts,
		newID:    newID,

		afterFunc: time.AfterFunc,
	}, nil
}

// CreateSession logs in with creds and returns the identifier of the stored
// session. The concurrency slot stays held until the session is fetched,
// reaped or shut down. On every failure the page and the slot are released
// before returning.
func (m *Manager) CreateSession(ctx context.Context, creds Credentials) (id string, err error) {
	defer func() { m.metrics.Auth(string(StatusOf(err))) }()

	if !m.enter() {
		return "", oops.Code(CodeClosed).Wrap(ErrClosed)
	}
	defer m.creating.Add(-1)

	if strings.TrimSpace(creds.CardNumber) == "" || strings.TrimSpace(creds.PIN) == "" {
		return "", oops.
			Code(CodeAuthFailed).
			With("step", "validate").
			Wrap(fmt.Errorf("%w: card number and pin are required", ErrAuthenticationFailed))
	}

	if err := m.gate.Acquire(ctx); err != nil {
		return "", oops.Code(CodeCancelled).With("step", "admission").Wrap(err)
	}
	admitted := time.Now()

	var (
		h         browser.Handle
		e         *Entry
		committed bool
	)
	defer func() {
		if committed {
			return
		}
		if r := recover(); r != nil {
			id = ""
			err = oops.
				Code("PANIC").
				With("step", "login").
				Errorf("login panicked: %v", r)
			logging.LogError(ctx, m.logger, "recovered from panic during login", err)
		}
		// A stored entry owns the page and the slot now. Whoever retires it
		// releases both.
		if e != nil {
			if e.retire() {
				m.teardown(e, metrics.ReasonFailed)
			}
			return
		}
		if h != nil {
			if rerr := m.provider.Release(h, true); rerr != nil {
				m.logger.WarnContext(ctx, "failed to release page after failed login", "error", rerr)
			}
		}
		m.gate.Release()
	}()

	h, err = m.provider.Obtain(ctx, creds.Headless)
	if err != nil {
		h = nil
		if ctx.Err() != nil {
			return "", oops.Code(CodeCancelled).With("step", "obtain").Wrap(ctx.Err())
		}
		return "", oops.
			Code(CodeResourceUnavailable).
			With("step", "obtain").
			Wrap(fmt.Errorf("%w: %w", ErrResourceUnavailable, err))
	}

	if err := m.login(ctx, h, creds); err != nil {
		return "", err
	}

	target, terr := h.DebugTarget(ctx)
	if terr != nil {
		m.logger.DebugContext(ctx, "page has no DevTools target", "error", terr)
	}

	e, err = m.commit(ctx, h, creds.CardNumber, target)
	if err != nil {
		return "", err
	}
	m.armReaper(e)
	id = e.ID
	committed = true
	m.metrics.Login(time.Since(admitted))
	m.logger.InfoContext(ctx, "session created", "session_id", id)

	// A concurrent Close may have snapshotted the store before this entry
	// landed.
	if m.closed.Load() {
		m.Teardown(id)
		return "", oops.Code(CodeClosed).Wrap(ErrClosed)
	}
	return id, nil
}

// login drives the form and waits for the post-submit page.
func (m *Manager) login(ctx context.Context, h browser.Handle, creds Credentials) error {
	if err := h.Navigate(ctx, m.site.URL); err != nil {
		return m.loginFailure(ctx, "navigate", err)
	}

	ok, err := h.FillField(ctx, m.site.CardSelectors, creds.CardNumber)
	if err != nil || !ok {
		return m.loginFailure(ctx, "fill_card", err)
	}
	ok, err = h.FillField(ctx, m.site.PinSelectors, creds.PIN)
	if err != nil || !ok {
		return m.loginFailure(ctx, "fill_pin", err)
	}

	// Some forms submit on their own once filled, so a missed click is not
	// fatal; the result wait decides.
	if ok, err := h.ClickFirst(ctx, m.site.SubmitSelectors); err != nil || !ok {
		m.logger.DebugContext(ctx, "submit button not clicked", "error", err)
	}

	_, err = poll.Until(ctx, poll.Options{Timeout: m.opts.LoginTimeout, Interval: m.opts.LoginInterval},
		func(ctx context.Context) (struct{}, bool, error) {
			ok, err := m.site.Reached(ctx, h)
			return struct{}{}, ok, err
		})
	if err != nil {
		return m.loginFailure(ctx, "await_result", err)
	}
	return nil
}

func (m *Manager) loginFailure(ctx context.Context, step string, cause error) error {
	if ctx.Err() != nil {
		return oops.Code(CodeCancelled).With("step", step).Wrap(ctx.Err())
	}
	if cause == nil {
		cause = errors.New("no matching element")
	}
	err := oops.
		Code(CodeAuthFailed).
		With("step", step).
		Wrap(fmt.Errorf("%w: %w", ErrAuthenticationFailed, cause))
	m.logger.InfoContext(ctx, "login failed", logging.ErrorAttrs(err)...)
	return err
}

// enter registers an in-flight CreateSession unless the manager is closed.
func (m *Manager) enter() bool {
	m.admit.Lock()
	defer m.admit.Unlock()
	if m.closed.Load() {
		return false
	}
	m.creating.Add(1)
	return true
}

// commit stores a verified entry under a fresh identifier.
func (m *Manager) commit(ctx context.Context, h browser.Handle, subject, target string) (*Entry, error) {
	var lastErr error
	for range maxIdentifierAttempts {
		id, err := m.newID()
		if err != nil {
			return nil, oops.Code("IDENTIFIER_FAILED").Wrap(err)
		}
		e, err := NewEntry(id, h, subject, m.site.Name, true)
		if err != nil {
			return nil, oops.Code("INVALID_ENTRY").Wrap(err)
		}
		e.DebugTarget = target
		if err := m.store.Put(id, e); err != nil {
			if errors.Is(err, ErrDuplicateIdentifier) {
				lastErr = err
				m.logger.WarnContext(ctx, "identifier collision, regenerating")
				continue
			}
			return nil, err
		}
		return e, nil
	}
	return nil, oops.
		Code(CodeDuplicateIdentifier).
		With("attempts", maxIdentifierAttempts).
		Wrap(lastErr)
}

func (m *Manager) armReaper(e *Entry) {
	if m.opts.IdleTimeout < 0 {
		return
	}
	e.setReaper(m.afterFunc(m.opts.IdleTimeout, func() {
		if e.retire() {
			m.logger.Info("reaping idle session", "session_id", e.ID, "age", time.Since(e.CreatedAt).String())
			m.teardown(e, metrics.ReasonReaped)
		}
	}))
}

// Fetch reads the result page of session id and consumes the session. The
// session is torn down whether or not extraction succeeds. Concurrent calls
// for the same id share one extraction; later calls get ErrInvalidIdentifier.
func (m *Manager) Fetch(ctx context.Context, id string) (result *models.GiftCardResult, err error) {
	defer func() { m.metrics.Fetch(string(StatusOf(err))) }()

	if !ValidIdentifier(id) {
		return nil, oops.
			Code(CodeInvalidIdentifier).
			With("session_id", id).
			Wrap(ErrInvalidIdentifier)
	}

	// The shared extraction outlives any single caller; it is bounded by
	// the extract timeout instead.
	shared := context.WithoutCancel(ctx)
	v, err, _ := m.flight.Do(id, func() (any, error) {
		return m.fetch(shared, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.GiftCardResult), nil
}

func (m *Manager) fetch(ctx context.Context, id string) (result *models.GiftCardResult, err error) {
	e, ok := m.store.Get(id)
	if !ok || !e.Verified || !e.claim() {
		return nil, oops.
			Code(CodeInvalidIdentifier).
			With("session_id", id).
			Wrap(ErrInvalidIdentifier)
	}
	defer m.teardown(e, metrics.ReasonFetched)
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = oops.
				Code(CodeExtractionFailed).
				With("session_id", id).
				Wrap(fmt.Errorf("%w: panic: %v", ErrExtractionFailed, r))
			logging.LogError(ctx, m.logger, "recovered from panic during extraction", err)
		}
	}()

	if err := e.Handle.BringToFront(ctx); err != nil {
		m.logger.DebugContext(ctx, "bring to front failed", "session_id", id, "error", err)
	}

	result, err = poll.Until(ctx, poll.Options{Timeout: m.opts.ExtractTimeout, Interval: m.opts.ExtractInterval},
		func(ctx context.Context) (*models.GiftCardResult, bool, error) {
			raw, err := e.Handle.ExtractPageData(ctx)
			if err != nil {
				return nil, false, err
			}
			r, err := m.site.Normalize(raw)
			if err != nil {
				return nil, false, err
			}
			return r, r.HasData(), nil
		})
	if err != nil {
		err = oops.
			Code(CodeExtractionFailed).
			With("session_id", id).
			Wrap(fmt.Errorf("%w: %w", ErrExtractionFailed, err))
		m.logger.WarnContext(ctx, "extraction failed", logging.ErrorAttrs(err)...)
		return nil, err
	}

	// The card number the session logged in with beats a scraped one.
	subject := e.Subject
	result.CardNumber = &subject
	return result, nil
}

// Teardown closes session id if it is logged in and not being fetched. It
// reports whether this call tore it down.
func (m *Manager) Teardown(id string) bool {
	e, ok := m.store.Get(id)
	if !ok || !e.retire() {
		return false
	}
	m.teardown(e, metrics.ReasonShutdown)
	return true
}

// teardown releases the page, removes the entry and frees the slot, once.
func (m *Manager) teardown(e *Entry, reason string) {
	e.teardownOnce.Do(func() {
		e.state.Store(int32(stateClosed))
		e.stopReaper()

		if err := m.provider.Release(e.Handle, true); err != nil {
			m.logger.Warn("failed to release page", "session_id", e.ID, "error", err)
		}
		m.store.Delete(e.ID)
		m.gate.Release()
		m.metrics.Teardown(reason)
		m.logger.Debug("session torn down", "session_id", e.ID, "reason", reason)
	})
}

// Close rejects new sessions, tears down idle ones and waits for in-flight
// logins and fetches to finish or ctx to end.
func (m *Manager) Close(ctx context.Context) error {
	m.admit.Lock()
	m.closed.Store(true)
	m.admit.Unlock()

	for _, e := range m.store.Snapshot() {
		if e.retire() {
			m.teardown(e, metrics.ReasonShutdown)
		}
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for m.store.Len() > 0 || m.creating.Load() > 0 {
		select {
		case <-ctx.Done():
			return oops.
				Code(CodeCancelled).
				With("live_sessions", m.store.Len()).
				With("pending_logins", m.creating.Load()).
				Wrap(ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Has reports whether id is a live session.
func (m *Manager) Has(id string) bool {
	return ValidIdentifier(id) && m.store.Has(id)
}

// DebugTarget returns the DevTools target of live session id's page. The
// target is "" when the browser did not report one.
func (m *Manager) DebugTarget(id string) (string, bool) {
	if !ValidIdentifier(id) {
		return "", false
	}
	e, ok := m.store.Get(id)
	if !ok {
		return "", false
	}
	return e.DebugTarget, true
}

// Live returns the number of stored sessions.
func (m *Manager) Live() int {
	return m.store.Len()
}

// Gate returns the admission gate.
func (m *Manager) Gate() *gate.Gate {
	return m.gate
}

// Site returns the site this manager checks.
func (m *Manager) Site() *site.Site {
	return m.site
}
