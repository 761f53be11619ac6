package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shehryarbajwa/giftcard-mini/internal/browser"
)

// identifierBytes is the entropy of a session identifier.
const identifierBytes = 16

var identifierPattern = regexp.MustCompile(`^[0-9a-f]{8,64}$`)

// NewIdentifier returns a random hex-encoded session identifier.
func NewIdentifier() (string, error) {
	b := make([]byte, identifierBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate identifier: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidIdentifier reports whether id is well formed. It says nothing about
// whether the session exists.
func ValidIdentifier(id string) bool {
	return identifierPattern.MatchString(id)
}

type state int32

const (
	stateVerified state = iota + 1
	stateFetching
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateVerified:
		return "verified"
	case stateFetching:
		return "fetching"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Entry is one logged-in session. It owns its handle until teardown.
type Entry struct {
	ID        string
	Handle    browser.Handle
	Verified  bool
	Subject   string
	Site      string
	CreatedAt time.Time
	// DebugTarget is the DevTools target of this entry's page, "" when the
	// browser did not report one.
	DebugTarget string

	state        atomic.Int32
	teardownOnce sync.Once

	mu     sync.Mutex
	reaper *time.Timer
}

// NewEntry validates the required fields and returns an entry ready to be
// stored.
func NewEntry(id string, h browser.Handle, subject, site string, verified bool) (*Entry, error) {
	var errs []error
	if id == "" {
		errs = append(errs, errors.New("missing id"))
	}
	if h == nil {
		errs = append(errs, errors.New("missing handle"))
	}
	if subject == "" {
		errs = append(errs, errors.New("missing subject"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid session entry: %w", err)
	}

	e := &Entry{
		ID:        id,
		Handle:    h,
		Verified:  verified,
		Subject:   subject,
		Site:      site,
		CreatedAt: time.Now(),
	}
	e.state.Store(int32(stateVerified))
	return e, nil
}

// State returns the lifecycle state name.
func (e *Entry) State() string {
	return state(e.state.Load()).String()
}

// claim moves a verified entry to fetching. Only one caller can win.
func (e *Entry) claim() bool {
	return e.state.CompareAndSwap(int32(stateVerified), int32(stateFetching))
}

// retire moves a verified entry straight to closed, for reaping and
// shutdown. It fails while a fetch owns the entry.
func (e *Entry) retire() bool {
	return e.state.CompareAndSwap(int32(stateVerified), int32(stateClosed))
}

func (e *Entry) setReaper(t *time.Timer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if state(e.state.Load()) == stateClosed {
		t.Stop()
		return
	}
	e.reaper = t
}

func (e *Entry) stopReaper() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reaper != nil {
		e.reaper.Stop()
		e.reaper = nil
	}
}
