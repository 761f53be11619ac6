package session

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/giftcard-mini/internal/browser/browsertest"
)

func newTestEntry(t *testing.T, id string) *Entry {
	t.Helper()
	e, err := NewEntry(id, &browsertest.Handle{}, "6280005616388591380", "test", true)
	require.NoError(t, err)
	return e
}

func TestStore_PutGetDelete(t *testing.T) {
	s := NewStore()
	e := newTestEntry(t, "abcdef01")

	require.NoError(t, s.Put("abcdef01", e))
	got, ok := s.Get("abcdef01")
	require.True(t, ok)
	assert.Same(t, e, got)
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Has("abcdef01"))

	s.Delete("abcdef01")
	s.Delete("abcdef01")
	assert.False(t, s.Has("abcdef01"))
	assert.Equal(t, 0, s.Len())
}

func TestStore_PutRejectsDuplicate(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put("abcdef01", newTestEntry(t, "abcdef01")))

	err := s.Put("abcdef01", newTestEntry(t, "abcdef01"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateIdentifier))

	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, CodeDuplicateIdentifier, oopsErr.Code())
	assert.Equal(t, 1, s.Len())
}

func TestStore_Snapshot(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put("abcdef01", newTestEntry(t, "abcdef01")))
	require.NoError(t, s.Put("abcdef02", newTestEntry(t, "abcdef02")))

	snap := s.Snapshot()
	assert.Len(t, snap, 2)

	s.Delete("abcdef01")
	assert.Len(t, snap, 2)
	assert.Equal(t, 1, s.Len())
}

func TestNewEntry_Validation(t *testing.T) {
	_, err := NewEntry("", nil, "", "test", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id")
	assert.Contains(t, err.Error(), "missing handle")
	assert.Contains(t, err.Error(), "missing subject")
}

func TestEntry_StateTransitions(t *testing.T) {
	e := newTestEntry(t, "abcdef01")
	assert.Equal(t, "verified", e.State())

	assert.True(t, e.claim())
	assert.False(t, e.claim())
	assert.False(t, e.retire())
	assert.Equal(t, "fetching", e.State())

	other := newTestEntry(t, "abcdef02")
	assert.True(t, other.retire())
	assert.False(t, other.claim())
	assert.Equal(t, "closed", other.State())
}

func TestIdentifiers(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id, err := NewIdentifier()
		require.NoError(t, err)
		assert.True(t, ValidIdentifier(id), id)
		assert.False(t, seen[id])
		seen[id] = true
	}

	for _, id := range []string{"", "short", "ABCDEF0123", "not-hex-at-all", "../../etc/passwd"} {
		assert.False(t, ValidIdentifier(id), id)
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, "success", string(StatusOf(nil)))
	assert.Equal(t, "fail", string(StatusOf(oops.Wrap(ErrAuthenticationFailed))))
	assert.Equal(t, "fail", string(StatusOf(oops.Wrap(ErrResourceUnavailable))))
	assert.Equal(t, "fail", string(StatusOf(ErrInvalidIdentifier)))
	assert.Equal(t, "error", string(StatusOf(ErrExtractionFailed)))
	assert.Equal(t, "error", string(StatusOf(errors.New("boom"))))
}
