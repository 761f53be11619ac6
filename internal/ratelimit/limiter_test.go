package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_BurstThenDeny(t *testing.T) {
	l := NewLimiter(100, 3)

	for i := range 3 {
		assert.True(t, l.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))

	// Other clients have their own bucket.
	assert.True(t, l.Allow("10.0.0.2"))
	assert.Equal(t, 100, l.PerHour())
}

func TestTokens(t *testing.T) {
	l := NewLimiter(100, 10)
	assert.InDelta(t, 10, l.Tokens("a"), 0.01)
	l.Allow("a")
	assert.InDelta(t, 9, l.Tokens("a"), 0.01)
}

func TestPrune(t *testing.T) {
	l := NewLimiter(100, 1)
	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	assert.Equal(t, 0, l.Prune(time.Hour))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 2, l.Prune(time.Millisecond))
	assert.Equal(t, 0, l.Len())

	assert.True(t, l.Allow("a"))
}
