package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntil_ReturnsValueOnceConditionHolds(t *testing.T) {
	calls := 0
	v, err := Until(context.Background(), Options{Timeout: time.Second, Interval: time.Millisecond},
		func(context.Context) (string, bool, error) {
			calls++
			if calls < 3 {
				return "", false, nil
			}
			return "ready", true, nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ready", v)
	assert.Equal(t, 3, calls)
}

func TestUntil_TimesOut(t *testing.T) {
	start := time.Now()
	_, err := Until(context.Background(), Options{Timeout: 30 * time.Millisecond, Interval: 5 * time.Millisecond},
		func(context.Context) (int, bool, error) { return 0, false, nil })

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUntil_TimeoutCarriesLastError(t *testing.T) {
	boom := errors.New("page not ready")
	_, err := Until(context.Background(), Options{Timeout: 20 * time.Millisecond, Interval: 2 * time.Millisecond},
		func(context.Context) (int, bool, error) { return 0, false, boom })

	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, boom)
}

func TestUntil_StopAbortsImmediately(t *testing.T) {
	fatal := errors.New("browser closed")
	calls := 0
	_, err := Until(context.Background(), Options{Timeout: time.Second, Interval: time.Millisecond},
		func(context.Context) (int, bool, error) {
			calls++
			return 0, false, Stop(fatal)
		})

	assert.ErrorIs(t, err, fatal)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, calls)
}

func TestUntil_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Until(ctx, Options{Timeout: time.Second, Interval: time.Millisecond},
		func(context.Context) (int, bool, error) { return 0, false, nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestUntil_ZeroTimeout(t *testing.T) {
	called := false
	_, err := Until(context.Background(), Options{}, func(context.Context) (int, bool, error) {
		called = true
		return 1, true, nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, called)
}

func TestStop_Nil(t *testing.T) {
	assert.NoError(t, Stop(nil))
}
