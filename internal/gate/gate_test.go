package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_AdmitsUpToCapacity(t *testing.T) {
	g := New(2)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))
	require.NoError(t, g.Acquire(ctx))
	assert.Equal(t, 2, g.Active())

	done := make(chan struct{})
	go func() {
		_ = g.Acquire(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return g.Waiting() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, g.Active())

	assert.True(t, g.Release())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queued acquire was not admitted after release")
	}
	assert.Equal(t, 2, g.Active())
	assert.Equal(t, 0, g.Waiting())
}

func TestNew_ClampsCapacity(t *testing.T) {
	assert.Equal(t, 1, New(0).Capacity())
	assert.Equal(t, 1, New(-4).Capacity())
	assert.Equal(t, 5, New(5).Capacity())
}

func TestRelease_NoopWhenNothingHeld(t *testing.T) {
	g := New(1)
	assert.False(t, g.Release())
	assert.Equal(t, 0, g.Active())

	require.NoError(t, g.Acquire(context.Background()))
	assert.True(t, g.Release())
	assert.False(t, g.Release())
	assert.Equal(t, 0, g.Active())
}

func TestAcquire_FIFOOrder(t *testing.T) {
	g := New(1)
	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx))

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, g.Acquire(ctx))
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		}(i)
		// Queue strictly one at a time so arrival order is known.
		require.Eventually(t, func() bool { return g.Waiting() == i }, time.Second, time.Millisecond)
	}

	for i := 1; i <= 3; i++ {
		require.True(t, g.Release())
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(order) == i
		}, time.Second, time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 1, g.Active())
}

func TestAcquire_LateArrivalDoesNotJumpQueue(t *testing.T) {
	g := New(1)
	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx))

	first := make(chan struct{})
	go func() {
		_ = g.Acquire(ctx)
		close(first)
	}()
	require.Eventually(t, func() bool { return g.Waiting() == 1 }, time.Second, time.Millisecond)

	require.True(t, g.Release())
	<-first

	// The freed slot went to the queued waiter, so a newcomer must wait.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Acquire(short), context.DeadlineExceeded)
	assert.Equal(t, 1, g.Active())
}

func TestAcquire_CancelledWaiterHoldsNoSlot(t *testing.T) {
	g := New(1)
	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- g.Acquire(ctx) }()

	require.Eventually(t, func() bool { return g.Waiting() == 1 }, time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Equal(t, 0, g.Waiting())
	assert.Equal(t, 1, g.Active())

	require.True(t, g.Release())
	assert.Equal(t, 0, g.Active())
	require.NoError(t, g.Acquire(context.Background()))
}

func TestGate_NeverExceedsCapacity(t *testing.T) {
	const capacity = 3
	g := New(capacity)

	var (
		mu      sync.Mutex
		current int
		peak    int
		wg      sync.WaitGroup
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.Acquire(context.Background()))
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			g.Release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, capacity)
	assert.Equal(t, 0, g.Active())
}
