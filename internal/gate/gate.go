// Package gate bounds the number of concurrently active browser sessions.
package gate

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate admits at most Capacity holders at a time. Callers that arrive while
// the gate is full wait in arrival order; a released slot goes straight to the
// head of the queue.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64

	mu     sync.Mutex
	active int64

	waiting atomic.Int64
}

// New creates a gate with the given capacity. Capacities below one are
// treated as one.
func New(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Acquire blocks until the caller holds a slot or ctx is done. A caller whose
// context ends while queued leaves the queue without holding a slot.
func (g *Gate) Acquire(ctx context.Context) error {
	if !g.sem.TryAcquire(1) {
		g.waiting.Add(1)
		err := g.sem.Acquire(ctx, 1)
		g.waiting.Add(-1)
		if err != nil {
			return err
		}
	}

	g.mu.Lock()
	g.active++
	g.mu.Unlock()
	return nil
}

// Release returns one slot. It is a no-op when nothing is held, so a stray
// second release never drives the count negative. The semaphore hands the
// permit to the oldest waiter under its own lock.
func (g *Gate) Release() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active <= 0 {
		return false
	}
	g.active--
	g.sem.Release(1)
	return true
}

// Active returns the number of slots currently held.
func (g *Gate) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(g.active)
}

// Waiting returns the number of callers queued for a slot.
func (g *Gate) Waiting() int {
	return int(g.waiting.Load())
}

// Capacity returns the configured maximum.
func (g *Gate) Capacity() int {
	return int(g.capacity)
}
