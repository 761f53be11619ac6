// Package ratelimit keeps one token bucket per client.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter manages rate limits for many clients.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	perHour int
}

// NewLimiter allows requestsPerHour per client with bursts up to burst.
func NewLimiter(requestsPerHour int, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(float64(requestsPerHour) / 3600.0),
		burst:   burst,
		perHour: requestsPerHour,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

// Allow takes a token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Tokens returns the tokens currently available to key.
func (l *Limiter) Tokens(key string) float64 {
	return l.get(key).Tokens()
}

// PerHour returns the configured hourly allowance.
func (l *Limiter) PerHour() int {
	return l.perHour
}

// Prune forgets clients idle for longer than idle. A forgotten client starts
// again with a full bucket, so idle should exceed the refill time.
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	n := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
