// Package ratelimit implements the sliding-window per-client-IP admission
// decision: a per-key deque of request timestamps, pruned to the trailing
// window on every check.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Decision is the outcome of an admission check, carrying everything the
// engine needs to set the X-RateLimit-* response headers.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a sliding-window counter keyed by client IP. It is safe for
// concurrent use; each key has its own critical section so unrelated keys
// never contend.
type Limiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	mu        sync.Mutex
	timestamps []time.Time
	lastSeen  time.Time
}

// New creates a Limiter admitting at most max requests per window, per key.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (l *Limiter) bucketFor(key string) *bucket {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b
}

// Allow runs the admission decision for key, mutating its deque.
func (l *Limiter) Allow(key string) Decision {
	b := l.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	b.lastSeen = now
	cutoff := now.Add(-l.window)

	kept := b.timestamps[:0]
	for _, ts := range b.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	// Record this attempt unconditionally, then check the deque length,
	// so a denied attempt still occupies a slot in its own window.
	b.timestamps = append(kept, now)

	count := len(b.timestamps)
	if count > l.max {
		oldest := b.timestamps[0]
		age := now.Sub(oldest)
		remaining := l.window - age
		retryAfter := time.Duration(0)
		if remaining > 0 {
			retryAfter = time.Duration(math.Ceil(remaining.Seconds())) * time.Second
		}
		return Decision{Allowed: false, Limit: l.max, Remaining: 0, RetryAfter: retryAfter}
	}

	remaining := l.max - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: l.max, Remaining: remaining}
}

// EvictIdle drops any key whose bucket has seen no admission check for
// longer than idleFor, bounding memory growth from one-off clients (spec
// §4.3: "the core must include periodic eviction of idle keys").
func (l *Limiter) EvictIdle(idleFor time.Duration) int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for key, b := range l.buckets {
		b.mu.Lock()
		stale := now.Sub(b.lastSeen) > idleFor
		b.mu.Unlock()
		if stale {
			delete(l.buckets, key)
			evicted++
		}
	}
	return evicted
}

// RunEviction evicts idle keys on a ticker until ctx-like stop channel closes. The
// caller owns the ticker's lifecycle via the returned stop function.
func (l *Limiter) RunEviction(interval, idleFor time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				l.EvictIdle(idleFor)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
