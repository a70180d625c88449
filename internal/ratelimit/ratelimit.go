// Package ratelimit throttles protocol requests per remote address with
// token buckets. The protocol endpoint is unauthenticated until deep into a
// connection, so the limiter keys on the network peer, not the user.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	available  float64
	lastRefill time.Time
}

func (b *bucket) refill(rate float64, burst int, now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.available += elapsed * rate
	if b.available > float64(burst) {
		b.available = float64(burst)
	}
	b.lastRefill = now
}

// Limiter is a keyed token-bucket limiter. Each key refills at rate tokens
// per second up to burst; buckets idle long enough to have fully refilled
// are dropped on the next sweep.
type Limiter struct {
	rate  float64
	burst int

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewLimiter creates a limiter allowing rate requests per second with the
// given burst per key.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		rate:      rate,
		burst:     burst,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// Allow consumes one token for key, reporting whether the request may
// proceed.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{available: float64(l.burst), lastRefill: now}
		l.buckets[key] = b
	}
	b.refill(l.rate, l.burst, now)
	if b.available < 1 {
		return false
	}
	b.available--
	return true
}

// sweep drops buckets that would be full anyway, bounding the map to peers
// seen recently. Runs at most once per idle period.
func (l *Limiter) sweep(now time.Time) {
	idle := time.Duration(float64(l.burst)/l.rate*float64(time.Second)) + time.Second
	if now.Sub(l.lastSweep) < idle {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.lastRefill) >= idle {
			delete(l.buckets, key)
		}
	}
}
