// Package ratelimit throttles mutating API calls per client key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

type Limiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu     sync.Mutex
	m      map[string]*entry
	sweeps int
}

// New returns a limiter allowing bursts of capacity and refillPerSec
// sustained requests per key.
func New(capacity, refillPerSec float64) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		limit:   rate.Limit(refillPerSec),
		burst:   int(capacity),
		idleTTL: 10 * time.Minute,
		now:     time.Now,
		m:       make(map[string]*entry),
	}
}

// Allow consumes one token for key if available.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)

	e, ok := l.m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.m[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// sweepLocked drops idle keys every 256 calls.
func (l *Limiter) sweepLocked(now time.Time) {
	l.sweeps++
	if l.sweeps&0xff != 0 {
		return
	}
	for k, e := range l.m {
		if now.Sub(e.seen) > l.idleTTL {
			delete(l.m, k)
		}
	}
}
