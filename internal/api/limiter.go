package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultBurst = 5

// rateLimiter keeps one token bucket per caller. A nil limiter or one
// built with a non-positive rate lets everything through.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	if burst <= 0 {
		burst = defaultBurst
	}
	return &rateLimiter{buckets: make(map[string]*bucket), limit: rate.Limit(rps), burst: burst, now: time.Now}
}

func (l *rateLimiter) allow(caller string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}

	now := l.now()
	l.mu.Lock()
	b, ok := l.buckets[caller]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[caller] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

// sweep drops buckets idle long enough to have refilled completely; a
// full bucket behaves exactly like a new one. Returns the number removed.
func (l *rateLimiter) sweep() int {
	if l == nil || l.limit <= 0 {
		return 0
	}
	refill := time.Duration(float64(l.burst) / float64(l.limit) * float64(time.Second))
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for caller, b := range l.buckets {
		if now.Sub(b.lastSeen) >= refill {
			delete(l.buckets, caller)
			removed++
		}
	}
	return removed
}
