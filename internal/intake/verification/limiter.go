package verification

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// phoneLimiter keeps one token bucket per phone: limit tokens, refilled
// evenly over window. A bucket idle for a whole window is full again, so it
// is dropped and recreated on the next attempt.
type phoneLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*phoneBucket
	rate      rate.Limit
	burst     int
	window    time.Duration
	lastSweep time.Time
}

type phoneBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newPhoneLimiter(limit int, window time.Duration) *phoneLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	return &phoneLimiter{
		limiters: make(map[string]*phoneBucket),
		rate:     rate.Every(window / time.Duration(limit)),
		burst:    limit,
		window:   window,
	}
}

// allow reports whether the phone may perform one more attempt at now.
// A nil limiter allows everything.
func (l *phoneLimiter) allow(phone string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	b, ok := l.limiters[phone]
	if !ok {
		b = &phoneBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[phone] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// sweep runs at most once per window.
func (l *phoneLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for phone, b := range l.limiters {
		if now.Sub(b.lastSeen) >= l.window {
			delete(l.limiters, phone)
		}
	}
	l.lastSweep = now
}

func (l *phoneLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
