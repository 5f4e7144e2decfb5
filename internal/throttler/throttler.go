package throttler

import (
	"sync"

	"golang.org/x/time/rate"
)

// Throttler applies per-client response rate limiting. A zero or
// negative RPS disables limiting entirely.
type Throttler struct {
	rps   float64
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(rps float64, burst int) *Throttler {
	return &Throttler{
		rps:      rps,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a response may be sent to the given client IP.
func (t *Throttler) Allow(ip string) bool {
	if t.rps <= 0 {
		return true
	}

	t.mu.Lock()
	l, ok := t.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rate.Limit(t.rps), t.burst)
		t.limiters[ip] = l
	}
	t.mu.Unlock()

	return l.Allow()
}
