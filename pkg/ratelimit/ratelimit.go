// Package ratelimit guards ingest and transport endpoints against a
// single noisy federate: one token-bucket limiter per federate id,
// grounded on pkg/api/middleware.go's per-IP GlobalRateLimiter
// (visitors map + periodic stale-entry sweep), generalized from
// net/http middleware to a plain Allow(federateID) call any subsystem
// can use.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PerFederateLimiter holds one token-bucket limiter per federate id.
type PerFederateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	rps      rate.Limit
	burst    int
	idleTTL  time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New returns a PerFederateLimiter allowing rps events/sec with the
// given burst, per federate id. Entries idle longer than idleTTL are
// swept on the next Sweep call.
func New(rps float64, burst int, idleTTL time.Duration) *PerFederateLimiter {
	return &PerFederateLimiter{
		limiters: make(map[string]*entry),
		rps:      rate.Limit(rps),
		burst:    burst,
		idleTTL:  idleTTL,
	}
}

// Allow reports whether federateID may proceed now, consuming a token
// if so.
func (l *PerFederateLimiter) Allow(federateID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.limiters[federateID]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[federateID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Sweep removes limiter entries idle past idleTTL relative to now,
// bounding memory for a federation with high federate churn.
func (l *PerFederateLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.limiters, id)
			removed++
		}
	}
	return removed
}
