package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRPS   = 20
	defaultBurst = 40
	limiterIdle  = 10 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool keeps one token bucket per caller key. Idle buckets are dropped lazily.
type limiterPool struct {
	mu          sync.Mutex
	m           map[string]*limiterEntry
	rps         float64
	burst       int
	lastCleanup time.Time
	now         func() time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = defaultRPS
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &limiterPool{
		m:     make(map[string]*limiterEntry),
		rps:   rps,
		burst: burst,
		now:   time.Now,
	}
}

func (p *limiterPool) get(key string, now time.Time) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if now.Sub(p.lastCleanup) > limiterIdle {
		for k, e := range p.m {
			if now.Sub(e.lastSeen) > limiterIdle {
				delete(p.m, k)
			}
		}
		p.lastCleanup = now
	}

	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(p.rps), p.burst)}
		p.m[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (p *limiterPool) Allow(key string) bool {
	now := p.now()
	return p.get(key, now).AllowN(now, 1)
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
