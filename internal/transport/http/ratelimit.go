package http

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

const (
	limiterPruneThreshold = 1024
	limiterIdleTTL        = time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool keeps one token bucket per key. A nil pool allows everything.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*limiterEntry
	rps   rate.Limit
	burst int
	clock clock.Clock
}

func newLimiterPool(rps float64, burst int, clk clock.Clock) *limiterPool {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	if clk == nil {
		clk = clock.New()
	}
	return &limiterPool{
		m:     make(map[string]*limiterEntry),
		rps:   rate.Limit(rps),
		burst: burst,
		clock: clk,
	}
}

func (p *limiterPool) allow(key string) bool {
	if p == nil {
		return true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	if len(p.m) >= limiterPruneThreshold {
		p.pruneLocked(now)
	}

	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(p.rps, p.burst)}
		p.m[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (p *limiterPool) pruneLocked(now time.Time) {
	for key, e := range p.m {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(p.m, key)
		}
	}
}
