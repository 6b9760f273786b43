package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// staleTTL is how long a per-key limiter can be idle before cleanup.
	staleTTL = 10 * time.Minute

	// cleanupInterval is how often the background sweep runs.
	cleanupInterval = time.Minute
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerKey hands out one token bucket per key (typically a client IP) and
// evicts buckets idle past the TTL. Construct one per consumer and inject
// it; there is no package-level instance.
type PerKey struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	now      func() time.Time
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPerKey allows perMinute events per key, with burst capacity equal to
// the full per-minute budget. It starts a background sweep goroutine;
// call Stop to release it.
func NewPerKey(perMinute int) *PerKey {
	if perMinute <= 0 {
		perMinute = 1
	}
	p := &PerKey{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go p.cleanupLoop()
	return p
}

// Allow reports whether one event for key may proceed now.
func (p *PerKey) Allow(key string) bool {
	now := p.now()

	p.mu.Lock()
	e, ok := p.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.limiters[key] = e
	}
	e.lastSeen = now
	p.mu.Unlock()

	return e.limiter.Allow()
}

// Len returns the number of live buckets.
func (p *PerKey) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.limiters)
}

// Stop shuts down the background sweep. Safe to call more than once.
func (p *PerKey) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *PerKey) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.evictStale()
		}
	}
}

func (p *PerKey) evictStale() {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, e := range p.limiters {
		if now.Sub(e.lastSeen) > staleTTL {
			delete(p.limiters, key)
		}
	}
}
