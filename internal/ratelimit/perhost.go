// Package ratelimit provides the two rate limits the Orchestrator enforces
// at dispatch time (spec.md §5): a global token bucket bounding aggregate
// checker dispatch, and a per-host daily cap.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// PerHostConfig configures the per-host daily limiter.
type PerHostConfig struct {
	MaxPerDay     int           // spec.md §5/§6: max_checks_per_host_per_day (default 2)
	MaxEntries    int           // bound on tracked hosts before a sweep is forced
	SweepInterval time.Duration // how often idle entries are purged
	IdleTTL       time.Duration // an entry idle this long is evicted
}

type hostBucket struct {
	mu       sync.Mutex
	tokens   float64
	lastRef  time.Time
	lastSeen time.Time
}

// PerHostLimiter enforces spec.md §5's "no more than
// max_checks_per_host_per_day dispatches to any one host within any
// rolling 24h window", approximated as a continuously refilling token
// bucket with capacity MaxPerDay and a full refill every 24h — the same
// token-bucket-plus-idle-sweep idiom the teacher's HTTP rate-limit
// middleware uses per client IP (internal/httpserver/mw/rate_limit.go),
// repurposed here per hostname instead of per IP, with no HTTP layer.
type PerHostLimiter struct {
	cfg       PerHostConfig
	rate      float64 // tokens per second
	capacity  float64
	mu        sync.Mutex
	buckets   map[string]*hostBucket
	lastSweep time.Time
}

func NewPerHostLimiter(cfg PerHostConfig) *PerHostLimiter {
	if cfg.MaxPerDay < 1 {
		cfg.MaxPerDay = 1
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 48 * time.Hour
	}
	return &PerHostLimiter{
		cfg:       cfg,
		rate:      float64(cfg.MaxPerDay) / (24 * 60 * 60),
		capacity:  float64(cfg.MaxPerDay),
		buckets:   make(map[string]*hostBucket, 1024),
		lastSweep: time.Now(),
	}
}

// Allow reports whether hostname may be dispatched now, consuming a token
// if so.
func (l *PerHostLimiter) Allow(hostname string, now time.Time) bool {
	l.sweepMaybe(now)
	b := l.getBucket(hostname, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRef).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(l.capacity, b.tokens+elapsed*l.rate)
		b.lastRef = now
	}
	if b.tokens < 1.0 {
		return false
	}
	b.tokens -= 1.0
	b.lastSeen = now
	return true
}

func (l *PerHostLimiter) getBucket(hostname string, now time.Time) *hostBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.MaxEntries > 0 && len(l.buckets) >= l.cfg.MaxEntries {
		l.sweepLocked(now)
	}
	b := l.buckets[hostname]
	if b == nil {
		b = &hostBucket{tokens: l.capacity, lastRef: now, lastSeen: now}
		l.buckets[hostname] = b
	}
	return b
}

func (l *PerHostLimiter) sweepLocked(now time.Time) {
	for h, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.cfg.IdleTTL {
			delete(l.buckets, h)
		}
	}
	l.lastSweep = now
}

func (l *PerHostLimiter) sweepMaybe(now time.Time) {
	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.cfg.SweepInterval {
		l.sweepLocked(now)
	}
	l.mu.Unlock()
}
