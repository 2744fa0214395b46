// Package orchestrator is the single logical coordinator (spec.md §5):
// it claims due hosts from the Store, dispatches a bounded pool of
// Checker subprocesses under a global rate limit and a per-host daily
// cap, folds each outcome back through the Store, and keeps the
// Orchestrator's Bloom filter warm with every hostname it sees.
package orchestrator

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/fediwatch/crawler/internal/bloomfilter"
	"github.com/fediwatch/crawler/internal/domain"
	"github.com/fediwatch/crawler/internal/logger"
	"github.com/fediwatch/crawler/internal/metrics"
	"github.com/fediwatch/crawler/internal/ratelimit"
	"github.com/fediwatch/crawler/internal/store"
)

// Store operations that fail persistently can't be worked around by the
// Orchestrator itself — spec.md §9 has the service manager restart the
// process instead. storeRetryCap bounds how many exponentially-backed-off
// attempts run before giving up, grounded on internal/redis/connector.go's
// connectWithRetry shape.
const (
	storeRetryInitialWait = 500 * time.Millisecond
	storeRetryMaxWait     = 30 * time.Second
	storeRetryCap         = 8
)

// Config holds the Orchestrator's tunables, sourced from internal/config.
type Config struct {
	TickInterval        time.Duration // how often to poll the Store for due work
	ClaimBatchSize      int           // max hosts claimed per tick
	MaxConcurrentChecks int           // bounded worker pool size
	CheckerDeadline     time.Duration
	WatchdogGrace       time.Duration
	MaxPeersPerCheck    int
	SelfPath            string // argv[0] for spawning "check <host>" subprocesses
}

// Orchestrator ties the Store, rate limiters, Bloom filter, and Checker
// process pool together into the tick loop spec.md §4.4/§5 describes.
type Orchestrator struct {
	store   store.Store
	bloom   *bloomfilter.Filter
	global  *rate.Limiter
	perHost *ratelimit.PerHostLimiter
	logger  logger.Logger
	cfg     Config

	sem    chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	outcomeSeq uint64

	// runChecker defaults to RunChecker; tests swap it for a stub so they
	// don't need a real Checker subprocess binary on disk.
	runChecker func(ctx context.Context, cfg ProcConfig, log logger.Logger, host string) domain.Outcome

	// retryInitialWait, retryMaxWait, and retryCap govern retryStoreOp;
	// they default to the storeRetry* constants and exist as fields
	// purely so tests can shrink them instead of waiting out a real
	// backoff schedule. exitFunc defaults to os.Exit and is swapped in
	// tests that need to observe a persistent-failure exit without
	// actually killing the test binary.
	retryInitialWait time.Duration
	retryMaxWait     time.Duration
	retryCap         int
	exitFunc         func(int)
}

// New builds an Orchestrator. global and perHost are constructed by
// internal/app from config so they can be shared with other components
// (e.g. metrics) that want to observe the same limiters.
func New(st store.Store, bloom *bloomfilter.Filter, global *rate.Limiter, perHost *ratelimit.PerHostLimiter, log logger.Logger, cfg Config) *Orchestrator {
	if cfg.MaxConcurrentChecks < 1 {
		cfg.MaxConcurrentChecks = 1
	}
	return &Orchestrator{
		store:            st,
		bloom:            bloom,
		global:           global,
		perHost:          perHost,
		logger:           log,
		cfg:              cfg,
		sem:              make(chan struct{}, cfg.MaxConcurrentChecks),
		stopCh:           make(chan struct{}),
		runChecker:       RunChecker,
		retryInitialWait: storeRetryInitialWait,
		retryMaxWait:     storeRetryMaxWait,
		retryCap:         storeRetryCap,
		exitFunc:         os.Exit,
	}
}

// Start runs the tick loop in its own goroutine until Stop is called or
// ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.loop(ctx)
	}()
	return nil
}

// Stop halts dispatch and waits for in-flight checks to finish, up to
// ctx's deadline (spec.md §5: "drain outcome readers with a 5s deadline").
func (o *Orchestrator) Stop(ctx context.Context) error {
	close(o.stopCh)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) loop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.dispatchDue(ctx)
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// dispatchDue claims a batch of due hosts and fans each one out to a
// worker goroutine, respecting the global rate limit, the per-host daily
// cap, and the bounded concurrency semaphore.
func (o *Orchestrator) dispatchDue(ctx context.Context) {
	var hosts []domain.Host
	err := o.retryStoreOp(ctx, "claim_due", func() error {
		var err error
		hosts, err = o.store.ClaimDue(ctx, time.Now(), o.cfg.ClaimBatchSize)
		return err
	})
	if err != nil {
		return
	}

	for _, h := range hosts {
		if !o.perHost.Allow(h.Hostname, time.Now()) {
			o.logger.Debug("per-host rate limit deferred dispatch", logger.String("host", h.Hostname))
			continue
		}
		if err := o.global.Wait(ctx); err != nil {
			return
		}

		select {
		case o.sem <- struct{}{}:
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		}

		o.wg.Add(1)
		go func(hostname string) {
			defer o.wg.Done()
			defer func() { <-o.sem }()
			o.check(ctx, hostname)
		}(h.Hostname)
	}
}

// check runs one Checker subprocess to completion and folds its outcome
// back through the Store.
func (o *Orchestrator) check(ctx context.Context, host string) {
	o.logger.Info("checking", logger.String("host", host))

	metrics.ChecksDispatchedTotal.Inc()
	metrics.InFlightChecks.Inc()
	defer metrics.InFlightChecks.Dec()
	start := time.Now()

	outcome := o.runChecker(ctx, ProcConfig{
		SelfPath:         o.cfg.SelfPath,
		CheckerDeadline:  o.cfg.CheckerDeadline,
		WatchdogGrace:    o.cfg.WatchdogGrace,
		MaxPeersPerCheck: o.cfg.MaxPeersPerCheck,
	}, o.logger, host)

	metrics.CheckDurationSeconds.Observe(time.Since(start).Seconds())
	metrics.ChecksOutcomeTotal.WithLabelValues(metrics.OutcomeKind(outcome)).Inc()

	seq := atomic.AddUint64(&o.outcomeSeq, 1)

	// Bloom-gate the peers handed to the Store: a hostname the filter
	// already recognizes doesn't need another insert_discovered
	// round-trip (spec.md §9). The unfiltered outcome is still used
	// below to keep the filter itself warm with every peer observed.
	toRecord := outcome
	if alive, ok := outcome.(domain.OutcomeAlive); ok {
		toRecord = domain.OutcomeAlive{SoftwareName: alive.SoftwareName, Peers: o.unknownPeers(alive.Peers)}
	}

	err := o.retryStoreOp(ctx, "record_outcome", func() error {
		return o.store.RecordOutcome(ctx, host, seq, toRecord, time.Now())
	})
	if err != nil {
		return
	}

	if alive, ok := outcome.(domain.OutcomeAlive); ok {
		o.bloom.Add(host)
		for _, peer := range alive.Peers {
			o.bloom.Add(peer)
		}
	}
}

// unknownPeers filters peers down to those the Bloom filter hasn't
// already seen.
func (o *Orchestrator) unknownPeers(peers []string) []string {
	out := make([]string, 0, len(peers))
	for _, peer := range peers {
		if !o.bloom.MightContain(peer) {
			out = append(out, peer)
		}
	}
	return out
}

// retryStoreOp runs fn with exponential backoff, up to storeRetryCap
// attempts. A failure on the final attempt is persistent: the process
// exits so the service manager can restart it (spec.md §9), rather than
// leaving the Orchestrator spinning against an unreachable Store. Returns
// early, without exiting, if ctx or stopCh fire mid-retry — shutdown
// takes priority over exhausting the retry budget.
func (o *Orchestrator) retryStoreOp(ctx context.Context, op string, fn func() error) error {
	wait := o.retryInitialWait
	var lastErr error
	for attempt := 1; attempt <= o.retryCap; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == o.retryCap {
			break
		}
		o.logger.Warn("store operation failed, retrying",
			logger.String("op", op), logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", wait), logger.Error(lastErr))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-o.stopCh:
			timer.Stop()
			return lastErr
		}
		wait *= 2
		if wait > o.retryMaxWait {
			wait = o.retryMaxWait
		}
	}

	o.logger.Error("store operation failed persistently, exiting",
		logger.String("op", op), logger.Int("attempts", o.retryCap), logger.Error(lastErr))
	o.exitFunc(1)
	return lastErr
}
