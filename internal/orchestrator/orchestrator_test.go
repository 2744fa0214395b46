package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/fediwatch/crawler/internal/bloomfilter"
	"github.com/fediwatch/crawler/internal/domain"
	"github.com/fediwatch/crawler/internal/logger"
	"github.com/fediwatch/crawler/internal/ratelimit"
)

type fakeStore struct {
	mu       sync.Mutex
	due      []domain.Host
	recorded []string
	claimErr error
}

func (f *fakeStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.Host, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	claimed := f.due
	f.due = nil
	if len(claimed) > limit {
		claimed, f.due = claimed[:limit], claimed[limit:]
	}
	return claimed, nil
}

func (f *fakeStore) RecordOutcome(ctx context.Context, host string, outcomeSeq uint64, outcome domain.Outcome, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, host)
	return nil
}

func (f *fakeStore) InsertDiscovered(ctx context.Context, hostname string, now time.Time) error {
	return nil
}

func (f *fakeStore) SnapshotAlive(ctx context.Context, aliveWindow time.Duration, now time.Time) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) AllHostnames(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) Close() error { return nil }

func testOrchestrator(t *testing.T, st *fakeStore, cfg Config) *Orchestrator {
	t.Helper()
	log := logger.New("error", false)
	bloom := bloomfilter.New(100, 0.01, st, log)
	global := rate.NewLimiter(rate.Limit(1000), 1000)
	perHost := ratelimit.NewPerHostLimiter(ratelimit.PerHostConfig{MaxPerDay: 10})
	if cfg.MaxConcurrentChecks == 0 {
		cfg.MaxConcurrentChecks = 4
	}
	if cfg.ClaimBatchSize == 0 {
		cfg.ClaimBatchSize = 10
	}
	return New(st, bloom, global, perHost, log, cfg)
}

func TestDispatchDueRecordsOutcomeAndFeedsBloom(t *testing.T) {
	st := &fakeStore{due: []domain.Host{{Hostname: "a.example.org"}}}
	o := testOrchestrator(t, st, Config{})
	o.runChecker = func(ctx context.Context, cfg ProcConfig, log logger.Logger, host string) domain.Outcome {
		return domain.OutcomeAlive{SoftwareName: "mastodon", Peers: []string{"b.example.org"}}
	}

	o.dispatchDue(context.Background())
	o.wg.Wait()

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.recorded) != 1 || st.recorded[0] != "a.example.org" {
		t.Fatalf("recorded = %v, want [a.example.org]", st.recorded)
	}
	if !o.bloom.MightContain("a.example.org") {
		t.Error("bloom filter should contain the checked host")
	}
	if !o.bloom.MightContain("b.example.org") {
		t.Error("bloom filter should contain a discovered peer")
	}
}

func TestDispatchDueSkipsHostsOverPerHostLimit(t *testing.T) {
	st := &fakeStore{due: []domain.Host{{Hostname: "a.example.org"}}}
	o := testOrchestrator(t, st, Config{})
	calls := 0
	o.runChecker = func(ctx context.Context, cfg ProcConfig, log logger.Logger, host string) domain.Outcome {
		calls++
		return domain.OutcomeAlive{SoftwareName: "mastodon"}
	}
	o.perHost = ratelimit.NewPerHostLimiter(ratelimit.PerHostConfig{MaxPerDay: 1})

	now := time.Now()
	o.perHost.Allow("a.example.org", now) // consume the only token up front

	o.dispatchDue(context.Background())
	o.wg.Wait()

	if calls != 0 {
		t.Errorf("runChecker called %d times, want 0 (per-host limit exhausted)", calls)
	}
}

func TestDispatchDueClaimErrorRetriesThenExits(t *testing.T) {
	st := &fakeStore{claimErr: context.DeadlineExceeded}
	o := testOrchestrator(t, st, Config{})
	o.retryCap = 2
	o.retryInitialWait = time.Millisecond

	exitCode := make(chan int, 1)
	o.exitFunc = func(code int) { exitCode <- code }

	o.dispatchDue(context.Background()) // must not panic

	select {
	case code := <-exitCode:
		if code != 1 {
			t.Errorf("exit code = %d, want 1", code)
		}
	case <-time.After(time.Second):
		t.Fatal("expected exitFunc to be called after retries were exhausted")
	}
}

func TestDispatchDueClaimErrorAbortsOnShutdown(t *testing.T) {
	st := &fakeStore{claimErr: context.DeadlineExceeded}
	o := testOrchestrator(t, st, Config{})
	o.retryCap = 5
	o.retryInitialWait = time.Hour // never fires before stopCh does

	exited := false
	o.exitFunc = func(int) { exited = true }

	close(o.stopCh)
	o.dispatchDue(context.Background())

	if exited {
		t.Error("exitFunc should not be called once shutdown has started")
	}
}

func TestStartAndStop(t *testing.T) {
	st := &fakeStore{}
	o := testOrchestrator(t, st, Config{TickInterval: time.Hour})

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	hosts := make([]domain.Host, 20)
	for i := range hosts {
		hosts[i] = domain.Host{Hostname: string(rune('a'+i)) + ".example.org"}
	}
	st := &fakeStore{due: hosts}
	o := testOrchestrator(t, st, Config{MaxConcurrentChecks: 3})

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	release := make(chan struct{})
	o.runChecker = func(ctx context.Context, cfg ProcConfig, log logger.Logger, host string) domain.Outcome {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		<-release
		mu.Lock()
		inFlight--
		mu.Unlock()
		return domain.OutcomeDead{Reason: "test"}
	}

	go o.dispatchDue(context.Background())
	time.Sleep(50 * time.Millisecond)
	close(release)
	o.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight > 3 {
		t.Errorf("maxInFlight = %d, want <= 3", maxInFlight)
	}
}
