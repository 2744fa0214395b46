// Package integration exercises multiple packages together, the way
// package-level unit tests don't: seed intake feeding the store that
// the snapshotter later reads back from (spec.md §8's round-trip
// property).
package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fediwatch/crawler/internal/logger"
	"github.com/fediwatch/crawler/internal/seedintake"
	"github.com/fediwatch/crawler/internal/snapshot"
)

// fakeStore is a minimal in-memory stand-in satisfying both
// seedintake.Store and snapshot.Store, recording each host's insertion
// time and whether it was later marked alive.
type fakeStore struct {
	mu       sync.Mutex
	inserted map[string]time.Time
	alive    map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		inserted: make(map[string]time.Time),
		alive:    make(map[string]bool),
	}
}

func (f *fakeStore) InsertDiscovered(ctx context.Context, hostname string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted[hostname] = now
	return nil
}

// markAlive simulates the orchestrator recording an Alive outcome for a
// seeded host, the step this test doesn't otherwise exercise.
func (f *fakeStore) markAlive(hostname string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[hostname] = true
}

func (f *fakeStore) SnapshotAlive(ctx context.Context, aliveWindow time.Duration, now time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for hostname, insertedAt := range f.inserted {
		if !f.alive[hostname] {
			continue
		}
		if now.Sub(insertedAt) > aliveWindow {
			continue
		}
		out = append(out, hostname)
	}
	sort.Strings(out)
	return out, nil
}

// TestSeedIntakeThenSnapshotRoundTrip covers spec.md §8's round-trip
// property: seed-intake of a list L, followed by a snapshot, restricted
// to hosts that produced Alive outcomes, equals the Alive subset of L
// modulo normalization.
func TestSeedIntakeThenSnapshotRoundTrip(t *testing.T) {
	seeds := "Mastodon.Example.ORG\nhttps://pleroma.example.net\nlemmy.example.com\nnot a hostname\n"
	aliveHosts := map[string]bool{
		"mastodon.example.org": true,
		"pleroma.example.net":  true,
	}

	store := newFakeStore()
	log := logger.New("error", false)
	now := time.Now()

	result, err := seedintake.Run(context.Background(), store, log, strings.NewReader(seeds), now)
	if err != nil {
		t.Fatalf("seedintake.Run() error = %v", err)
	}
	if result.Accepted != 2 {
		t.Fatalf("Accepted = %d, want 2", result.Accepted)
	}

	for hostname := range aliveHosts {
		store.markAlive(hostname)
	}

	dir := t.TempDir()
	snapPath := filepath.Join(dir, "instances.json")
	trigger := make(chan struct{}, 1)
	snapper := snapshot.New(store, log, snapshot.Config{
		Path:        snapPath,
		Interval:    time.Hour,
		AliveWindow: 7 * 24 * time.Hour,
	}, trigger)

	if err := snapper.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	data, err := os.ReadFile(snapPath)
	if err != nil {
		t.Fatalf("reading snapshot file: %v", err)
	}
	var got []string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshaling snapshot: %v", err)
	}

	want := []string{"mastodon.example.org"}
	if len(got) != len(want) {
		t.Fatalf("snapshot hosts = %v, want %v", got, want)
	}
	for i, hostname := range want {
		if got[i] != hostname {
			t.Errorf("snapshot[%d] = %s, want %s", i, got[i], hostname)
		}
	}

	if _, err := os.Stat(snapPath + ".gz"); err != nil {
		t.Errorf("gzipped snapshot missing: %v", err)
	}
}

// TestSeedIntakeRejectsInvalidHostnamesBeforeSnapshot confirms a
// rejected seed line never reaches the alive set, regardless of how
// it's later (mis)reported.
func TestSeedIntakeRejectsInvalidHostnamesBeforeSnapshot(t *testing.T) {
	store := newFakeStore()
	log := logger.New("error", false)
	now := time.Now()

	result, err := seedintake.Run(context.Background(), store, log, strings.NewReader("192.0.2.1\nnot a hostname\n"), now)
	if err != nil {
		t.Fatalf("seedintake.Run() error = %v", err)
	}
	if result.Accepted != 0 || result.Rejected != 2 {
		t.Fatalf("result = %+v, want 0 accepted, 2 rejected", result)
	}

	dir := t.TempDir()
	snapPath := filepath.Join(dir, "instances.json")
	trigger := make(chan struct{}, 1)
	snapper := snapshot.New(store, log, snapshot.Config{
		Path:        snapPath,
		Interval:    time.Hour,
		AliveWindow: 7 * 24 * time.Hour,
	}, trigger)

	if err := snapper.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	data, err := os.ReadFile(snapPath)
	if err != nil {
		t.Fatalf("reading snapshot file: %v", err)
	}
	var got []string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshaling snapshot: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("snapshot hosts = %v, want empty", got)
	}
}
