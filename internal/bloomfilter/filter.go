// Package bloomfilter keeps a probabilistic membership filter of every
// known hostname in the Orchestrator's memory, periodically rebuilt from
// the Store, to short-circuit peer-set membership checks before a Store
// round-trip (spec.md §9, "Peer-set growth").
package bloomfilter

import (
	"context"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/fediwatch/crawler/internal/logger"
)

// hostLister is the subset of store.Store the Filter needs to rebuild
// itself; kept narrow so tests can supply a fake without pulling in Redis.
type hostLister interface {
	AllHostnames(ctx context.Context) ([]string, error)
}

// Filter wraps a bloom.BloomFilter behind a mutex so Rebuild can swap it
// out while concurrent Test/Add calls from the Orchestrator's dispatch
// loop keep running against the previous generation until the swap.
type Filter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	store  hostLister
	logger logger.Logger
}

// New creates a Filter sized for expectedItems with a false-positive rate
// of falsePositiveRate (spec.md §2 cites ~10^6 hosts as the working set;
// the default wiring in internal/app sizes for that).
func New(expectedItems uint, falsePositiveRate float64, st hostLister, log logger.Logger) *Filter {
	return &Filter{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
		store:  st,
		logger: log,
	}
}

// MightContain reports whether hostname could already be known. A false
// result is certain; a true result may be a false positive (bloom filters
// have false positives, never false negatives). The result is not checked
// against the Store here.
func (f *Filter) MightContain(hostname string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(hostname)
}

// Add records hostname in the current generation immediately, so a peer
// observed between Rebuild cycles is still short-circuited on its next
// mention without waiting for the next rebuild.
func (f *Filter) Add(hostname string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.AddString(hostname)
}

// Rebuild reloads every known hostname from the Store into a fresh filter
// and atomically swaps it in. Called on a ticker by internal/app; a failed
// rebuild leaves the previous generation in place.
func (f *Filter) Rebuild(ctx context.Context, expectedItems uint, falsePositiveRate float64) error {
	hostnames, err := f.store.AllHostnames(ctx)
	if err != nil {
		return fmt.Errorf("bloomfilter: rebuild: %w", err)
	}

	size := expectedItems
	if uint(len(hostnames)) > size {
		size = uint(len(hostnames))
	}
	fresh := bloom.NewWithEstimates(size, falsePositiveRate)
	for _, h := range hostnames {
		fresh.AddString(h)
	}

	f.mu.Lock()
	f.filter = fresh
	f.mu.Unlock()

	f.logger.Info("bloom filter rebuilt", logger.Int("hosts", len(hostnames)))
	return nil
}
