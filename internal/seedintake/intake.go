// Package seedintake implements the `--add-instances` CLI mode (spec.md
// §4.6): read candidate hostnames from standard input, one per line,
// normalize and validate each against the Public Suffix List, and insert
// the survivors into the Store as newly Discovered hosts.
package seedintake

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fediwatch/crawler/internal/domain"
	"github.com/fediwatch/crawler/internal/logger"
)

// Store is the subset of internal/store/redis.Store seed intake needs.
type Store interface {
	InsertDiscovered(ctx context.Context, hostname string, now time.Time) error
}

// Result summarizes one intake run.
type Result struct {
	Accepted int
	Rejected int
}

// Accepted50Percent reports whether at least half the input lines were
// accepted — the threshold spec.md §4.6 ties the process exit code to.
func (r Result) Accepted50Percent() bool {
	total := r.Accepted + r.Rejected
	if total == 0 {
		return true
	}
	return 2*r.Accepted >= total
}

// Run reads hostnames from r, one per line, and inserts each valid one
// into store. It never stops early on a single bad line — intake is a
// best-effort bulk load, not a transaction.
func Run(ctx context.Context, store Store, log logger.Logger, r io.Reader, now time.Time) (Result, error) {
	scanner := bufio.NewScanner(r)
	var result Result

	for scanner.Scan() {
		raw := scanner.Text()
		if raw == "" {
			continue
		}

		hostname, err := domain.NormalizeHostname(raw)
		if err != nil {
			log.Warn("rejecting seed hostname", logger.String("raw", raw), logger.Error(err))
			result.Rejected++
			continue
		}

		if err := store.InsertDiscovered(ctx, hostname, now); err != nil {
			return result, fmt.Errorf("seedintake: inserting %s: %w", hostname, err)
		}
		log.Info("seeded instance", logger.String("hostname", hostname))
		result.Accepted++
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("seedintake: reading stdin: %w", err)
	}

	return result, nil
}
