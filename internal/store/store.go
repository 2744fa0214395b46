// Package store defines the durable, single-writer persistence interface
// used by the Orchestrator and Seed Intake (spec.md §4.1). The only
// implementation is internal/store/redis; the interface exists so the
// Orchestrator's tests can substitute an in-memory fake.
package store

import (
	"context"
	"time"

	"github.com/fediwatch/crawler/internal/domain"
)

// Store is the single-writer persistence contract. Every method must be
// atomic in its entirety (spec.md §9: "must make claim_due and
// record_outcome atomic in their entirety").
type Store interface {
	// ClaimDue returns up to limit hosts whose next-check is due at or
	// before now, ascending by next-check then hostname, and atomically
	// pushes each claimed host's next-check forward by its state's
	// pessimistic reschedule interval.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.Host, error)

	// RecordOutcome applies the §4.4 transition for host's current state
	// and outcome, updates counters, sets the next next-check instant, and
	// inserts any newly observed peers as Discovered, all in one
	// transaction. outcomeSeq makes the call idempotent: a duplicate
	// delivery of the same (host, outcomeSeq) is a no-op.
	RecordOutcome(ctx context.Context, host string, outcomeSeq uint64, outcome domain.Outcome, now time.Time) error

	// InsertDiscovered inserts hostname with state Discovered and a
	// jittered next-check within the next hour, unless it already exists.
	InsertDiscovered(ctx context.Context, hostname string, now time.Time) error

	// SnapshotAlive returns every hostname currently within the Alive
	// Window, lexicographically sorted, deduplicated.
	SnapshotAlive(ctx context.Context, aliveWindow time.Duration, now time.Time) ([]string, error)

	// AllHostnames streams every known hostname, used to rebuild the
	// Orchestrator's Bloom filter (spec.md §9's "periodically rebuilt from
	// the Store").
	AllHostnames(ctx context.Context) ([]string, error)

	// Ping reports whether the store is currently reachable, used by the
	// control server's readyz handler.
	Ping(ctx context.Context) error

	Close() error
}

// ErrUnknownHost is returned by RecordOutcome when the host was never
// inserted via InsertDiscovered or a peer fold-in.
var ErrUnknownHost = errUnknownHost{}

type errUnknownHost struct{}

func (errUnknownHost) Error() string { return "store: unknown host" }
