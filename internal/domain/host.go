// Package domain holds the crawler's core types: hosts, lifecycle states,
// check outcomes, and the state machine that turns one into the next.
package domain

import "time"

// Host is the canonical runtime record for one federation server.
//
// A Host is uniquely identified by its normalized Hostname. It carries
// exactly one current lifecycle State and exactly one NextCheck instant;
// the Store is the only component allowed to persist it.
type Host struct {
	Hostname  string
	State     LifecycleState
	NextCheck time.Time
}

// Kind discriminates the LifecycleState sum type without a type switch,
// for callers that only need to branch on the tag (logging, metrics,
// Redis hash fields).
type Kind string

const (
	KindDiscovered Kind = "discovered"
	KindAlive      Kind = "alive"
	KindDying      Kind = "dying"
	KindDead       Kind = "dead"
	KindReviving   Kind = "reviving"
	KindMoving     Kind = "moving"
	KindMoved      Kind = "moved"
)

// LifecycleState is the tagged union described in spec.md §3. Each variant
// carries its own payload; there is deliberately no shared nullable-column
// struct backing it in memory, even though the Redis encoding (see
// internal/store/redis) flattens it into one hash.
type LifecycleState interface {
	Kind() Kind
}

type Discovered struct {
	Since time.Time
}

func (Discovered) Kind() Kind { return KindDiscovered }

type Alive struct {
	AliveSince time.Time
}

func (Alive) Kind() Kind { return KindAlive }

type Dying struct {
	DyingSince          time.Time
	ConsecutiveFailures int
}

func (Dying) Kind() Kind { return KindDying }

type Dead struct {
	DeadSince time.Time
}

func (Dead) Kind() Kind { return KindDead }

type Reviving struct {
	RevivingSince        time.Time
	ConsecutiveSuccesses int
}

func (Reviving) Kind() Kind { return KindReviving }

type Moving struct {
	MovingSince time.Time
	Target      string
}

func (Moving) Kind() Kind { return KindMoving }

type Moved struct {
	MovedAt time.Time
	Target  string
}

func (Moved) Kind() Kind { return KindMoved }

// Counters tracks the per-host tallies the state machine and claim_due need
// alongside the lifecycle state itself (spec.md §3, "Counters").
type Counters struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	TotalRedirectFollows int
}

// ReviveThreshold is the number of consecutive successful checks required
// to promote a Dead host back to Alive via Reviving. The source material is
// ambiguous about the exact count (spec.md's "Open question — Reviving
// threshold"); this spec pins it at 2.
const ReviveThreshold = 2

// DyingFailureThreshold is the number of consecutive failures while Dying
// before a host is demoted to Dead.
const DyingFailureThreshold = 3

// MaxMovedChainHops bounds the walk used to detect cycles in chains of
// MovedPerm redirects (spec.md §8's cycle-detection invariant).
const MaxMovedChainHops = 32
