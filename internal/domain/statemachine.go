package domain

import (
	"math/rand"
	"time"
)

// Base intervals from spec.md §4.4, before jitter is applied.
const (
	IntervalAlive       = 24 * time.Hour
	IntervalDying       = 6 * time.Hour
	IntervalDead        = 7 * 24 * time.Hour
	IntervalMoving      = 24 * time.Hour
	IntervalMovedTo     = 7 * 24 * time.Hour
	PeerDiscoveryWindow = 1 * time.Hour
)

// Transition implements the spec.md §4.4 state table: given a host's
// current state and a check's outcome, it returns the next lifecycle
// state, the jittered next-check instant, and any peer hostnames folded in
// from an Alive outcome (already normalized and deduplicated upstream by
// the Checker).
//
// now is the instant the outcome was recorded; rnd supplies jitter
// randomness and may be nil for production use.
func Transition(current LifecycleState, outcome Outcome, now time.Time, rnd *rand.Rand) (next LifecycleState, nextCheck time.Time, peers []string) {
	if _, moved := current.(Moved); moved {
		return transitionFromMoved(current.(Moved), outcome, now, rnd)
	}

	switch o := outcome.(type) {
	case OutcomeAlive:
		return transitionOnAlive(current, now, rnd), jittered(now, intervalForAlive(current), rnd), o.Peers
	case OutcomeMovedPerm:
		return Moved{MovedAt: now, Target: o.Target}, jittered(now, IntervalMovedTo, rnd), nil
	case OutcomeMovedTemp:
		return transitionOnMovedTemp(current, o, now, rnd)
	default:
		return transitionOnFailure(current, outcome, now, rnd)
	}
}

func intervalForAlive(current LifecycleState) time.Duration {
	return IntervalAlive
}

func transitionOnAlive(current LifecycleState, now time.Time, rnd *rand.Rand) LifecycleState {
	switch current.(type) {
	case Dead:
		return Reviving{RevivingSince: now, ConsecutiveSuccesses: 1}
	case Reviving:
		r := current.(Reviving)
		succ := r.ConsecutiveSuccesses + 1
		if succ >= ReviveThreshold {
			return Alive{AliveSince: now}
		}
		return Reviving{RevivingSince: r.RevivingSince, ConsecutiveSuccesses: succ}
	default:
		// Discovered, Alive, Dying, Moving all resolve to Alive on success.
		return Alive{AliveSince: now}
	}
}

func transitionOnMovedTemp(current LifecycleState, o OutcomeMovedTemp, now time.Time, rnd *rand.Rand) (LifecycleState, time.Time, []string) {
	switch current.(type) {
	case Dead, Reviving:
		return Moving{MovingSince: now, Target: o.Target}, jittered(now, IntervalMovedTo, rnd), nil
	default:
		return Moving{MovingSince: now, Target: o.Target}, jittered(now, IntervalMoving, rnd), nil
	}
}

func transitionOnFailure(current LifecycleState, outcome Outcome, now time.Time, rnd *rand.Rand) (LifecycleState, time.Time, []string) {
	_, privateOptOut := outcome.(OutcomePrivateOptOut)
	if privateOptOut {
		// PrivateOptOut skips Dying entirely regardless of current state.
		return Dead{DeadSince: now}, jittered(now, IntervalDead, rnd), nil
	}

	switch cur := current.(type) {
	case Discovered:
		return Dead{DeadSince: now}, jittered(now, IntervalDead, rnd), nil
	case Alive:
		return Dying{DyingSince: now, ConsecutiveFailures: 1}, jittered(now, IntervalDying, rnd), nil
	case Dying:
		failures := cur.ConsecutiveFailures + 1
		if failures >= DyingFailureThreshold {
			return Dead{DeadSince: now}, jittered(now, IntervalDead, rnd), nil
		}
		return Dying{DyingSince: cur.DyingSince, ConsecutiveFailures: failures}, jittered(now, IntervalDying, rnd), nil
	case Dead:
		return Dead{DeadSince: cur.DeadSince}, jittered(now, IntervalDead, rnd), nil
	case Reviving:
		return Dead{DeadSince: now}, jittered(now, IntervalDead, rnd), nil
	case Moving:
		return Dead{DeadSince: now}, jittered(now, IntervalDead, rnd), nil
	default:
		return Dead{DeadSince: now}, jittered(now, IntervalDead, rnd), nil
	}
}

func transitionFromMoved(m Moved, outcome Outcome, now time.Time, rnd *rand.Rand) (LifecycleState, time.Time, []string) {
	if mp, ok := outcome.(OutcomeMovedPerm); ok {
		return Moved{MovedAt: m.MovedAt, Target: mp.Target}, jittered(now, IntervalMovedTo, rnd), nil
	}
	// Alive, Failure, and MovedTemp all leave a Moved host's target
	// unchanged; it is re-checked at the same cadence purely to detect
	// reversal (spec.md §4.4's "re-check at 7d to detect reversal").
	return m, jittered(now, IntervalMovedTo, rnd), nil
}

func jittered(now time.Time, base time.Duration, rnd *rand.Rand) time.Time {
	return now.Add(Jitter(base, rnd))
}
