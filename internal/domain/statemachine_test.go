package domain

import (
	"testing"
	"time"
)

func TestTransitionAliveOutcome(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		current LifecycleState
		want    Kind
	}{
		{"discovered to alive", Discovered{Since: now}, KindAlive},
		{"alive stays alive", Alive{AliveSince: now}, KindAlive},
		{"dying recovers to alive", Dying{DyingSince: now, ConsecutiveFailures: 2}, KindAlive},
		{"dead becomes reviving", Dead{DeadSince: now}, KindReviving},
		{"moving resolves to alive", Moving{MovingSince: now, Target: "x.test"}, KindAlive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, nextCheck, peers := Transition(tt.current, OutcomeAlive{SoftwareName: "mastodon", Peers: []string{"peer.test"}}, now, nil)
			if next.Kind() != tt.want {
				t.Errorf("Transition() kind = %v, want %v", next.Kind(), tt.want)
			}
			if !nextCheck.After(now) {
				t.Errorf("Transition() next-check %v is not after now %v", nextCheck, now)
			}
			if len(peers) != 1 || peers[0] != "peer.test" {
				t.Errorf("Transition() peers = %v, want [peer.test]", peers)
			}
		})
	}
}

func TestTransitionRevivingRequiresTwoSuccesses(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first, _, _ := Transition(Dead{DeadSince: now}, OutcomeAlive{}, now, nil)
	reviving, ok := first.(Reviving)
	if !ok {
		t.Fatalf("Transition() from Dead on Alive = %T, want Reviving", first)
	}
	if reviving.ConsecutiveSuccesses != 1 {
		t.Fatalf("Reviving.ConsecutiveSuccesses = %d, want 1", reviving.ConsecutiveSuccesses)
	}

	second, _, _ := Transition(reviving, OutcomeAlive{}, now.Add(time.Hour), nil)
	if second.Kind() != KindAlive {
		t.Fatalf("Transition() second success kind = %v, want Alive (two consecutive successes)", second.Kind())
	}

	third, _, _ := Transition(second, OutcomeAlive{}, now.Add(2*time.Hour), nil)
	if third.Kind() != KindAlive {
		t.Fatalf("Transition() third success kind = %v, want Alive", third.Kind())
	}
}

func TestTransitionDyingEscalatesToDeadAtThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	state := LifecycleState(Alive{AliveSince: now})

	for i := 1; i <= DyingFailureThreshold; i++ {
		next, _, _ := Transition(state, OutcomeDead{Reason: "connection refused"}, now, nil)
		state = next
		if i < DyingFailureThreshold {
			if state.Kind() != KindDying {
				t.Fatalf("after %d failures kind = %v, want Dying", i, state.Kind())
			}
		} else {
			if state.Kind() != KindDead {
				t.Fatalf("after %d failures kind = %v, want Dead", i, state.Kind())
			}
		}
	}
}

func TestTransitionPrivateOptOutSkipsDying(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	next, _, _ := Transition(Alive{AliveSince: now}, OutcomePrivateOptOut{}, now, nil)
	if next.Kind() != KindDead {
		t.Fatalf("Transition() PrivateOptOut from Alive kind = %v, want Dead (skip Dying)", next.Kind())
	}
}

func TestTransitionMovedPermIsTerminal(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, current := range []LifecycleState{
		Discovered{Since: now},
		Alive{AliveSince: now},
		Dying{DyingSince: now},
		Dead{DeadSince: now},
	} {
		next, _, _ := Transition(current, OutcomeMovedPerm{Target: "new.test"}, now, nil)
		moved, ok := next.(Moved)
		if !ok {
			t.Fatalf("Transition(%v, MovedPerm) = %T, want Moved", current, next)
		}
		if moved.Target != "new.test" {
			t.Errorf("Moved.Target = %v, want new.test", moved.Target)
		}
	}
}

func TestTransitionMovedChainUpdatesTarget(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := Moved{MovedAt: now, Target: "first.test"}

	next, _, _ := Transition(m, OutcomeMovedPerm{Target: "second.test"}, now.Add(time.Hour), nil)
	moved, ok := next.(Moved)
	if !ok || moved.Target != "second.test" {
		t.Fatalf("Transition(Moved, MovedPerm) = %+v, want Moved{Target: second.test}", next)
	}
}

func TestTransitionMovedIsTerminalForOtherOutcomes(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := Moved{MovedAt: now, Target: "target.test"}

	for _, outcome := range []Outcome{OutcomeAlive{}, OutcomeDead{}, OutcomeMovedTemp{Target: "other.test"}} {
		next, _, _ := Transition(m, outcome, now, nil)
		moved, ok := next.(Moved)
		if !ok || moved.Target != "target.test" {
			t.Errorf("Transition(Moved, %T) = %+v, want unchanged Moved{Target: target.test}", outcome, next)
		}
	}
}

func TestIsFailure(t *testing.T) {
	tests := []struct {
		name string
		o    Outcome
		want bool
	}{
		{"alive is not failure", OutcomeAlive{}, false},
		{"moved temp is not failure", OutcomeMovedTemp{Target: "a.test"}, false},
		{"moved perm is not failure", OutcomeMovedPerm{Target: "a.test"}, false},
		{"dead is failure", OutcomeDead{}, true},
		{"timeout is failure", OutcomeTimeout{}, true},
		{"protocol error is failure", OutcomeProtocolError{}, true},
		{"origin mismatch is failure", OutcomeOriginMismatch{}, true},
		{"robots denied is failure", OutcomeRobotsDenied{}, true},
		{"private opt-out is failure", OutcomePrivateOptOut{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFailure(tt.o); got != tt.want {
				t.Errorf("IsFailure(%T) = %v, want %v", tt.o, got, tt.want)
			}
		})
	}
}
