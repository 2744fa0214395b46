package redis

import (
	"testing"
	"time"

	"github.com/fediwatch/crawler/internal/domain"
)

func TestEncodeDecodeStateRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		state domain.LifecycleState
	}{
		{"discovered", domain.Discovered{Since: now}},
		{"alive", domain.Alive{AliveSince: now}},
		{"dying", domain.Dying{DyingSince: now, ConsecutiveFailures: 2}},
		{"dead", domain.Dead{DeadSince: now}},
		{"reviving", domain.Reviving{RevivingSince: now, ConsecutiveSuccesses: 1}},
		{"moving", domain.Moving{MovingSince: now, Target: "target.test"}},
		{"moved", domain.Moved{MovedAt: now, Target: "target.test"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := hostRecord{}
			encodeState(rec, tt.state)

			got, err := decodeState(rec)
			if err != nil {
				t.Fatalf("decodeState() error = %v", err)
			}
			if got.Kind() != tt.state.Kind() {
				t.Errorf("decodeState() kind = %v, want %v", got.Kind(), tt.state.Kind())
			}
		})
	}
}

func TestDecodeStateRejectsUnknownKind(t *testing.T) {
	rec := hostRecord{fieldKind: "sleeping"}
	if _, err := decodeState(rec); err == nil {
		t.Errorf("decodeState() with unknown kind = nil error, want error")
	}
}

func TestEncodeDecodeTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 6, 15, 8, 30, 0, 0, time.UTC)
	got := decodeTime(encodeTime(now))
	if !got.Equal(now) {
		t.Errorf("decodeTime(encodeTime(now)) = %v, want %v", got, now)
	}
}
