package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fediwatch/crawler/internal/domain"
)

// hostRecord is the flattened hash representation of a domain.Host plus the
// bookkeeping fields the tagged union itself doesn't carry (spec.md §9
// explicitly allows the Store to flatten the in-memory tagged union into a
// single hash; only the in-memory representation must stay a sum type).
type hostRecord map[string]string

const (
	fieldKind                 = "kind"
	fieldDiscoveredSince      = "discovered_since"
	fieldAliveSince           = "alive_since"
	fieldDyingSince           = "dying_since"
	fieldDeadSince            = "dead_since"
	fieldRevivingSince        = "reviving_since"
	fieldMovingSince          = "moving_since"
	fieldMovingTarget         = "moving_target"
	fieldMovedAt              = "moved_at"
	fieldMovedTarget          = "moved_target"
	fieldLastAliveAt          = "last_alive_at"
	fieldConsecutiveFailures  = "consecutive_failures"
	fieldConsecutiveSuccesses = "consecutive_successes"
	fieldTotalRedirects       = "total_redirect_follows"
)

func encodeState(rec hostRecord, s domain.LifecycleState) {
	rec[fieldKind] = string(s.Kind())
	switch v := s.(type) {
	case domain.Discovered:
		rec[fieldDiscoveredSince] = encodeTime(v.Since)
	case domain.Alive:
		rec[fieldAliveSince] = encodeTime(v.AliveSince)
	case domain.Dying:
		rec[fieldDyingSince] = encodeTime(v.DyingSince)
		rec[fieldConsecutiveFailures] = strconv.Itoa(v.ConsecutiveFailures)
	case domain.Dead:
		rec[fieldDeadSince] = encodeTime(v.DeadSince)
	case domain.Reviving:
		rec[fieldRevivingSince] = encodeTime(v.RevivingSince)
		rec[fieldConsecutiveSuccesses] = strconv.Itoa(v.ConsecutiveSuccesses)
	case domain.Moving:
		rec[fieldMovingSince] = encodeTime(v.MovingSince)
		rec[fieldMovingTarget] = v.Target
	case domain.Moved:
		rec[fieldMovedAt] = encodeTime(v.MovedAt)
		rec[fieldMovedTarget] = v.Target
	}
}

func decodeState(rec hostRecord) (domain.LifecycleState, error) {
	switch domain.Kind(rec[fieldKind]) {
	case domain.KindDiscovered:
		return domain.Discovered{Since: decodeTime(rec[fieldDiscoveredSince])}, nil
	case domain.KindAlive:
		return domain.Alive{AliveSince: decodeTime(rec[fieldAliveSince])}, nil
	case domain.KindDying:
		failures, _ := strconv.Atoi(rec[fieldConsecutiveFailures])
		return domain.Dying{DyingSince: decodeTime(rec[fieldDyingSince]), ConsecutiveFailures: failures}, nil
	case domain.KindDead:
		return domain.Dead{DeadSince: decodeTime(rec[fieldDeadSince])}, nil
	case domain.KindReviving:
		successes, _ := strconv.Atoi(rec[fieldConsecutiveSuccesses])
		return domain.Reviving{RevivingSince: decodeTime(rec[fieldRevivingSince]), ConsecutiveSuccesses: successes}, nil
	case domain.KindMoving:
		return domain.Moving{MovingSince: decodeTime(rec[fieldMovingSince]), Target: rec[fieldMovingTarget]}, nil
	case domain.KindMoved:
		return domain.Moved{MovedAt: decodeTime(rec[fieldMovedAt]), Target: rec[fieldMovedTarget]}, nil
	default:
		return nil, fmt.Errorf("redis store: unknown stored kind %q", rec[fieldKind])
	}
}

func encodeTime(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func decodeTime(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

func toStringMap(rec hostRecord) map[string]interface{} {
	m := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		m[k] = v
	}
	return m
}
