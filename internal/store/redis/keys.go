package redis

import "fmt"

// Key layout, following the teacher's key-builder-function convention
// (internal/store/redis/keys.go in the teacher): one function per key
// shape, no ad-hoc string concatenation at call sites.
const (
	// KeyPrefixHost prefixes the per-host hash holding lifecycle state,
	// counters, and bookkeeping fields.
	KeyPrefixHost = "fediwatch:host:"
	// KeySchedule is the sorted set of (hostname, next-check-unix)
	// entries that ClaimDue polls.
	KeySchedule = "fediwatch:schedule"
	// KeyAliveIndex is the sorted set of (hostname, last-alive-unix)
	// entries restricted to hosts currently in Alive, Dying, or Reviving,
	// used to serve SnapshotAlive without a full table scan.
	KeyAliveIndex = "fediwatch:alive_index"
	// KeyPrefixSeen prefixes the idempotency marker for a delivered
	// outcome, keyed by (host, outcome_seq). Modeled on the teacher's
	// cache.go TTL-keyed-cache idiom, repurposed as a dedupe set.
	KeyPrefixSeen = "fediwatch:seen:"
	// KeySchemaVersion holds the stamped schema version checked at
	// startup (spec.md §6: "startup refuses to run against an unknown
	// version").
	KeySchemaVersion = "fediwatch:schema:version"
)

func HostKey(hostname string) string {
	return KeyPrefixHost + hostname
}

func SeenKey(hostname string, outcomeSeq uint64) string {
	return fmt.Sprintf("%s%s:%d", KeyPrefixSeen, hostname, outcomeSeq)
}
