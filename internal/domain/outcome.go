package domain

// Outcome is the tagged union a Checker process reports back for a single
// host (spec.md §4.2/§4.3). Exactly one outcome is produced per check, or
// none at all if the Checker dies before reporting — the Outcome Reader
// turns that silence into OutcomeDead itself.
type Outcome interface {
	isOutcome()
}

// OutcomeAlive reports a successful nodeinfo fetch, carrying whatever peer
// hostnames the instance's peers endpoint returned (possibly none, if the
// software doesn't expose one or the instance opted out of listing peers
// while still being reachable).
type OutcomeAlive struct {
	SoftwareName string
	Peers        []string
}

func (OutcomeAlive) isOutcome() {}

// OutcomeDead covers a check that could not reach the host (connection
// refused, DNS failure) and a Checker that exits without reporting a
// terminal outcome. Malformed nodeinfo and HTTP error statuses are reported
// as OutcomeProtocolError, and a missed deadline as OutcomeTimeout.
type OutcomeDead struct {
	Reason string
}

func (OutcomeDead) isOutcome() {}

// OutcomeMovedTemp reports a non-permanent 3xx redirect (302/303/307) from
// the well-known nodeinfo locator to another host. The Checker does not
// follow it; Target is the redirect's hostname, and the move is not treated
// as that target being the canonical host.
type OutcomeMovedTemp struct {
	Target string
}

func (OutcomeMovedTemp) isOutcome() {}

// OutcomeMovedPerm reports an instance that has declared, via a 301/308
// redirect from its well-known nodeinfo locator to another host, that it
// has permanently relocated to Target.
type OutcomeMovedPerm struct {
	Target string
}

func (OutcomeMovedPerm) isOutcome() {}

// OutcomePrivateOptOut reports an instance whose software-specific privacy
// convention (the `site.private` flag of GNU social's/Friendica's statusnet
// config, Hubzilla's `hide_in_statistics` siteinfo flag) indicates it does
// not want to be listed or crawled further, even though it answered the
// nodeinfo request.
type OutcomePrivateOptOut struct{}

func (OutcomePrivateOptOut) isOutcome() {}

// OutcomeRobotsDenied reports that the host's robots.txt disallows the
// crawler's user agent from the paths it needs.
type OutcomeRobotsDenied struct{}

func (OutcomeRobotsDenied) isOutcome() {}

// OutcomeOriginMismatch reports a redirect chain that left the same-origin
// policy (scheme+hostname+port, spec.md glossary) before nodeinfo could be
// fetched.
type OutcomeOriginMismatch struct {
	Target string
}

func (OutcomeOriginMismatch) isOutcome() {}

// OutcomeTimeout reports a check that exceeded its deadline with no
// terminal result yet produced.
type OutcomeTimeout struct{}

func (OutcomeTimeout) isOutcome() {}

// OutcomeProtocolError reports a structurally invalid nodeinfo exchange:
// an HTTP error status, unparsable JSON, an unsupported schema version, or
// a missing software.name. A failed peers fetch (error status, malformed
// or oversized payload) does not produce it: the check is still reported
// as Alive, with no peers.
type OutcomeProtocolError struct {
	Reason string
}

func (OutcomeProtocolError) isOutcome() {}

// IsFailure reports whether an outcome should increment a host's
// consecutive-failure counter (spec.md §4.4). OutcomeMovedTemp is not a
// failure: the host answered, it just redirected somewhere the policy
// won't follow.
func IsFailure(o Outcome) bool {
	switch o.(type) {
	case OutcomeAlive, OutcomeMovedTemp, OutcomeMovedPerm:
		return false
	default:
		return true
	}
}
