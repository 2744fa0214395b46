// Package metrics holds the crawl's Prometheus instrumentation, served at
// the control server's /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fediwatch/crawler/internal/domain"
)

// Registry is a dedicated registry (not the global DefaultRegisterer) so
// /metrics never picks up Go runtime metrics registered by an unrelated
// import elsewhere in the binary.
var Registry = prometheus.NewRegistry()

var (
	ChecksDispatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fediwatch",
		Name:      "checks_dispatched_total",
		Help:      "Total Checker subprocesses spawned by the Orchestrator.",
	})

	ChecksOutcomeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fediwatch",
		Name:      "checks_outcome_total",
		Help:      "Completed checks by outcome kind.",
	}, []string{"outcome"})

	CheckDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fediwatch",
		Name:      "check_duration_seconds",
		Help:      "Wall-clock time of a single Checker invocation, spawn to outcome.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms .. ~200s
	})

	InFlightChecks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fediwatch",
		Name:      "in_flight_checks",
		Help:      "Checker subprocesses currently running.",
	})

	SnapshotWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fediwatch",
		Name:      "snapshot_writes_total",
		Help:      "Snapshot write attempts by result.",
	}, []string{"result"})

	SnapshotHostsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fediwatch",
		Name:      "snapshot_hosts",
		Help:      "Number of hostnames in the most recently written snapshot.",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fediwatch",
		Name:      "build_info",
		Help:      "Build info (constant 1, labeled by version and commit).",
	}, []string{"version", "commit"})

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "fediwatch",
		Name:      "uptime_seconds",
		Help:      "Process uptime in seconds.",
	}, func() float64 { return time.Since(startTime).Seconds() })
)

func init() {
	Registry.MustRegister(
		ChecksDispatchedTotal,
		ChecksOutcomeTotal,
		CheckDurationSeconds,
		InFlightChecks,
		SnapshotWritesTotal,
		SnapshotHostsGauge,
		buildInfo,
		uptime,
	)
}

// SetBuildInfo should be called once at startup.
func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// OutcomeKind returns the label value an Outcome is recorded under.
func OutcomeKind(o domain.Outcome) string {
	switch o.(type) {
	case domain.OutcomeAlive:
		return "alive"
	case domain.OutcomeDead:
		return "dead"
	case domain.OutcomeMovedTemp:
		return "moved_temp"
	case domain.OutcomeMovedPerm:
		return "moved_perm"
	case domain.OutcomePrivateOptOut:
		return "private_opt_out"
	case domain.OutcomeRobotsDenied:
		return "robots_denied"
	case domain.OutcomeOriginMismatch:
		return "origin_mismatch"
	case domain.OutcomeTimeout:
		return "timeout"
	case domain.OutcomeProtocolError:
		return "protocol_error"
	default:
		return "unknown"
	}
}
