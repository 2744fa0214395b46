package deps

import (
	"time"

	"github.com/fediwatch/crawler/internal/logger"
	"github.com/fediwatch/crawler/internal/store"
)

// Deps carries the control server's shared dependencies: everything a
// handler needs to report liveness/readiness, serve metrics, or trigger a
// snapshot, without reaching into the Orchestrator directly.
type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
	TimeNow   func() time.Time // for testing, defaults to time.Now

	AllowedHosts []string // Host headers allowed to reach the control server
	AllowedCIDRS []string // IPs allowed to reach the control server
	TrustProxy   bool     // true if running behind a trusted reverse proxy (e.g., cloudflared)

	Store           store.Store   // backs readyz's store-reachability check
	SnapshotTrigger chan struct{} // POST /snapshot/now sends here to wake the Snapshotter early
}
