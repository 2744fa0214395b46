package routes

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fediwatch/crawler/internal/httpserver/deps"
	"github.com/fediwatch/crawler/internal/httpserver/handlers"
	"github.com/fediwatch/crawler/internal/httpserver/mw"
)

func init() { Register(registerSnapshotNow) }

// snapshotNowRateLimit guards against a misbehaving operator script
// hammering the trigger; a handful of manual snapshots per minute is
// already more than anyone would ever want.
var snapshotNowRateLimit = mw.RateLimitConfig{
	Burst:             2,
	RefillPerIPPerMin: 2,
	MaxEntries:        256,
	SweepInterval:     time.Minute,
	IdleTTL:           10 * time.Minute,
}

func registerSnapshotNow(r chi.Router, d deps.Deps) {
	cfg := snapshotNowRateLimit
	cfg.TrustProxy = d.TrustProxy

	r.With(
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
		mw.RateLimit(cfg),
	).Post("/snapshot/now", handlers.SnapshotNow(d))
}
