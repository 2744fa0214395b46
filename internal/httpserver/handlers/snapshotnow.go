package handlers

import (
	"net/http"

	"github.com/fediwatch/crawler/internal/httpserver/deps"
	"github.com/fediwatch/crawler/internal/logger"
)

// SnapshotNow triggers an out-of-band snapshot write.
func SnapshotNow(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case d.SnapshotTrigger <- struct{}{}:
			d.Logger.Info("manual snapshot triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte("snapshot triggered\n"))
		default:
			d.Logger.Warn("snapshot already in progress",
				logger.String("remote_ip", r.RemoteAddr))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("snapshot already in progress, please wait\n"))
		}
	}
}
