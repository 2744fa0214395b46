// Package snapshot periodically rewrites the public alive-instance list
// (spec.md §4.5): a JSON array of lowercased, sorted hostnames plus a
// gzipped copy, both written via temp-file-then-rename so readers never
// observe a partial file.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fediwatch/crawler/internal/logger"
	"github.com/fediwatch/crawler/internal/metrics"
)

// Store is the subset of internal/store/redis.Store the Snapshotter needs.
type Store interface {
	SnapshotAlive(ctx context.Context, aliveWindow time.Duration, now time.Time) ([]string, error)
}

// Config controls where and how often a snapshot is produced.
type Config struct {
	Path        string        // target file, e.g. "/data/instances.json"
	Interval    time.Duration // snapshot_interval, default 30m
	AliveWindow time.Duration // alive_window, default 7 * 24h
}

// Snapshotter writes Config.Path and Config.Path+".gz" on a timer, and on
// demand via Trigger. Grounded on the teacher's HomepageReloader
// (ticker + manual-trigger channel, Start/Stop lifecycle).
type Snapshotter struct {
	store   Store
	logger  logger.Logger
	cfg     Config
	now     func() time.Time
	stopCh  chan struct{}
	trigger chan struct{}
}

// New builds a Snapshotter. trigger is a buffered channel the control
// server's /snapshot/now handler sends on to force an out-of-band write.
func New(store Store, log logger.Logger, cfg Config, trigger chan struct{}) *Snapshotter {
	return &Snapshotter{
		store:   store,
		logger:  log,
		cfg:     cfg,
		now:     time.Now,
		stopCh:  make(chan struct{}),
		trigger: trigger,
	}
}

// Start writes an initial snapshot, then runs the ticker/trigger loop in
// its own goroutine until Stop or ctx is cancelled.
func (s *Snapshotter) Start(ctx context.Context) error {
	if err := s.Snapshot(ctx); err != nil {
		return fmt.Errorf("initial snapshot failed: %w", err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Snapshot(ctx); err != nil {
					s.logger.Error("snapshot failed", logger.Error(err))
				}
			case <-s.trigger:
				s.logger.Info("manual snapshot triggered")
				if err := s.Snapshot(ctx); err != nil {
					s.logger.Error("snapshot failed", logger.Error(err))
				}
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker/trigger loop.
func (s *Snapshotter) Stop() {
	close(s.stopCh)
}

// Snapshot reads the current alive-set and rewrites both the plain and
// gzipped files. A failure leaves the previous snapshot in place
// (spec.md §4.5: "Failures are logged and the previous snapshot is
// retained").
func (s *Snapshotter) Snapshot(ctx context.Context) error {
	hostnames, err := s.store.SnapshotAlive(ctx, s.cfg.AliveWindow, s.now())
	if err != nil {
		metrics.SnapshotWritesTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("snapshot: reading alive set: %w", err)
	}
	if hostnames == nil {
		hostnames = []string{}
	}

	payload, err := json.Marshal(hostnames)
	if err != nil {
		metrics.SnapshotWritesTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("snapshot: marshaling instance list: %w", err)
	}

	if err := writeAtomic(s.cfg.Path, payload); err != nil {
		metrics.SnapshotWritesTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("snapshot: writing %s: %w", s.cfg.Path, err)
	}

	gzipped, err := gzipBytes(payload)
	if err != nil {
		metrics.SnapshotWritesTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("snapshot: gzipping instance list: %w", err)
	}
	gzPath := s.cfg.Path + ".gz"
	if err := writeAtomic(gzPath, gzipped); err != nil {
		metrics.SnapshotWritesTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("snapshot: writing %s: %w", gzPath, err)
	}

	metrics.SnapshotWritesTotal.WithLabelValues("success").Inc()
	metrics.SnapshotHostsGauge.Set(float64(len(hostnames)))
	s.logger.Info("snapshot written", logger.Int("hosts", len(hostnames)))
	return nil
}

// writeAtomic writes data to a temp file in target's directory, fsyncs
// it, then renames it over target — the same discipline the original
// implementation's list_generator used (NamedTempFile in the target
// directory, then persist()).
func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsyncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("setting temp file permissions: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("renaming temp file over %s: %w", target, err)
	}
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
