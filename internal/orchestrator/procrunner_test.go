package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fediwatch/crawler/internal/domain"
	"github.com/fediwatch/crawler/internal/logger"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-checker.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestRunCheckerSpawnFailureIsDead(t *testing.T) {
	cfg := ProcConfig{
		SelfPath:        filepath.Join(t.TempDir(), "does-not-exist"),
		CheckerDeadline: time.Second,
		WatchdogGrace:   time.Second,
	}

	got := RunChecker(context.Background(), cfg, logger.New("error", false), "host.example.org")

	if _, ok := got.(domain.OutcomeDead); !ok {
		t.Fatalf("got %T, want OutcomeDead", got)
	}
}

func TestRunCheckerDeadlineExceededIsTimeout(t *testing.T) {
	script := writeScript(t, "sleep 5\n")
	cfg := ProcConfig{
		SelfPath:        script,
		CheckerDeadline: 100 * time.Millisecond,
		WatchdogGrace:   200 * time.Millisecond,
	}

	start := time.Now()
	got := RunChecker(context.Background(), cfg, logger.New("error", false), "host.example.org")
	elapsed := time.Since(start)

	if _, ok := got.(domain.OutcomeTimeout); !ok {
		t.Fatalf("got %T, want OutcomeTimeout", got)
	}
	if elapsed > 2*time.Second {
		t.Errorf("RunChecker took %v, want well under the 5s sleep (SIGTERM should cut it short)", elapsed)
	}
}

func TestRunCheckerExitsCleanlyBeforeDeadline(t *testing.T) {
	script := writeScript(t, "exit 0\n")
	cfg := ProcConfig{
		SelfPath:        script,
		CheckerDeadline: time.Second,
		WatchdogGrace:   time.Second,
	}

	got := RunChecker(context.Background(), cfg, logger.New("error", false), "host.example.org")

	if _, ok := got.(domain.OutcomeDead); !ok {
		t.Fatalf("got %T, want OutcomeDead (no frames written before a clean exit)", got)
	}
}
