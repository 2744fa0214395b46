package orchestrator

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/fediwatch/crawler/internal/domain"
	"github.com/fediwatch/crawler/internal/ipc"
	"github.com/fediwatch/crawler/internal/logger"
	"github.com/fediwatch/crawler/internal/outcomereader"
)

// ProcConfig bounds a single Checker subprocess invocation.
type ProcConfig struct {
	SelfPath         string        // os.Executable() result, cached by the caller
	CheckerDeadline  time.Duration // checker_deadline
	WatchdogGrace    time.Duration // grace window between SIGTERM and SIGKILL
	MaxPeersPerCheck int
}

// RunChecker spawns "<SelfPath> check <host>" as a subprocess, reads its
// framed stdout through the Outcome Reader, and enforces CheckerDeadline
// with a SIGTERM-then-grace-then-SIGKILL sequence (spec.md §5:
// "Cancellation"). Grounded on original_source's CheckerHandle, whose
// Drop impl kills the child if try_wait hasn't reaped it by the time the
// handle goes out of scope — Go has no destructor equivalent, so the same
// discipline is made explicit here instead of implicit in a drop.
func RunChecker(ctx context.Context, cfg ProcConfig, log logger.Logger, host string) domain.Outcome {
	cmd := exec.Command(cfg.SelfPath, "check", host)
	cmd.Stdin = nil
	// Its own process group, so a kill -pid also reaps anything it forked
	// (spec.md §9: "further restrict Checkers via namespace/seccomp-style
	// facilities as available" — the Checker itself applies the rest, see
	// internal/checker/sandbox_linux.go).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return domain.OutcomeDead{Reason: fmt.Sprintf("opening checker stdout: %v", err)}
	}
	if err := cmd.Start(); err != nil {
		return domain.OutcomeDead{Reason: fmt.Sprintf("spawning checker: %v", err)}
	}

	readDone := make(chan domain.Outcome, 1)
	waitDone := make(chan error, 1)
	go func() {
		r := ipc.NewReader(stdout)
		readDone <- outcomereader.Read(r, outcomereader.Config{MaxPeersPerCheck: cfg.MaxPeersPerCheck}, log, host)
		// Wait closes stdout once the child exits, so it runs only after
		// the read above has reached the end of the stream.
		waitDone <- cmd.Wait()
	}()

	deadline := time.NewTimer(cfg.CheckerDeadline)
	defer deadline.Stop()

	select {
	case <-waitDone:
		return <-readDone
	case <-deadline.C:
		log.Warn("checker exceeded deadline", logger.String("host", host), logger.Duration("deadline", cfg.CheckerDeadline))
	case <-ctx.Done():
		log.Info("checker cancelled by shutdown", logger.String("host", host))
	}

	terminate(cmd, waitDone, cfg.WatchdogGrace, log, host)
	<-readDone // drain; the pipe closed on kill, so its result is discarded
	return domain.OutcomeTimeout{}
}

// terminate sends SIGTERM and waits up to grace for waitDone to close; if
// the child hasn't exited by then, it is SIGKILLed.
func terminate(cmd *exec.Cmd, waitDone <-chan error, grace time.Duration, log logger.Logger, host string) {
	if cmd.Process == nil {
		return
	}
	pgid := -cmd.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-waitDone:
		return
	case <-timer.C:
		log.Warn("checker survived SIGTERM, sending SIGKILL", logger.String("host", host))
		_ = syscall.Kill(pgid, syscall.SIGKILL)
		<-waitDone
	}
}
