//go:build linux

package checker

import (
	"golang.org/x/sys/unix"

	"github.com/fediwatch/crawler/internal/logger"
)

// ApplySandbox applies best-effort process hardening to the current
// process before it does any network I/O (spec.md §9: "further restrict
// Checkers via namespace/seccomp-style facilities as available"). It is
// meant to run once, at the very start of the hidden "check" subcommand.
// Failures are logged, not fatal: a container that already restricts
// these further (or denies them outright) shouldn't stop the check from
// proceeding.
func ApplySandbox(log logger.Logger) {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		log.Warn("failed to set no_new_privs", logger.Error(err))
	}

	limits := []struct {
		name string
		res  int
		cur  uint64
	}{
		{"RLIMIT_AS", unix.RLIMIT_AS, 512 * 1024 * 1024},
		{"RLIMIT_NOFILE", unix.RLIMIT_NOFILE, 64},
		{"RLIMIT_NPROC", unix.RLIMIT_NPROC, 16},
	}
	for _, l := range limits {
		rl := unix.Rlimit{Cur: l.cur, Max: l.cur}
		if err := unix.Setrlimit(l.res, &rl); err != nil {
			log.Warn("failed to set rlimit", logger.String("limit", l.name), logger.Error(err))
		}
	}
}
