//go:build !linux

package checker

import "github.com/fediwatch/crawler/internal/logger"

// ApplySandbox is a no-op outside Linux: the rlimit/no-new-privs
// facilities it applies there have no portable equivalent, and spec.md §9
// only requires this "on supported OSes, ... as available".
func ApplySandbox(log logger.Logger) {
	log.Debug("process sandboxing is only implemented on linux, skipping")
}
