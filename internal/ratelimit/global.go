package ratelimit

import (
	"golang.org/x/time/rate"
)

// NewGlobalLimiter builds the token bucket bounding aggregate dispatch
// rate across all hosts (spec.md §5: "Token bucket of capacity
// max_checks_per_second, refilled every tick"). golang.org/x/time/rate is
// already part of the dependency pack (marcellinatrim-cr, NVIDIA-proxyfs).
func NewGlobalLimiter(maxChecksPerSecond int, burst int) *rate.Limiter {
	if maxChecksPerSecond < 1 {
		maxChecksPerSecond = 1
	}
	if burst < maxChecksPerSecond {
		burst = maxChecksPerSecond
	}
	return rate.NewLimiter(rate.Limit(maxChecksPerSecond), burst)
}
