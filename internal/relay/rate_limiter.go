package relay

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter enforces a minimum spacing between accepted messages on one
// connection. A rejected message leaves the state untouched.
type rateLimiter struct {
	limiter        *rate.Limiter
	interval       time.Duration
	lastAcceptedAt time.Time
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

// Allow reports whether a message arriving at now may pass. rate.Limiter
// refills in float tokens and can admit a message a nanosecond early, so the
// spacing from the last accepted message is checked exactly first.
func (l *rateLimiter) Allow(now time.Time) bool {
	if !l.lastAcceptedAt.IsZero() && now.Sub(l.lastAcceptedAt) < l.interval {
		return false
	}
	if !l.limiter.AllowN(now, 1) {
		return false
	}
	l.lastAcceptedAt = now
	return true
}
