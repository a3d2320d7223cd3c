package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit is the per-provider outbound token bucket: it bounds local
// call rate ahead of whatever the retry helper does about upstream 429s.
type RateLimit struct {
	limiter     *rate.Limiter
	waitTimeout time.Duration
}

// NewRateLimit builds a limiter allowing requestsPerMinute sustained calls
// with a burst equal to the same count, per provider. waitTimeout bounds
// how long Wait will block before failing closed.
func NewRateLimit(requestsPerMinute int, waitTimeout time.Duration) *RateLimit {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if waitTimeout <= 0 {
		waitTimeout = 10 * time.Second
	}
	perSecond := float64(requestsPerMinute) / 60.0
	return &RateLimit{
		limiter:     rate.NewLimiter(rate.Limit(perSecond), requestsPerMinute),
		waitTimeout: waitTimeout,
	}
}

// Wait blocks until a token is available or waitTimeout elapses, whichever
// is first; it fails closed rather than blocking forever.
func (r *RateLimit) Wait(ctx context.Context) error {
	if r == nil || r.limiter == nil {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, r.waitTimeout)
	defer cancel()
	return r.limiter.Wait(waitCtx)
}
