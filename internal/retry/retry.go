// Package retry implements the single retry helper every provider shares:
// a context-timeout-bounded attempt loop with jittered exponential
// backoff. HTTP 429 is deliberately never retried; upstream quota
// exhaustion is surfaced to the caller immediately.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/zenmcp/server-core/internal/agenterrors"
	"github.com/zenmcp/server-core/internal/zlog"
)

// Classification is the retry-eligibility bucket an attempt falls into.
type Classification int

const (
	// NonRetryable covers 400, 401, 403, 404, 422 and anything else not
	// explicitly listed as retryable.
	NonRetryable Classification = iota
	// Retryable covers connection reset, DNS failure, 5xx except 501, 408,
	// 409 idempotent, 502/503/504, and provider "overloaded" codes.
	Retryable
	// RateLimited is HTTP 429: never retried, attempt count stays at 1.
	RateLimited
	// Timeout is a deadline-exceeded classification distinct from a plain
	// non-retryable failure, so the caller returns UPSTREAM_TIMEOUT.
	Timeout
)

// ClassifyHTTPStatus buckets an upstream HTTP status for the retry loop.
func ClassifyHTTPStatus(status int) Classification {
	switch status {
	case 429:
		return RateLimited
	case 400, 401, 403, 404, 422:
		return NonRetryable
	case 408, 409, 501:
		// 408/409 are retryable for idempotent requests; 501 is the one
		// 5xx that never is.
		if status == 501 {
			return NonRetryable
		}
		return Retryable
	case 502, 503, 504:
		return Retryable
	}
	if status >= 500 {
		return Retryable
	}
	return NonRetryable
}

// Outcome is what an attempt function reports back to Do.
type Outcome struct {
	Classification    Classification
	HTTPStatus        int
	RetryAfterSeconds int // parsed from a numeric Retry-After header, if any
	BodyExcerpt       string
}

// Policy configures backoff and attempt bounds.
type Policy struct {
	BaseDelay   time.Duration // default 1s
	Cap         time.Duration // default 30s
	MaxAttempts int           // default 3
	Timeout     time.Duration // default 300s, per-request soft timeout

	// Rand is injectable so tests can make jitter deterministic; nil uses
	// the package-level default source.
	Rand *rand.Rand
}

// DefaultPolicy returns the stock production settings.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   time.Second,
		Cap:         30 * time.Second,
		MaxAttempts: 3,
		Timeout:     300 * time.Second,
	}
}

func (p Policy) jitteredDelay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	cap := p.Cap
	if cap <= 0 {
		cap = 30 * time.Second
	}
	backoff := base * time.Duration(1<<uint(attempt))
	if backoff > cap {
		backoff = cap
	}

	r := p.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	// Full jitter: uniform in [0, backoff].
	jittered := time.Duration(r.Int63n(int64(backoff) + 1))
	return jittered
}

// AttemptFunc performs one upstream call, returning the value, its
// Outcome, and an error (nil error with a non-success Outcome is not a
// valid combination; the function must return a non-nil error whenever
// Outcome.Classification != success, i.e. whenever it didn't succeed).
type AttemptFunc[T any] func(ctx context.Context, attempt int) (T, Outcome, error)

// Do runs fn under the retry/backoff policy. model and providerName are
// logged but not otherwise used.
func Do[T any](ctx context.Context, policy Policy, logger zlog.Logger, providerName, model string, fn AttemptFunc[T]) (T, error) {
	var zero T
	if logger == nil {
		logger = zlog.Noop{}
	}

	timeout := policy.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	start := time.Now()
	var lastErr error
	var lastOutcome Outcome

	for attempt := 0; attempt < maxAttempts; attempt++ {
		attemptStart := time.Now()
		val, outcome, err := fn(ctx, attempt)

		logger.Debug(ctx, "provider attempt completed",
			zlog.F("provider", providerName), zlog.F("model", model),
			zlog.F("attempt", attempt+1), zlog.F("attempt_elapsed_ms", time.Since(attemptStart).Milliseconds()))

		if err == nil {
			return val, nil
		}

		lastErr = err
		lastOutcome = outcome

		switch outcome.Classification {
		case RateLimited:
			// Exactly one attempt: surface immediately, no retry.
			logger.Warn(ctx, "upstream rate limited, not retrying",
				zlog.F("provider", providerName), zlog.F("model", model),
				zlog.F("retry_after", outcome.RetryAfterSeconds))
			return zero, agenterrors.UpstreamRateLimitedErr(outcome.RetryAfterSeconds)

		case NonRetryable:
			logger.Warn(ctx, "upstream failure not retryable",
				zlog.F("provider", providerName), zlog.F("model", model),
				zlog.F("http_status", outcome.HTTPStatus))
			return zero, agenterrors.UpstreamHTTPErr(outcome.HTTPStatus, outcome.BodyExcerpt)

		case Timeout:
			return zero, agenterrors.UpstreamTimeoutErr(err)

		case Retryable:
			if attempt == maxAttempts-1 {
				break // fall through to post-loop handling
			}

			delay := retryDelay(policy, attempt, outcome)

			logger.Info(ctx, "retrying after backoff",
				zlog.F("provider", providerName), zlog.F("model", model),
				zlog.F("attempt", attempt+1), zlog.F("delay_ms", delay.Milliseconds()))

			select {
			case <-ctx.Done():
				return zero, agenterrors.UpstreamTimeoutErr(ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	logger.Error(ctx, "all retry attempts exhausted",
		zlog.F("provider", providerName), zlog.F("model", model),
		zlog.F("attempts", maxAttempts), zlog.F("total_elapsed_ms", time.Since(start).Milliseconds()))

	if lastOutcome.Classification == Retryable {
		return zero, agenterrors.UpstreamTimeoutErr(lastErr)
	}
	return zero, agenterrors.UpstreamHTTPErr(lastOutcome.HTTPStatus, lastOutcome.BodyExcerpt)
}

// retryDelay applies the Retry-After override (capped at 60s) ahead of
// the computed jittered exponential backoff.
func retryDelay(policy Policy, attempt int, outcome Outcome) time.Duration {
	if outcome.RetryAfterSeconds > 0 {
		d := time.Duration(outcome.RetryAfterSeconds) * time.Second
		const maxRetryAfter = 60 * time.Second
		if d > maxRetryAfter {
			d = maxRetryAfter
		}
		return d
	}
	return policy.jitteredDelay(attempt)
}
