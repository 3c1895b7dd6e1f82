package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is a pure (attempt number) -> delay function, kept separate
// from any sleeping/IO so it can be unit tested directly.
type RetryPolicy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	Jitter      func() time.Duration
}

// NewRetryPolicy returns the original's policy: exponential doubling from
// BaseDelay, plus up to one second of uniform jitter.
func NewRetryPolicy(maxRetries int, baseDelay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		Jitter:     func() time.Duration { return time.Duration(rand.Float64() * float64(time.Second)) },
	}
}

// Delay returns the delay before attempt (1-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay << uint(attempt-1)
	jitter := time.Duration(0)
	if p.Jitter != nil {
		jitter = p.Jitter()
	}
	return base + jitter
}

// backoffAdapter bridges RetryPolicy's attempt-indexed delay curve to the
// cenkalti/backoff interface so retry loops can lean on that library's
// well-tested Retry driver instead of a second hand-rolled loop.
type backoffAdapter struct {
	policy  RetryPolicy
	attempt int
}

func (a *backoffAdapter) NextBackOff() time.Duration {
	a.attempt++
	if a.attempt > a.policy.MaxRetries {
		return backoff.Stop
	}
	return a.policy.Delay(a.attempt)
}

func (a *backoffAdapter) Reset() { a.attempt = 0 }

// Do runs fn, retrying on error per policy, up to MaxRetries additional
// attempts beyond the first. The final attempt's error (if any) propagates
// unwrapped, matching the original retry decorator's behavior of letting the
// last failure surface directly to the caller.
func Do(ctx context.Context, policy RetryPolicy, fn func() error) error {
	adapter := &backoffAdapter{policy: policy}
	operation := func() error {
		err := fn()
		if err != nil && errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(adapter, ctx))
}
