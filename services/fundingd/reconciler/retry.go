package reconciler

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds transient-failure retries for provider and ledger calls.
// A classification predicate decides which errors are worth retrying at all;
// everything else fails fast.
type RetryPolicy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy keeps retries short enough that a single deposit cannot
// stall the rest of the tick for long.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Do runs op, retrying with exponential backoff while permanent(err) is
// false. The final error is returned unchanged so callers can still classify
// it.
func (p RetryPolicy) Do(ctx context.Context, op func() error, permanent func(error) bool) error {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	policy := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		policy.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		policy.MaxInterval = p.MaxInterval
	}
	wrapped := backoff.WithContext(backoff.WithMaxRetries(policy, attempts-1), ctx)
	err := backoff.Retry(func() error {
		callErr := op()
		if callErr == nil {
			return nil
		}
		if permanent != nil && permanent(callErr) {
			return backoff.Permanent(callErr)
		}
		return callErr
	}, wrapped)
	return err
}
