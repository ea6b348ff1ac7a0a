package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// RetryPolicy controls WithRetry. Zero values fall back to the defaults.
type RetryPolicy struct {
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Retryable      func(error) bool
}

// DefaultRetryPolicy retries transient failures three times with
// exponential backoff from 100ms up to 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
		Retryable:      sberr.IsTransient,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.Multiplier <= 1 {
		p.Multiplier = d.Multiplier
	}
	if p.Retryable == nil {
		p.Retryable = d.Retryable
	}
	return p
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, or
// exhausts the policy's attempt budget.
func WithRetry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	policy = policy.normalized()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialBackoff
	b.MaxInterval = policy.MaxBackoff
	b.Multiplier = policy.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	wrapped := func() error {
		err := fn()
		if err != nil && !policy.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(b, policy.MaxRetries), ctx))
}
