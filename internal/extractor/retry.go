package extractor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultRetryAttempts bounds report extraction attempts per account.
const DefaultRetryAttempts = 5

// RetryPolicy retries an operation with exponential backoff. It keeps no state
// between calls to Do.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Retryable decides whether a failed attempt is repeated. Nil means
	// IsRetryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the report extraction policy.
func DefaultRetryPolicy(attempts int) RetryPolicy {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	return RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempts are used up. notify is called before every wait.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error, notify func(err error, wait time.Duration)) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op(attempt)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo, notify)
}
