package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the retries of an operation that lost an optimistic
// version check.
type RetryPolicy struct {
	Attempts int           // total tries, including the first
	Backoff  time.Duration // wait before the second try; doubles with jitter
}

// DefaultRetryPolicy is used when a service has no policy configured.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 25 * time.Millisecond}

// Do runs fn until it returns anything other than ErrConcurrentModification
// or the attempts are used up. fn receives the zero-based attempt number.
// The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	if p.Attempts <= 0 {
		p = DefaultRetryPolicy
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Backoff
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.5
	eb.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		err := fn(attempt)
		attempt++
		if err == nil || errors.Is(err, ErrConcurrentModification) {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.Attempts-1)), ctx)
	return backoff.Retry(op, b)
}
