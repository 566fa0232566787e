package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tbourn/go-inventory-bot/internal/agent"
)

// RetryPolicy bounds retries of remote agent calls. Only transient failures
// (agent.IsTransient) are retried.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryPolicy is used when a zero policy is supplied. A policy with
// only Backoff set keeps MaxRetries 0 and never retries.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, Backoff: 500 * time.Millisecond}

func (p RetryPolicy) orDefault() RetryPolicy {
	if p == (RetryPolicy{}) {
		return DefaultRetryPolicy
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Backoff <= 0 {
		p.Backoff = DefaultRetryPolicy.Backoff
	}
	return p
}

// retryRemote runs op until it succeeds, fails permanently, exhausts the
// policy, or ctx ends.
func retryRemote[T any](ctx context.Context, p RetryPolicy, op func() (T, error)) (T, error) {
	p = p.orDefault()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Backoff
	b.MaxInterval = 8 * p.Backoff

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !agent.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(p.MaxRetries+1)))
}
