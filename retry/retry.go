// Package retry bounds every call to a remote collaborator with a timeout and
// retries the idempotent ones on transient failure.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"gigflow/apperr"
	"gigflow/metrics"
	"gigflow/store"
)

type Policy struct {
	Attempts int
	Timeout  time.Duration
	Initial  time.Duration
	Max      time.Duration
}

func Default() Policy {
	return Policy{Attempts: 3, Timeout: 5 * time.Second, Initial: 100 * time.Millisecond, Max: time.Second}
}

// Transient reports whether err is worth another attempt.
func Transient(err error) bool {
	if err == nil || store.Permanent(err) || errors.Is(err, context.Canceled) {
		return false
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Code == apperr.CodeTransient
	}
	return true
}

func (p Policy) attempt(ctx context.Context, op func(context.Context) error) error {
	if p.Timeout <= 0 {
		return op(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return op(cctx)
}

// Once runs op a single time under the per-attempt timeout. Use it for
// mutations that are not safe to repeat.
func (p Policy) Once(ctx context.Context, op func(context.Context) error) error {
	return p.attempt(ctx, op)
}

// Do runs op until it succeeds, fails permanently or runs out of attempts.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	if p.Attempts <= 1 {
		return p.attempt(ctx, op)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	b.MaxElapsedTime = 0

	var last error
	err := backoff.RetryNotify(func() error {
		last = p.attempt(ctx, op)
		if last != nil && !Transient(last) {
			return backoff.Permanent(last)
		}
		return last
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.Attempts-1)), ctx),
		func(err error, wait time.Duration) {
			metrics.RemoteRetries.Inc()
			log.Debug().Err(err).Dur("wait", wait).Msg("retrying remote call")
		})
	if err != nil && last != nil && errors.Is(err, ctx.Err()) {
		return last
	}
	return err
}

// Get is Do for calls that return a value.
func Get[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
