// Package retry wraps remote calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"mindquake-service/internal/domain"
)

// Policy bounds how often and how patiently a call is retried.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy is used when configuration leaves a field empty.
var DefaultPolicy = Policy{
	MaxAttempts:     3,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultPolicy.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultPolicy.MaxInterval
	}
	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	p = p.withDefaults()
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)
}

// Do runs op until it succeeds, returns a permanent error, or the attempts run out.
func Do(ctx context.Context, p Policy, op func() error) error {
	return backoff.Retry(func() error {
		return classify(op())
	}, p.backOff(ctx))
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		return v, classify(err)
	}, p.backOff(ctx))
}

// classify marks errors that another attempt cannot fix.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	if errors.Is(err, domain.ErrUserNotFound) || errors.Is(err, domain.ErrInvalidDifficulty) {
		return backoff.Permanent(err)
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return backoff.Permanent(err)
	}
	return err
}

// PermanentError lets callers opt an error out of retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
