// Package retry re-runs bridge transport calls with exponential backoff.
// Only errors marked with Retryable are tried again.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config describes a backoff schedule.
type Config struct {
	MaxAttempts int // 0 retries until ctx is done
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	Jitter      float64 // fraction of the wait, 0-1

	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultConfig suits calls to a script host on the same machine or LAN.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// RetryableError marks a transient failure.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so Do tries again. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Backoff returns the wait after the given 1-based attempt.
func (cfg Config) Backoff(attempt int) time.Duration {
	m := math.Max(cfg.Multiplier, 1)
	wait := float64(cfg.InitialWait) * math.Pow(m, float64(attempt-1))
	if cfg.MaxWait > 0 {
		wait = math.Min(wait, float64(cfg.MaxWait))
	}
	if cfg.Jitter > 0 {
		wait *= 1 + cfg.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(wait)
}

func (cfg Config) exhausted(attempt int) bool {
	return cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts
}

// Do runs fn until it succeeds, fails permanently, runs out of attempts or
// ctx ends. The last error from fn is returned on exhaustion.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn()
		switch {
		case err == nil:
			return v, nil
		case !IsRetryable(err):
			return zero, err
		case ctx.Err() != nil:
			return zero, ctx.Err()
		case cfg.exhausted(attempt):
			return zero, err
		}

		wait := cfg.Backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, wait, err)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
