// Package retry runs an operation a bounded number of times with a pluggable delay.
//
// The delay strategy and the sleep itself are injected, so tests can exercise the
// loop without waiting.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// maxBackoff caps exponential delays
const maxBackoff = 30 * time.Second

// ErrExhausted matches any *ExhaustedError via errors.Is.
var ErrExhausted = errors.New("retries exhausted")

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap exposes both the sentinel and the last failure.
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Last}
}

// PermanentError stops Do at once; Do returns the wrapped error.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Backoff returns the delay before the given retry (1 is the first retry).
type Backoff func(retry int) time.Duration

// Fixed waits the same delay before every retry.
func Fixed(delay time.Duration) Backoff {
	return func(int) time.Duration { return delay }
}

// Exponential doubles base on every retry, caps at 30s and adds ±25% jitter.
func Exponential(base time.Duration) Backoff {
	return func(retry int) time.Duration {
		if retry <= 0 || base <= 0 {
			return 0
		}
		// cap the shift to avoid overflow
		if retry > 30 {
			retry = 30
		}
		backoff := base * time.Duration(1<<uint(retry))
		if backoff > maxBackoff || backoff <= 0 {
			backoff = maxBackoff
		}
		jitter := time.Duration(rand.Int64N(int64(backoff)/2+1)) - backoff/4
		return backoff + jitter
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy bounds a retry loop.
type Policy struct {
	Attempts int       // total attempts, at least 1
	Backoff  Backoff   // nil means no delay
	Sleep    SleepFunc // nil means Sleep
}

// DefaultPolicy makes three attempts one second apart.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 3,
		Backoff:  Fixed(time.Second),
	}
}

// Do calls fn until it succeeds, the attempts run out or ctx is cancelled.
// After the last failed attempt it returns an *ExhaustedError wrapping the final error.
// Context cancellation is returned as is, and so is the cause of a Permanent error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			var delay time.Duration
			if p.Backoff != nil {
				delay = p.Backoff(attempt - 1)
			}
			slog.Debug("Retrying", "attempt", attempt, "maxAttempts", attempts, "delay", delay, "error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var permanent *PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		lastErr = err
	}

	return &ExhaustedError{Attempts: attempts, Last: lastErr}
}
