// Package retry provides the reconnect backoff policy and a small retry loop
// for one-shot operations such as broker connects.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// maxShift keeps 1<<shift inside an int64 nanosecond Duration.
const maxShift = 62

// Policy describes reconnect backoff for a streaming connection.
//
// The delay before attempt n+1 is 2^(n+1) units plus a fixed jitter. Growth is
// unbounded unless MaxDelay is set, and retries never stop unless MaxRetries is
// set. Both zero values mean "unbounded".
type Policy struct {
	Unit       time.Duration `json:"unit" yaml:"unit"`
	Jitter     time.Duration `json:"jitter" yaml:"jitter"`
	MaxDelay   time.Duration `json:"max_delay" yaml:"max_delay"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
}

// DefaultPolicy returns 2^(n+1) milliseconds plus 100ms, with no cap on
// delay or attempts.
func DefaultPolicy() Policy {
	return Policy{
		Unit:   time.Millisecond,
		Jitter: 100 * time.Millisecond,
	}
}

// Validate checks the policy for negative values.
func (p Policy) Validate() error {
	if p.Unit < 0 || p.Jitter < 0 || p.MaxDelay < 0 {
		return errors.New("retry: durations cannot be negative")
	}
	if p.MaxRetries < 0 {
		return errors.New("retry: MaxRetries cannot be negative")
	}
	return nil
}

// Delay returns the wait before retrying after failed attempt retryCount.
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	unit := p.Unit
	if unit <= 0 {
		unit = time.Millisecond
	}

	shift := retryCount + 1
	var base time.Duration
	if shift >= maxShift || time.Duration(1<<shift) > time.Duration(math.MaxInt64)/unit {
		base = time.Duration(math.MaxInt64)
	} else {
		base = time.Duration(1<<shift) * unit
	}

	if p.MaxDelay > 0 && base > p.MaxDelay {
		base = p.MaxDelay
	}

	if base > time.Duration(math.MaxInt64)-p.Jitter {
		return time.Duration(math.MaxInt64)
	}
	return base + p.Jitter
}

// Allow reports whether attempt number attempt (1 for the first reconnect)
// may be scheduled.
func (p Policy) Allow(attempt int) bool {
	return p.MaxRetries <= 0 || attempt <= p.MaxRetries
}

// NonRetryableError wraps errors that should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to indicate it should not be retried
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Do runs fn up to attempts times, sleeping p.Delay between failures.
// MaxRetries on the policy is ignored; attempts bounds the loop.
func Do(ctx context.Context, p Policy, attempts int, fn func() error) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsNonRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+2, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", attempts, lastErr)
}
