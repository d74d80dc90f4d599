// Package retry runs an operation with truncated exponential backoff.
//
// Backoff starts at Policy.Initial, doubles on every attempt up to
// Policy.Max and applies ±25% jitter. Do gives up after Policy.Retries
// retries, on context cancellation, or as soon as the operation returns an
// error wrapped with Permanent. The scraper and the webhook shipper both use
// it; callers decide which failures are permanent.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
)

// Policy bounds a retry loop.
type Policy struct {
	// Retries is the number of attempts after the first one.
	Retries int
	// Initial is the first wait. Zero means 1s.
	Initial time.Duration
	// Max caps a single wait. Zero means 60s.
	Max time.Duration
}

// DefaultPolicy returns the 1s→60s policy with the given retry count.
func DefaultPolicy(retries int) Policy {
	return Policy{Retries: retries, Initial: backoffInitial, Max: backoffMax}
}

// Backoff implements truncated exponential backoff with jitter.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff returns a Backoff for p.
func NewBackoff(p Policy) *Backoff {
	b := &Backoff{initial: p.Initial, max: p.Max}
	if b.initial <= 0 {
		b.initial = backoffInitial
	}
	if b.max <= 0 {
		b.max = backoffMax
	}
	if b.max < b.initial {
		b.max = b.initial
	}
	b.current = b.initial
	return b
}

// Next returns the current backoff duration and advances the internal state.
func (b *Backoff) Next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset returns the backoff to its initial duration.
func (b *Backoff) Reset() {
	b.current = b.initial
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or any error it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do calls op until it succeeds, returns a Permanent error, the retries are
// used up, or ctx is done. onRetry, if non-nil, is called before each wait
// with the 1-based retry number, the wait and the error being retried.
//
// The returned error is the last error from op, with the Permanent marker
// still attached so callers can tell the cases apart.
func Do(ctx context.Context, p Policy, onRetry func(n int, wait time.Duration, err error), op func(ctx context.Context) error) error {
	bo := NewBackoff(p)
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || attempt >= p.Retries {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		wait := bo.Next()
		if onRetry != nil {
			onRetry(attempt+1, wait, err)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}
