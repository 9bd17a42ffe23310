package source

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Backoff retries an operation with exponentially growing, jittered delays.
// Sleep and Jitter are injectable so tests run without real delays.
type Backoff struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func() float64 // uniform in [0.5, 1.0)
}

// DefaultBackoff returns the production retry policy: 5 retries, 1s base
// delay, 30s cap.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Delay returns the backoff delay before retry number attempt (0-based):
// min(MaxDelay, BaseDelay * 2^attempt * jitter).
func (b Backoff) Delay(attempt int) time.Duration {
	d := time.Duration(float64(b.BaseDelay) * math.Pow(2, float64(attempt)) * b.jitter())
	if d > b.MaxDelay {
		d = b.MaxDelay
	}
	return d
}

// Do runs fn up to MaxRetries+1 times, sleeping between attempts. It stops
// early on success or on a non-retryable error. When retries are exhausted
// the last error is returned with its attempt count filled in.
func (b Backoff) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !Retryable(err) {
			return err
		}
		if attempt >= b.MaxRetries {
			break
		}
		if serr := b.sleep(ctx, b.Delay(attempt)); serr != nil {
			return serr
		}
	}

	var se *Error
	if errors.As(err, &se) {
		se.Attempts = b.MaxRetries + 1
	}
	return err
}

func (b Backoff) sleep(ctx context.Context, d time.Duration) error {
	if b.Sleep != nil {
		return b.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (b Backoff) jitter() float64 {
	if b.Jitter != nil {
		return b.Jitter()
	}
	return 0.5 + rand.Float64()*0.5
}
