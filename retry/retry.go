// Package retry runs operations again when they fail with transient errors,
// waiting with exponential backoff between attempts.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy describes how many times and how fast an operation is retried.
type Policy struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
	JitterEnabled bool          `mapstructure:"jitter_enabled"`

	// Retryable decides whether error is worth another attempt. If nil, every
	// error is retried.
	Retryable func(error) bool `mapstructure:"-"`
}

// DefaultPolicy is used when caller does not care.
var DefaultPolicy = Policy{
	Enabled:       true,
	MaxAttempts:   3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      2 * time.Second,
	BackoffFactor: 2.0,
	JitterEnabled: true,
}

// Disabled runs operation exactly once.
var Disabled = Policy{}

// If returns copy of the policy retrying only errors accepted by pred.
func (p Policy) If(pred func(error) bool) Policy {
	p.Retryable = pred
	return p
}

func (p Policy) attempts() int {
	if !p.Enabled || p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// Backoff returns delay before attempt following provided one (attempts start at 1).
func Backoff(attempt int, p Policy) time.Duration {
	if attempt <= 0 {
		return 0
	}
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(factor, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.JitterEnabled {
		delay = delay * (0.8 + rand.Float64()*0.4)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Do calls fn until it succeeds, returns non retryable error, attempts are
// exhausted or context is done. Last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	max := p.attempts()
	for attempt := 1; attempt <= max; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !p.shouldRetry(lastErr) || attempt == max {
			break
		}

		if delay := Backoff(attempt, p); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			}
		}
	}
	return lastErr
}
