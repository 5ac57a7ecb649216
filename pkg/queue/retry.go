package queue

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffType selects how the retry delay grows between attempts.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffLinear      BackoffType = "linear"
	BackoffExponential BackoffType = "exponential"
)

// Backoff is a serializable retry delay strategy. It travels with the job so
// the store can compute the next run time without knowing the producer.
type Backoff struct {
	Type     BackoffType   `json:"type"`
	Delay    time.Duration `json:"delay"`
	MaxDelay time.Duration `json:"max_delay,omitempty"`

	// Jitter in [0, 1] subtracts a random fraction of the computed delay.
	Jitter float64 `json:"jitter,omitempty"`
}

// FixedBackoff waits the same delay before every retry.
func FixedBackoff(delay time.Duration) Backoff {
	return Backoff{Type: BackoffFixed, Delay: delay}
}

// LinearBackoff waits delay*attempt, capped at maxDelay.
func LinearBackoff(delay, maxDelay time.Duration) Backoff {
	return Backoff{Type: BackoffLinear, Delay: delay, MaxDelay: maxDelay}
}

// ExponentialBackoff waits delay*2^(attempt-1), capped at maxDelay.
func ExponentialBackoff(delay, maxDelay time.Duration) Backoff {
	return Backoff{Type: BackoffExponential, Delay: delay, MaxDelay: maxDelay}
}

// WithJitter returns a copy of b with the given jitter fraction.
func (b Backoff) WithJitter(fraction float64) Backoff {
	b.Jitter = min(max(fraction, 0), 1)
	return b
}

// Duration returns the wait before retry number attempt (1-indexed).
func (b Backoff) Duration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	switch b.Type {
	case BackoffLinear:
		d = b.Delay * time.Duration(attempt)
	case BackoffExponential:
		f := float64(b.Delay) * math.Pow(2, float64(attempt-1))
		if f >= math.MaxInt64 {
			d = time.Duration(math.MaxInt64)
		} else {
			d = time.Duration(f)
		}
	default:
		d = b.Delay
	}

	if b.MaxDelay > 0 && d > b.MaxDelay {
		d = b.MaxDelay
	}
	if b.Jitter > 0 && d > 0 {
		d -= time.Duration(rand.Float64() * b.Jitter * float64(d)) //nolint:gosec // jitter does not need crypto rand
	}
	return max(d, 0)
}

// RetryPolicy is the retry budget and delay strategy of a job.
// Attempts counts every execution including the first one.
type RetryPolicy struct {
	Attempts int     `json:"attempts"`
	Backoff  Backoff `json:"backoff"`
}

// DefaultRetryPolicy returns 3 attempts with exponential backoff from 1s up to 1m.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Backoff:  ExponentialBackoff(time.Second, time.Minute),
	}
}

// MaxAttempts returns the effective attempt budget; at least one.
func (p RetryPolicy) MaxAttempts() int {
	return max(p.Attempts, 1)
}

// Next reports whether another attempt is allowed after attemptsMade
// executions and how long to wait before it.
func (p RetryPolicy) Next(attemptsMade int) (time.Duration, bool) {
	if attemptsMade >= p.MaxAttempts() {
		return 0, false
	}
	return p.Backoff.Duration(attemptsMade), true
}
