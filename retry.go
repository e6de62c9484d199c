package qhybrid

import (
	"math"
	"time"
)

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	MaxAttempts int
	Strategy    RetryStrategy
	Filter      func(error) bool
}

// RetryStrategy defines the interface for retry behavior
type RetryStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements RetryStrategy
type ExponentialBackoff struct {
	Initial time.Duration
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	return eb.Initial * time.Duration(math.Pow(2, float64(attempt-1)))
}

// noRetry is the default: simulation jobs are deterministic, so a failure
// would only fail again.
func noRetry() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 1, Strategy: &ExponentialBackoff{Initial: time.Millisecond}}
}

// WithRetry configures retry behavior for a job
func WithRetry(attempts int, strategy RetryStrategy) JobOption {
	return func(j *Job) {
		j.RetryPolicy = &RetryPolicy{
			MaxAttempts: max(attempts, 1),
			Strategy:    strategy,
		}
	}
}

// WithRetryFilter stops retrying once filter rejects an error.
func WithRetryFilter(filter func(error) bool) JobOption {
	return func(j *Job) {
		if j.RetryPolicy == nil {
			j.RetryPolicy = noRetry()
		}
		j.RetryPolicy.Filter = filter
	}
}
