package qhybrid

import (
	"sync"
	"time"

	"github.com/theapemachine/errnie"
)

/*
CircuitState represents the state of the circuit breaker.
*/
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation state
	CircuitOpen                         // Failure state, rejecting requests
	CircuitHalfOpen                     // Probationary state, allowing limited requests
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

/*
CircuitBreaker guards the accelerator. After maxFailures consecutive
failures it opens and every circuit run goes straight to the CPU path until
resetTimeout has passed; then up to halfOpenMax trial runs may try the
accelerator again.

The name is the classic pattern's, unrelated to quantum circuits.
*/
type CircuitBreaker struct {
	mu               sync.Mutex
	maxFailures      int
	resetTimeout     time.Duration
	halfOpenMax      int
	failureCount     int
	state            CircuitState
	openTime         time.Time
	halfOpenAttempts int
}

/*
NewCircuitBreaker creates a new circuit breaker instance with specified parameters.

Parameters:
  - maxFailures: Number of failures allowed before opening the circuit
  - resetTimeout: Duration to wait before attempting to close an open circuit
  - halfOpenMax: Maximum number of requests allowed in half-open state

Returns:
  - *CircuitBreaker: A new circuit breaker instance initialized in closed state
*/
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  max(maxFailures, 1),
		resetTimeout: resetTimeout,
		halfOpenMax:  max(halfOpenMax, 1),
		state:        CircuitClosed,
	}
}

// State reports the current state without transitioning it.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

/*
RecordFailure records a failure and updates the circuit state.
*/
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++

	switch {
	case cb.state == CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.openTime = time.Now()
		errnie.Warn("accelerator breaker reopened from half-open state")
	case cb.state == CircuitClosed && cb.failureCount >= cb.maxFailures:
		cb.state = CircuitOpen
		cb.openTime = time.Now()
		errnie.Warn("accelerator breaker opened after %d failures", cb.failureCount)
	}
}

/*
RecordSuccess records a successful attempt and updates the circuit state.
*/
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.halfOpenAttempts++
		if cb.halfOpenAttempts >= cb.halfOpenMax {
			cb.state = CircuitClosed
			cb.failureCount = 0
			cb.halfOpenAttempts = 0
			errnie.Info("accelerator breaker closed from half-open")
		}
	case CircuitClosed:
		cb.failureCount = 0
	}
}

/*
Allow determines if a request is allowed based on the circuit state.
*/
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.openTime) > cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.halfOpenAttempts = 0
			return true
		}
		return false
	case CircuitHalfOpen:
		return cb.halfOpenAttempts < cb.halfOpenMax
	default:
		return false
	}
}
