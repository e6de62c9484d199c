package qhybrid

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/theapemachine/errnie"
)

// ErrAcceleratorUnavailable is what an accelerator returns when it has no device.
var ErrAcceleratorUnavailable = errors.New("accelerator unavailable")

/*
Accelerator is an optional execution capability for circuit runs, such as a
GPU state-vector kernel. TryRun acquires whatever device it needs, runs the
gates and releases the device before returning: nothing is held across calls.
Failure is always allowed; the caller reruns the same work on the CPU.
*/
type Accelerator interface {
	Name() string
	TryRun(ctx context.Context, state StateVector, gates []GateSpec) (StateVector, error)
}

/*
Backend resolves, per call, whether a circuit run goes through the
accelerator or the CPU path. A nil accelerator always uses the CPU.
*/
type Backend struct {
	accel     Accelerator
	breaker   *CircuitBreaker
	runs      atomic.Int64
	fallbacks atomic.Int64
}

// NewBackend wraps accel. A nil breaker gets a default of 3 failures and 30s.
func NewBackend(accel Accelerator, breaker *CircuitBreaker) *Backend {
	if breaker == nil {
		breaker = NewCircuitBreaker(3, 30*time.Second, 1)
	}
	return &Backend{accel: accel, breaker: breaker}
}

// CPUBackend is the default path with no accelerator.
func CPUBackend() *Backend {
	return NewBackend(nil, nil)
}

func (b *Backend) Name() string {
	if b == nil || b.accel == nil {
		return "cpu"
	}
	return b.accel.Name()
}

// Fallbacks counts runs that failed on the accelerator and reran on the CPU.
func (b *Backend) Fallbacks() int64 { return b.fallbacks.Load() }

// Runs counts every circuit run through this backend.
func (b *Backend) Runs() int64 { return b.runs.Load() }

/*
Run applies gates to state. Accelerator errors, panics and malformed results
are logged and fed to the breaker, then the CPU path reruns the gates; only
errors from the CPU path itself, such as InvalidGateError, reach the caller.
*/
func (b *Backend) Run(ctx context.Context, state StateVector, gates []GateSpec) (StateVector, error) {
	if b == nil || b.accel == nil {
		return ApplyGates(state, gates)
	}

	b.runs.Add(1)

	if b.breaker.Allow() {
		out, err := b.tryAccelerate(ctx, state, gates)
		if err == nil {
			b.breaker.RecordSuccess()
			return out, nil
		}

		b.breaker.RecordFailure()
		b.fallbacks.Add(1)
		errnie.Warn("accelerator %s failed, falling back to cpu: %v", b.accel.Name(), err)
	} else {
		b.fallbacks.Add(1)
	}

	return ApplyGates(state, gates)
}

func (b *Backend) tryAccelerate(ctx context.Context, state StateVector, gates []GateSpec) (out StateVector, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("accelerator panicked: %v", r)
		}
	}()

	out, err = b.accel.TryRun(ctx, state, gates)
	if err != nil {
		return StateVector{}, err
	}
	if out.Dim() != state.Dim() || !out.IsValid() {
		return StateVector{}, fmt.Errorf("accelerator returned malformed state of dim %d", out.Dim())
	}
	return out, nil
}
