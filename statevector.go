package qhybrid

import (
	"math"
	"math/bits"
	"math/cmplx"
)

const (
	// MaxQubits bounds the register size so amplitude buffers stay addressable.
	MaxQubits = 20

	normTolerance = 1e-9
	zeroNorm      = 1e-12
)

/*
StateVector is a normalized pure state of n qubits, held as 2^n complex
amplitudes. Basis index bit (i-1) carries qubit i, so qubit 1 is the least
significant bit.

A StateVector is a value: it has no mutators, every accessor hands out a copy,
and every transformation returns a new StateVector. The only way to observe
the effect of a gate is to keep the value it returns.
*/
type StateVector struct {
	amps    []complex128
	nqubits int
}

/*
NewStateVector copies amps into a new normalized state.

The length must be a power of two between 2 and 2^MaxQubits. A buffer whose
norm is (numerically) zero becomes the uniform superposition, so every value
this returns satisfies the unit-norm invariant.
*/
func NewStateVector(amps []complex128) (StateVector, error) {
	n, err := qubitsForDim("NewStateVector", len(amps))
	if err != nil {
		return StateVector{}, err
	}

	buf := make([]complex128, len(amps))
	copy(buf, amps)

	return fromOwned(buf, n), nil
}

/*
FromReal builds a state from a real feature vector, normalizing it the same
way NewStateVector does.
*/
func FromReal(values []float64) (StateVector, error) {
	n, err := qubitsForDim("FromReal", len(values))
	if err != nil {
		return StateVector{}, err
	}

	buf := make([]complex128, len(values))
	for i, v := range values {
		buf[i] = complex(v, 0)
	}

	return fromOwned(buf, n), nil
}

// ZeroState returns |0...0⟩ on n qubits.
func ZeroState(n int) (StateVector, error) {
	if err := validateQubits("ZeroState", n); err != nil {
		return StateVector{}, err
	}

	buf := make([]complex128, 1<<n)
	buf[0] = 1

	return StateVector{amps: buf, nqubits: n}, nil
}

// UniformState returns the equal superposition 1/√(2^n) on n qubits.
func UniformState(n int) (StateVector, error) {
	if err := validateQubits("UniformState", n); err != nil {
		return StateVector{}, err
	}

	return StateVector{amps: uniform(1 << n), nqubits: n}, nil
}

// fromOwned takes ownership of buf and normalizes it in place.
func fromOwned(buf []complex128, n int) StateVector {
	normalize(buf)
	return StateVector{amps: buf, nqubits: n}
}

func (s StateVector) NumQubits() int { return s.nqubits }
func (s StateVector) Dim() int       { return len(s.amps) }

// Amplitude returns the amplitude of basis state i.
func (s StateVector) Amplitude(i int) complex128 {
	return s.amps[i]
}

// Amplitudes returns a copy of the amplitude buffer.
func (s StateVector) Amplitudes() []complex128 {
	out := make([]complex128, len(s.amps))
	copy(out, s.amps)
	return out
}

// RealParts returns Re(aᵢ) for every amplitude.
func (s StateVector) RealParts() []float64 {
	out := make([]float64, len(s.amps))
	for i, a := range s.amps {
		out[i] = real(a)
	}
	return out
}

// Probabilities returns |aᵢ|² for every amplitude.
func (s StateVector) Probabilities() []float64 {
	out := make([]float64, len(s.amps))
	for i, a := range s.amps {
		out[i] = sqAbs(a)
	}
	return out
}

// Norm returns the Euclidean norm, 1 within tolerance for every valid state.
func (s StateVector) Norm() float64 {
	return math.Sqrt(sqNorm(s.amps))
}

/*
Overlap returns the inner product ⟨s|other⟩. States of different sizes have
no defined overlap and return a DimensionMismatchError.
*/
func (s StateVector) Overlap(other StateVector) (complex128, error) {
	if len(s.amps) != len(other.amps) {
		return 0, &DimensionMismatchError{Stage: "overlap", Want: len(s.amps), Got: len(other.amps)}
	}

	var sum complex128
	for i, a := range s.amps {
		sum += cmplx.Conj(a) * other.amps[i]
	}

	return sum, nil
}

// Fidelity returns |⟨s|other⟩|², clamped to [0, 1].
func (s StateVector) Fidelity(other StateVector) (float64, error) {
	ov, err := s.Overlap(other)
	if err != nil {
		return 0, err
	}

	return math.Min(1, math.Max(0, sqAbs(ov))), nil
}

// IsValid reports whether the state satisfies the unit-norm invariant.
func (s StateVector) IsValid() bool {
	return s.nqubits > 0 && math.Abs(sqNorm(s.amps)-1) <= normTolerance
}

func validateQubits(op string, n int) error {
	if n < 1 || n > MaxQubits {
		return argumentError(op, "qubit count %d outside [1, %d]", n, MaxQubits)
	}
	return nil
}

func qubitsForDim(op string, dim int) (int, error) {
	if dim < 2 || dim&(dim-1) != 0 {
		return 0, &DimensionMismatchError{Stage: op, Want: nextPow2(dim), Got: dim}
	}

	n := bits.TrailingZeros(uint(dim))
	if err := validateQubits(op, n); err != nil {
		return 0, err
	}

	return n, nil
}

func nextPow2(n int) int {
	p := 2
	for p < n {
		p <<= 1
	}
	return p
}

// normalize scales buf to unit norm, or overwrites it with the uniform state.
func normalize(buf []complex128) {
	norm := math.Sqrt(sqNorm(buf))

	if norm < zeroNorm || math.IsNaN(norm) || math.IsInf(norm, 0) {
		copy(buf, uniform(len(buf)))
		return
	}

	inv := complex(1/norm, 0)
	for i := range buf {
		buf[i] *= inv
	}
}

func uniform(dim int) []complex128 {
	buf := make([]complex128, dim)
	a := complex(1/math.Sqrt(float64(dim)), 0)
	for i := range buf {
		buf[i] = a
	}
	return buf
}

func sqNorm(buf []complex128) float64 {
	var sum float64
	for _, a := range buf {
		sum += sqAbs(a)
	}
	return sum
}

func sqAbs(a complex128) float64 {
	return real(a)*real(a) + imag(a)*imag(a)
}
