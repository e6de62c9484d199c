package qhybrid

import (
	"fmt"
	"math"
	"sort"

	"github.com/theapemachine/errnie"
	"gonum.org/v1/gonum/mat"
)

const (
	eigenFloor   = 1e-10
	entropyGuard = 1e-10
)

/*
EntanglementAnalyzer measures how entangled a pure state is across a
bipartition. Implementations never fail: entropy is a monitoring signal, so
numerical trouble degrades to 0 with a logged warning.
*/
type EntanglementAnalyzer interface {
	Entropy(state StateVector) float64
}

/*
VonNeumann computes the von Neumann entropy, in bits, of the reduced density
matrix of Subsystem. When Subsystem is empty the split is the first ⌊n/2⌋
qubits against the rest, which is the only meaningful default: the density
matrix of the whole register is pure and always has entropy 0.

With dA = 2^len(kept side) and dB the traced dimension, a call costs an
O(dA²·dB) Gram product plus an eigensolve of order dA, or 2·dA when the state
has imaginary amplitudes. At 20 qubits that is seconds per call, and the
trainer's finite-difference penalty makes 4·qubits·layers calls per reference
sample per epoch.
*/
type VonNeumann struct {
	Subsystem []int
}

// Entropy implements EntanglementAnalyzer.
func (v VonNeumann) Entropy(state StateVector) (entropy float64) {
	defer func() {
		if r := recover(); r != nil {
			errnie.Warn("entropy computation panicked, reporting 0: %v", r)
			entropy = 0
		}
	}()

	subsystem := v.Subsystem
	if len(subsystem) == 0 {
		subsystem = DefaultSubsystem(state.NumQubits())
	}
	if err := validateSubsystem(subsystem, state.NumQubits()); err != nil {
		errnie.Warn("entropy subsystem rejected, reporting 0: %v", err)
		return 0
	}
	if len(subsystem) == 0 || len(subsystem) >= state.NumQubits() {
		return 0
	}

	// The spectra of both reduced matrices agree, so trace out the larger side.
	if 2*len(subsystem) > state.NumQubits() {
		subsystem = complement(subsystem, state.NumQubits())
	}

	a, b, err := reducedParts(state, subsystem)
	if err != nil {
		errnie.Warn("reduced density matrix failed, reporting 0: %v", err)
		return 0
	}

	eig, err := hermitianSpectrum(a, b)
	if err != nil {
		errnie.Warn("eigendecomposition failed, reporting 0: %v", err)
		return 0
	}

	entropy = shannon(eig)
	bound := float64(len(subsystem))
	if math.IsNaN(entropy) || math.IsInf(entropy, 0) {
		errnie.Warn("entropy not finite, reporting 0")
		return 0
	}

	return math.Min(bound, math.Max(0, entropy))
}

// Entropy measures state across the default bipartition.
func Entropy(state StateVector) float64 {
	return VonNeumann{}.Entropy(state)
}

// DefaultSubsystem is qubits 1..⌊n/2⌋.
func DefaultSubsystem(n int) []int {
	out := make([]int, n/2)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// shannon filters numerical noise, renormalizes, and returns -Σ p log2 p.
func shannon(eig []float64) float64 {
	kept := make([]float64, 0, len(eig))
	var total float64
	for _, e := range eig {
		if e >= eigenFloor {
			kept = append(kept, e)
			total += e
		}
	}
	if total <= 0 {
		return 0
	}

	var s float64
	for _, e := range kept {
		p := e / total
		s -= p * math.Log2(p+entropyGuard)
	}
	return s
}

/*
DensityMatrix is a dense Hermitian matrix stored row-major.
*/
type DensityMatrix struct {
	dim  int
	data []complex128
}

func (d *DensityMatrix) Dim() int { return d.dim }

func (d *DensityMatrix) At(i, j int) complex128 {
	return d.data[i*d.dim+j]
}

// Trace is 1 for a reduced matrix of a normalized state.
func (d *DensityMatrix) Trace() float64 {
	var t float64
	for i := 0; i < d.dim; i++ {
		t += real(d.At(i, i))
	}
	return t
}

// Purity is Tr(ρ²): 1 for a product state, 1/d for a maximally mixed one.
func (d *DensityMatrix) Purity() float64 {
	var p float64
	for _, v := range d.data {
		p += sqAbs(v)
	}
	return p
}

/*
Eigenvalues returns the spectrum in ascending order.
*/
func (d *DensityMatrix) Eigenvalues() ([]float64, error) {
	n := d.dim
	a := mat.NewSymDense(n, nil)
	b := mat.NewDense(n, n, nil)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := d.At(i, j)
			if j >= i {
				a.SetSym(i, j, real(v))
			}
			b.Set(i, j, imag(v))
		}
	}
	return hermitianSpectrum(a, b)
}

/*
hermitianSpectrum returns the ascending eigenvalues of ρ = A + iB, with A
symmetric and B antisymmetric. A nil B means ρ is real and A is factorized
directly.

gonum only factorizes real symmetric matrices, so a complex ρ is embedded as
the real symmetric [[A, -B], [B, A]]. That matrix carries every eigenvalue of
ρ exactly twice; after sorting, the even positions are the spectrum of ρ.
*/
func hermitianSpectrum(a *mat.SymDense, b *mat.Dense) ([]float64, error) {
	n := a.SymmetricDim()

	sym := a
	if b != nil {
		sym = mat.NewSymDense(2*n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				re, im := a.At(i, j), b.At(i, j)
				sym.SetSym(i, j, re)
				sym.SetSym(n+i, n+j, re)
				sym.SetSym(i, n+j, -im)
				sym.SetSym(j, n+i, im)
			}
		}
	}

	dim := sym.SymmetricDim()
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			if v := sym.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("density matrix entry (%d, %d) is not finite", i, j)
			}
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(sym, false); !ok {
		return nil, fmt.Errorf("eigendecomposition of %dx%d matrix did not converge", dim, dim)
	}

	values := es.Values(nil)
	sort.Float64s(values)
	if b == nil {
		return values, nil
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = values[2*i]
	}
	return out, nil
}

/*
ReducedDensityMatrix traces the complement of subsystem out of |ψ⟩⟨ψ|.

Parameters:
  - state: the pure state
  - subsystem: 1-based qubit indices to keep, no duplicates

Returns:
  - *DensityMatrix: ρ_A of dimension 2^len(subsystem)
  - error: ArgumentError on a malformed subsystem
*/
func ReducedDensityMatrix(state StateVector, subsystem []int) (*DensityMatrix, error) {
	a, b, err := reducedParts(state, subsystem)
	if err != nil {
		return nil, err
	}

	dA := a.SymmetricDim()
	rho := &DensityMatrix{dim: dA, data: make([]complex128, dA*dA)}
	for i := 0; i < dA; i++ {
		for j := 0; j < dA; j++ {
			var im float64
			if b != nil {
				im = b.At(i, j)
			}
			rho.data[i*dA+j] = complex(a.At(i, j), im)
		}
	}

	return rho, nil
}

/*
reducedParts returns ρ_A = A + iB for the kept subsystem. ψ is reshaped into
the dA×dB amplitude matrix M = R + iI, whose row index spells the kept bits
and column index the traced bits, so that

	A = R Rᵀ + I Iᵀ
	B = I Rᵀ - R Iᵀ

Both products run through gonum's BLAS. B is nil when ψ is real.
*/
func reducedParts(state StateVector, subsystem []int) (*mat.SymDense, *mat.Dense, error) {
	n := state.NumQubits()
	if err := validateSubsystem(subsystem, n); err != nil {
		return nil, nil, err
	}

	rest := complement(subsystem, n)
	dA, dB := 1<<len(subsystem), 1<<len(rest)

	// x is [R | I], so A is a single rank-k update of x.
	x := make([]float64, dA*2*dB)
	isReal := true
	for k := 0; k < state.Dim(); k++ {
		row, col := gather(k, subsystem), gather(k, rest)
		v := state.amps[k]
		x[row*2*dB+col] = real(v)
		x[row*2*dB+dB+col] = imag(v)
		if imag(v) != 0 {
			isReal = false
		}
	}

	stacked := mat.NewDense(dA, 2*dB, x)
	a := mat.NewSymDense(dA, nil)
	a.SymOuterK(1, stacked)
	if isReal {
		return a, nil, nil
	}

	re := stacked.Slice(0, dA, 0, dB)
	im := stacked.Slice(0, dA, dB, 2*dB)

	p := mat.NewDense(dA, dA, nil)
	p.Mul(im, re.T())

	b := mat.NewDense(dA, dA, nil)
	b.Sub(p, p.T())
	return a, b, nil
}

func validateSubsystem(subsystem []int, n int) error {
	seen := make(map[int]bool, len(subsystem))
	for _, q := range subsystem {
		if q < 1 || q > n || seen[q] {
			return argumentError("ReducedDensityMatrix", "bad subsystem %v for %d qubits", subsystem, n)
		}
		seen[q] = true
	}
	return nil
}

// gather packs the bits of k at the given qubits into a dense index.
func gather(k int, qubits []int) int {
	idx := 0
	for pos, q := range qubits {
		if k&(1<<(q-1)) != 0 {
			idx |= 1 << pos
		}
	}
	return idx
}

func complement(subsystem []int, n int) []int {
	in := make(map[int]bool, len(subsystem))
	for _, q := range subsystem {
		in[q] = true
	}

	out := make([]int, 0, n-len(subsystem))
	for q := 1; q <= n; q++ {
		if !in[q] {
			out = append(out, q)
		}
	}
	return out
}
