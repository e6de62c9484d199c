package qhybrid

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/davecgh/go-spew/spew"
	. "github.com/smartystreets/goconvey/convey"
)

func bellState() StateVector {
	zero, _ := ZeroState(2)
	bell, _ := ApplyGates(zero, []GateSpec{H(1), CNOT(1, 2)})
	return bell
}

func TestEntropy(t *testing.T) {
	Convey("Given a Bell state", t, func() {
		bell := bellState()

		Convey("Its entropy should be one bit", func() {
			So(Entropy(bell), ShouldAlmostEqual, 1.0, 1e-6)
		})

		Convey("Its reduced matrix should be maximally mixed", func() {
			rho, err := ReducedDensityMatrix(bell, []int{1})
			So(err, ShouldBeNil)
			So(rho.Dim(), ShouldEqual, 2)
			So(rho.Trace(), ShouldAlmostEqual, 1.0, 1e-12)
			So(rho.Purity(), ShouldAlmostEqual, 0.5, 1e-12)

			eig, err := rho.Eigenvalues()
			So(err, ShouldBeNil)
			So(eig[0], ShouldAlmostEqual, 0.5, 1e-9)
			So(eig[1], ShouldAlmostEqual, 0.5, 1e-9)
		})
	})

	Convey("Given a product state", t, func() {
		zero, _ := ZeroState(4)
		product, _ := ApplyGates(zero, []GateSpec{H(1), RY(2, 0.7), RX(3, 1.3), H(4)})

		Convey("Its entropy should be zero", func() {
			So(Entropy(product), ShouldAlmostEqual, 0, 1e-6)
		})
	})

	Convey("Given a complex-valued entangled state", t, func() {
		zero, _ := ZeroState(2)
		state, _ := ApplyGates(zero, []GateSpec{RX(1, math.Pi/2), CNOT(1, 2)})

		Convey("The imaginary parts should survive the eigendecomposition", func() {
			So(Entropy(state), ShouldAlmostEqual, 1.0, 1e-6)
		})
	})

	Convey("Given random states", t, func() {
		rng := rand.New(rand.NewSource(7))

		Convey("Entropy should lie in [0, min(|A|, |B|)]", func() {
			for trial := 0; trial < 20; trial++ {
				n := 1 + rng.Intn(6)
				amps := make([]complex128, 1<<n)
				for i := range amps {
					amps[i] = complex(rng.NormFloat64(), rng.NormFloat64())
				}
				state, err := NewStateVector(amps)
				So(err, ShouldBeNil)

				s := Entropy(state)
				So(s, ShouldBeGreaterThanOrEqualTo, 0)
				So(s, ShouldBeLessThanOrEqualTo, float64(n/2))
			}
		})

		Convey("Both sides of a cut should have the same entropy", func() {
			amps := make([]complex128, 32)
			for i := range amps {
				amps[i] = complex(rng.NormFloat64(), rng.NormFloat64())
			}
			state, _ := NewStateVector(amps)

			a := VonNeumann{Subsystem: []int{1, 4}}.Entropy(state)
			b := VonNeumann{Subsystem: []int{2, 3, 5}}.Entropy(state)
			So(a, ShouldAlmostEqual, b, 1e-6)
		})
	})
}

func randomState(rng *rand.Rand, n int, realOnly bool) StateVector {
	amps := make([]complex128, 1<<n)
	for i := range amps {
		if realOnly {
			amps[i] = complex(rng.NormFloat64(), 0)
			continue
		}
		amps[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	state, _ := NewStateVector(amps)
	return state
}

// partialTrace is ρ_A summed entry by entry over the traced basis.
func partialTrace(state StateVector, subsystem []int) []complex128 {
	rest := complement(subsystem, state.NumQubits())
	dA := 1 << len(subsystem)

	rho := make([]complex128, dA*dA)
	for k := 0; k < state.Dim(); k++ {
		for k2 := 0; k2 < state.Dim(); k2++ {
			if gather(k, rest) != gather(k2, rest) {
				continue
			}
			a, a2 := gather(k, subsystem), gather(k2, subsystem)
			rho[a*dA+a2] += state.amps[k] * cmplx.Conj(state.amps[k2])
		}
	}
	return rho
}

func TestReducedDensityMatrix(t *testing.T) {
	Convey("Given random five-qubit states", t, func() {
		rng := rand.New(rand.NewSource(11))

		for _, realOnly := range []bool{false, true} {
			state := randomState(rng, 5, realOnly)

			Convey(fmt.Sprintf("The reduced matrix should match the partial trace (real=%v)", realOnly), func() {
				rho, err := ReducedDensityMatrix(state, []int{1, 3})
				So(err, ShouldBeNil)
				So(rho.Dim(), ShouldEqual, 4)

				want := partialTrace(state, []int{1, 3})
				for i := 0; i < 4; i++ {
					for j := 0; j < 4; j++ {
						got := rho.At(i, j)
						So(real(got), ShouldAlmostEqual, real(want[i*4+j]), 1e-12)
						So(imag(got), ShouldAlmostEqual, imag(want[i*4+j]), 1e-12)
					}
				}
			})

			Convey(fmt.Sprintf("Entropy should agree with the embedded spectrum (real=%v)", realOnly), func() {
				rho, _ := ReducedDensityMatrix(state, DefaultSubsystem(5))
				eig, err := rho.Eigenvalues()
				So(err, ShouldBeNil)

				So(Entropy(state), ShouldAlmostEqual, math.Min(2, shannon(eig)), 1e-9)
			})
		}
	})
}

func TestEntropyFailures(t *testing.T) {
	Convey("Given a bad subsystem", t, func() {
		bell := bellState()

		Convey("Entropy should degrade to zero", func() {
			So(VonNeumann{Subsystem: []int{3}}.Entropy(bell), ShouldEqual, 0)
			So(VonNeumann{Subsystem: []int{1, 1}}.Entropy(bell), ShouldEqual, 0)
		})

		Convey("ReducedDensityMatrix should return an ArgumentError", func() {
			_, err := ReducedDensityMatrix(bell, []int{0})
			var ae *ArgumentError
			So(errors.As(err, &ae), ShouldBeTrue)
		})
	})

	Convey("Given the whole register as subsystem", t, func() {
		Convey("A pure state should have zero entropy", func() {
			So(VonNeumann{Subsystem: []int{1, 2}}.Entropy(bellState()), ShouldEqual, 0)
		})
	})

	Convey("Given a single qubit", t, func() {
		state, _ := ZeroState(1)

		Convey("The default cut is empty and entropy is zero", func() {
			So(DefaultSubsystem(1), ShouldBeEmpty)
			So(Entropy(state), ShouldEqual, 0)
		})
	})

	Convey("Given a zero state value", t, func() {
		var empty StateVector

		Convey("Entropy should not panic", func() {
			So(func() { Entropy(empty) }, ShouldNotPanic)
			So(Entropy(empty), ShouldEqual, 0)
		})
	})
}

func TestDensityMatrixDump(t *testing.T) {
	Convey("Given a reduced density matrix", t, func() {
		rho, err := ReducedDensityMatrix(bellState(), []int{2})
		So(err, ShouldBeNil)

		Convey("Its dump should show every entry", func() {
			dump := spew.Sdump(rho.data)
			So(dump, ShouldContainSubstring, "[]complex128")
			So(dump, ShouldContainSubstring, "len=4")
		})
	})
}
