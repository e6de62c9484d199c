package qhybrid

import (
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNewStateVector(t *testing.T) {
	Convey("Given an unnormalized amplitude buffer", t, func() {
		amps := []complex128{3, 4i, 0, 0}

		Convey("When building a state", func() {
			state, err := NewStateVector(amps)
			So(err, ShouldBeNil)

			Convey("Then it should be normalized and sized", func() {
				So(state.NumQubits(), ShouldEqual, 2)
				So(state.Dim(), ShouldEqual, 4)
				So(state.Norm(), ShouldAlmostEqual, 1.0, 1e-12)
				So(state.IsValid(), ShouldBeTrue)
				So(real(state.Amplitude(0)), ShouldAlmostEqual, 0.6, 1e-12)
				So(imag(state.Amplitude(1)), ShouldAlmostEqual, 0.8, 1e-12)
			})

			Convey("Then it should not alias the input", func() {
				amps[0] = 100
				So(real(state.Amplitude(0)), ShouldAlmostEqual, 0.6, 1e-12)

				out := state.Amplitudes()
				out[0] = 100
				So(real(state.Amplitude(0)), ShouldAlmostEqual, 0.6, 1e-12)
			})
		})
	})

	Convey("Given a zero buffer", t, func() {
		state, err := FromReal([]float64{0, 0, 0, 0, 0, 0, 0, 0})
		So(err, ShouldBeNil)

		Convey("It should fall back to the uniform state", func() {
			for _, p := range state.Probabilities() {
				So(p, ShouldAlmostEqual, 1.0/8, 1e-12)
			}
			So(state.IsValid(), ShouldBeTrue)
		})
	})

	Convey("Given a NaN buffer", t, func() {
		state, err := FromReal([]float64{math.NaN(), 1})
		So(err, ShouldBeNil)

		Convey("It should also fall back to the uniform state", func() {
			So(real(state.Amplitude(0)), ShouldAlmostEqual, 1/math.Sqrt2, 1e-12)
			So(state.IsValid(), ShouldBeTrue)
		})
	})

	Convey("Given a length that is not a power of two", t, func() {
		_, err := FromReal([]float64{1, 2, 3})

		Convey("It should fail with a DimensionMismatchError", func() {
			var dm *DimensionMismatchError
			So(errors.As(err, &dm), ShouldBeTrue)
			So(dm.Got, ShouldEqual, 3)
			So(dm.Want, ShouldEqual, 4)
		})
	})
}

func TestBasisStates(t *testing.T) {
	Convey("Given qubit counts", t, func() {
		Convey("ZeroState should put all weight on index 0", func() {
			state, err := ZeroState(3)
			So(err, ShouldBeNil)
			So(state.Probabilities(), ShouldResemble, []float64{1, 0, 0, 0, 0, 0, 0, 0})
		})

		Convey("UniformState should spread weight evenly", func() {
			state, err := UniformState(2)
			So(err, ShouldBeNil)
			for _, p := range state.Probabilities() {
				So(p, ShouldAlmostEqual, 0.25, 1e-12)
			}
		})

		Convey("Out-of-range counts should be ArgumentErrors", func() {
			for _, n := range []int{0, -1, MaxQubits + 1} {
				_, err := ZeroState(n)
				var ae *ArgumentError
				So(errors.As(err, &ae), ShouldBeTrue)
			}
		})
	})
}

func TestOverlap(t *testing.T) {
	Convey("Given two states", t, func() {
		zero, _ := ZeroState(1)
		plus, _ := FromReal([]float64{1, 1})

		Convey("Fidelity should be |⟨a|b⟩|²", func() {
			f, err := zero.Fidelity(plus)
			So(err, ShouldBeNil)
			So(f, ShouldAlmostEqual, 0.5, 1e-12)

			self, err := plus.Fidelity(plus)
			So(err, ShouldBeNil)
			So(self, ShouldAlmostEqual, 1.0, 1e-12)
		})

		Convey("Mismatched sizes should fail", func() {
			big, _ := ZeroState(2)
			_, err := zero.Overlap(big)
			var dm *DimensionMismatchError
			So(errors.As(err, &dm), ShouldBeTrue)
		})
	})
}
