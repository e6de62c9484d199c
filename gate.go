package qhybrid

import (
	"fmt"
	"math"
)

// GateKind tags the variant held by a GateSpec.
type GateKind int

const (
	GateRX GateKind = iota
	GateRY
	GateH
	GateCNOT
)

func (k GateKind) String() string {
	switch k {
	case GateRX:
		return "RX"
	case GateRY:
		return "RY"
	case GateH:
		return "H"
	case GateCNOT:
		return "CNOT"
	default:
		return fmt.Sprintf("GateKind(%d)", int(k))
	}
}

/*
GateSpec is one immutable gate instruction. Qubit indices are 1-based.
Target is the acted-on qubit for every kind; Control is only meaningful for
CNOT; Angle is only meaningful for the rotations.
*/
type GateSpec struct {
	Kind    GateKind
	Target  int
	Control int
	Angle   float64
}

func RX(qubit int, angle float64) GateSpec {
	return GateSpec{Kind: GateRX, Target: qubit, Angle: angle}
}

func RY(qubit int, angle float64) GateSpec {
	return GateSpec{Kind: GateRY, Target: qubit, Angle: angle}
}

func H(qubit int) GateSpec {
	return GateSpec{Kind: GateH, Target: qubit}
}

func CNOT(control, target int) GateSpec {
	return GateSpec{Kind: GateCNOT, Control: control, Target: target}
}

// Parametric reports whether the gate consumes a rotation angle.
func (g GateSpec) Parametric() bool {
	return g.Kind == GateRX || g.Kind == GateRY
}

// Inverse returns the gate undoing g. H and CNOT are self-inverse.
func (g GateSpec) Inverse() GateSpec {
	if g.Parametric() {
		g.Angle = -g.Angle
	}
	return g
}

func (g GateSpec) String() string {
	switch g.Kind {
	case GateCNOT:
		return fmt.Sprintf("CNOT(%d, %d)", g.Control, g.Target)
	case GateRX, GateRY:
		return fmt.Sprintf("%s(%d, %.4f)", g.Kind, g.Target, g.Angle)
	default:
		return fmt.Sprintf("%s(%d)", g.Kind, g.Target)
	}
}

func (g GateSpec) validate(n int) error {
	inRange := func(q int) bool { return q >= 1 && q <= n }

	if !inRange(g.Target) {
		return &InvalidGateError{Gate: g, NQubits: n, Reason: fmt.Sprintf("target %d out of range", g.Target)}
	}

	switch g.Kind {
	case GateRX, GateRY, GateH:
		return nil
	case GateCNOT:
		if !inRange(g.Control) {
			return &InvalidGateError{Gate: g, NQubits: n, Reason: fmt.Sprintf("control %d out of range", g.Control)}
		}
		if g.Control == g.Target {
			return &InvalidGateError{Gate: g, NQubits: n, Reason: "control equals target"}
		}
		return nil
	default:
		return &InvalidGateError{Gate: g, NQubits: n, Reason: "unknown gate kind"}
	}
}

/*
GateOps applies gates to states. Implementations must not alias the input
state's buffer: the returned StateVector is the only carrier of the result.
*/
type GateOps interface {
	Apply(state StateVector, gate GateSpec) (StateVector, error)
}

// StandardGates is the CPU state-vector implementation of GateOps.
type StandardGates struct{}

func (StandardGates) Apply(state StateVector, gate GateSpec) (StateVector, error) {
	return ApplyGate(state, gate)
}

/*
ApplyGate returns gate applied to state as a new, normalized StateVector.
Out-of-range qubit indices fail with InvalidGateError.
*/
func ApplyGate(state StateVector, gate GateSpec) (StateVector, error) {
	if err := gate.validate(state.nqubits); err != nil {
		return StateVector{}, err
	}

	buf := state.Amplitudes()
	applyInPlace(buf, gate)

	return fromOwned(buf, state.nqubits), nil
}

// ApplyGates folds gates over state in order.
func ApplyGates(state StateVector, gates []GateSpec) (StateVector, error) {
	for _, g := range gates {
		if err := g.validate(state.nqubits); err != nil {
			return StateVector{}, err
		}
	}

	buf := state.Amplitudes()
	for _, g := range gates {
		applyInPlace(buf, g)
	}

	return fromOwned(buf, state.nqubits), nil
}

// applyInPlace mutates a buffer the caller owns. The gate must be validated.
func applyInPlace(buf []complex128, g GateSpec) {
	bit := 1 << (g.Target - 1)

	switch g.Kind {
	case GateRX:
		c := complex(math.Cos(g.Angle/2), 0)
		js := complex(0, -math.Sin(g.Angle/2))
		for i := range buf {
			if i&bit == 0 {
				j := i | bit
				a, b := buf[i], buf[j]
				buf[i] = c*a + js*b
				buf[j] = js*a + c*b
			}
		}
	case GateRY:
		c := complex(math.Cos(g.Angle/2), 0)
		s := complex(math.Sin(g.Angle/2), 0)
		for i := range buf {
			if i&bit == 0 {
				j := i | bit
				a, b := buf[i], buf[j]
				buf[i] = c*a - s*b
				buf[j] = s*a + c*b
			}
		}
	case GateH:
		h := complex(1/math.Sqrt2, 0)
		for i := range buf {
			if i&bit == 0 {
				j := i | bit
				a, b := buf[i], buf[j]
				buf[i] = h * (a + b)
				buf[j] = h * (a - b)
			}
		}
	case GateCNOT:
		ctrl := 1 << (g.Control - 1)
		for i := range buf {
			if i&ctrl != 0 && i&bit == 0 {
				j := i | bit
				buf[i], buf[j] = buf[j], buf[i]
			}
		}
	}
}
