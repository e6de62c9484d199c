package qhybrid

import (
	"fmt"
	"math/rand"
	"strings"
)

/*
gateTemplate is one position in a circuit. Parametric templates carry the
index of the parameter slot their angle is read from; the rest carry -1.
*/
type gateTemplate struct {
	spec GateSpec
	slot int
}

/*
Circuit is the description of a layered variational circuit. Every layer is
one RX and one RY per qubit, in qubit order, followed by a CNOT chain
linking qubit i to i+1.

A Circuit holds no angles of its own. Binding a ParameterVector produces the
concrete gate sequence, which keeps a single description reusable across
every sample and every optimizer step.
*/
type Circuit struct {
	nqubits   int
	nlayers   int
	templates []gateTemplate
	nparams   int
}

// ExpectedParameterCount is the parameter count of the layered pattern.
func ExpectedParameterCount(nqubits, nlayers int) int {
	return 2 * nqubits * nlayers
}

/*
BuildCircuit composes the rotation and entangle layers.

Parameters:
  - nqubits: register size, 1 to MaxQubits
  - nlayers: number of rotation+entangle layers, at least 1

Returns:
  - *Circuit: a description consuming ExpectedParameterCount(nqubits, nlayers) angles
  - error: ArgumentError when either count is out of range
*/
func BuildCircuit(nqubits, nlayers int) (*Circuit, error) {
	if err := validateQubits("BuildCircuit", nqubits); err != nil {
		return nil, err
	}
	if nlayers < 1 {
		return nil, argumentError("BuildCircuit", "layer count %d must be at least 1", nlayers)
	}

	c := &Circuit{
		nqubits:   nqubits,
		nlayers:   nlayers,
		templates: make([]gateTemplate, 0, nlayers*(3*nqubits-1)),
	}

	for layer := 0; layer < nlayers; layer++ {
		for q := 1; q <= nqubits; q++ {
			c.templates = append(c.templates,
				gateTemplate{spec: RX(q, 0), slot: c.nparams},
				gateTemplate{spec: RY(q, 0), slot: c.nparams + 1},
			)
			c.nparams += 2
		}
		for q := 1; q < nqubits; q++ {
			c.templates = append(c.templates, gateTemplate{spec: CNOT(q, q+1), slot: -1})
		}
	}

	return c, nil
}

func (c *Circuit) NumQubits() int      { return c.nqubits }
func (c *Circuit) NumLayers() int      { return c.nlayers }
func (c *Circuit) ParameterCount() int { return c.nparams }
func (c *Circuit) Dim() int            { return 1 << c.nqubits }
func (c *Circuit) Len() int            { return len(c.templates) }

// Depth counts gate layers: two rotations plus the CNOT chain per layer.
func (c *Circuit) Depth() int {
	return c.nlayers * (2 + max(c.nqubits-1, 0))
}

/*
ParameterVector is the flat, ordered angle list a Circuit consumes. The only
way to make one is NewParameterVector, which checks its length against the
circuit.
*/
type ParameterVector struct {
	values []float64
}

// NewParameterVector copies values after checking them against c.
func NewParameterVector(c *Circuit, values []float64) (ParameterVector, error) {
	if len(values) != c.nparams {
		return ParameterVector{}, argumentError(
			"NewParameterVector", "got %d parameters, circuit declares %d", len(values), c.nparams,
		)
	}

	buf := make([]float64, len(values))
	copy(buf, values)

	return ParameterVector{values: buf}, nil
}

// RandomParameters draws every angle uniformly from [-scale, scale].
func RandomParameters(c *Circuit, rng *rand.Rand, scale float64) ParameterVector {
	buf := make([]float64, c.nparams)
	for i := range buf {
		buf[i] = (2*rng.Float64() - 1) * scale
	}
	return ParameterVector{values: buf}
}

func (p ParameterVector) Len() int { return len(p.values) }

// Values returns a copy of the angles.
func (p ParameterVector) Values() []float64 {
	out := make([]float64, len(p.values))
	copy(out, p.values)
	return out
}

// Bind resolves every template against params.
func (c *Circuit) Bind(params ParameterVector) ([]GateSpec, error) {
	return c.bind(params.values)
}

func (c *Circuit) bind(angles []float64) ([]GateSpec, error) {
	if len(angles) != c.nparams {
		return nil, argumentError("Circuit.Bind", "got %d parameters, circuit declares %d", len(angles), c.nparams)
	}

	gates := make([]GateSpec, len(c.templates))
	for i, t := range c.templates {
		gates[i] = t.spec
		if t.slot >= 0 {
			gates[i].Angle = angles[t.slot]
		}
	}

	return gates, nil
}

// Run applies the bound circuit to state and returns the resulting state.
func (c *Circuit) Run(state StateVector, params ParameterVector) (StateVector, error) {
	return c.run(state, params.values)
}

func (c *Circuit) run(state StateVector, angles []float64) (StateVector, error) {
	if state.nqubits != c.nqubits {
		return StateVector{}, &DimensionMismatchError{Stage: "Circuit.Run", Want: c.Dim(), Got: state.Dim()}
	}

	gates, err := c.bind(angles)
	if err != nil {
		return StateVector{}, err
	}

	return ApplyGates(state, gates)
}

/*
runRaw applies the circuit to a buffer without renormalizing. The circuit is
unitary, so the norm of buf is preserved; gradient code relies on this to
propagate unnormalized cotangent vectors.
*/
func (c *Circuit) runRaw(buf []complex128, angles []float64) {
	for _, t := range c.templates {
		g := t.spec
		if t.slot >= 0 {
			g.Angle = angles[t.slot]
		}
		applyInPlace(buf, g)
	}
}

// runAdjointRaw applies U† to buf: the inverted gates in reverse order.
func (c *Circuit) runAdjointRaw(buf []complex128, angles []float64) {
	for i := len(c.templates) - 1; i >= 0; i-- {
		t := c.templates[i]
		g := t.spec
		if t.slot >= 0 {
			g.Angle = angles[t.slot]
		}
		applyInPlace(buf, g.Inverse())
	}
}

// RunAdjoint applies the inverse circuit, undoing Run.
func (c *Circuit) RunAdjoint(state StateVector, params ParameterVector) (StateVector, error) {
	if state.nqubits != c.nqubits {
		return StateVector{}, &DimensionMismatchError{Stage: "Circuit.RunAdjoint", Want: c.Dim(), Got: state.Dim()}
	}
	if params.Len() != c.nparams {
		return StateVector{}, argumentError("Circuit.RunAdjoint", "got %d parameters, circuit declares %d", params.Len(), c.nparams)
	}

	buf := state.Amplitudes()
	c.runAdjointRaw(buf, params.values)

	return fromOwned(buf, c.nqubits), nil
}

func (c *Circuit) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "circuit(%d qubits, %d layers, %d params)", c.nqubits, c.nlayers, c.nparams)

	for _, t := range c.templates {
		b.WriteString("\n  ")
		if t.slot >= 0 {
			fmt.Fprintf(&b, "%s(%d, θ[%d])", t.spec.Kind, t.spec.Target, t.slot)
			continue
		}
		b.WriteString(t.spec.String())
	}

	return b.String()
}
