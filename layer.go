package qhybrid

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

/*
Layer is the classical layer capability the pipeline depends on: a
differentiable map with fixed input and output widths. Forward builds graph
nodes, so gradients flow back into Params after Backward.
*/
type Layer interface {
	Forward(x *Vec) *Vec
	InputDim() int
	OutputDim() int
	Params() []*Vec
}

/*
Linear is y = Wx + b. W is stored as one Vec per output row, so the
optimizer sees rows and the bias as independent parameter vectors.
*/
type Linear struct {
	Rows []*Vec
	Bias *Vec
	Nin  int
	Nout int
}

// NewLinear initializes W with Xavier-scaled normal noise and b with zeros.
func NewLinear(nin, nout int, rng *rand.Rand) *Linear {
	std := math.Sqrt(2.0 / float64(nin+nout))
	rows := make([]*Vec, nout)
	for i := range rows {
		d := make([]float64, nin)
		for j := range d {
			d[j] = rng.NormFloat64() * std
		}
		rows[i] = NewVec(d)
	}

	return &Linear{Rows: rows, Bias: NewVecZero(nout), Nin: nin, Nout: nout}
}

func (l *Linear) InputDim() int  { return l.Nin }
func (l *Linear) OutputDim() int { return l.Nout }

func (l *Linear) Params() []*Vec {
	return append(append([]*Vec{}, l.Rows...), l.Bias)
}

// Forward computes Wx + b.
func (l *Linear) Forward(x *Vec) *Vec {
	nout := l.Nout
	outData := make([]float64, nout)
	for i := 0; i < nout; i++ {
		outData[i] = l.Bias.Data[i] + floats.Dot(l.Rows[i].Data, x.Data)
	}

	kids := make([]Node, 0, nout+2)
	for _, r := range l.Rows {
		kids = append(kids, r)
	}
	kids = append(kids, l.Bias, x)

	out := NewVec(outData)
	out.children = kids
	rows, bias := l.Rows, l.Bias
	out.backFn = func() {
		for i := 0; i < nout; i++ {
			g := out.Grad[i]
			bias.Grad[i] += g
			floats.AddScaled(rows[i].Grad, g, x.Data)
			floats.AddScaled(x.Grad, g, rows[i].Data)
		}
	}
	return out
}

// Activation names the element-wise nonlinearities a Sequential can hold.
type Activation string

const (
	ActivationTanh Activation = "tanh"
	ActivationReLU Activation = "relu"
)

// activationLayer is a parameter-free element-wise layer.
type activationLayer struct {
	kind Activation
	dim  int
}

// NewActivation returns the element-wise layer kind of width dim.
func NewActivation(kind Activation, dim int) Layer {
	return &activationLayer{kind: kind, dim: dim}
}

func (a *activationLayer) InputDim() int  { return a.dim }
func (a *activationLayer) OutputDim() int { return a.dim }
func (a *activationLayer) Params() []*Vec { return nil }

func (a *activationLayer) Forward(x *Vec) *Vec {
	if a.kind == ActivationReLU {
		return x.ReLU()
	}
	return x.Tanh()
}

// Sequential chains layers, feeding each output to the next input.
type Sequential struct {
	Layers []Layer
}

/*
NewSequential checks that adjacent widths agree.
*/
func NewSequential(layers ...Layer) (*Sequential, error) {
	if len(layers) == 0 {
		return nil, argumentError("NewSequential", "no layers")
	}

	for i := 1; i < len(layers); i++ {
		if layers[i-1].OutputDim() != layers[i].InputDim() {
			return nil, &DimensionMismatchError{
				Stage: fmt.Sprintf("sequential layer %d", i),
				Want:  layers[i].InputDim(),
				Got:   layers[i-1].OutputDim(),
			}
		}
	}

	return &Sequential{Layers: layers}, nil
}

/*
NewMLP builds Linear(in, hidden) → activation → Linear(hidden, out), the
shape of both classical stages around the quantum layer.
*/
func NewMLP(in, hidden, out int, act Activation, rng *rand.Rand) (*Sequential, error) {
	if in < 1 || hidden < 1 || out < 1 {
		return nil, argumentError("NewMLP", "widths %d, %d, %d must be positive", in, hidden, out)
	}

	return NewSequential(
		NewLinear(in, hidden, rng),
		NewActivation(act, hidden),
		NewLinear(hidden, out, rng),
	)
}

func (s *Sequential) InputDim() int  { return s.Layers[0].InputDim() }
func (s *Sequential) OutputDim() int { return s.Layers[len(s.Layers)-1].OutputDim() }

func (s *Sequential) Params() []*Vec {
	var out []*Vec
	for _, l := range s.Layers {
		out = append(out, l.Params()...)
	}
	return out
}

func (s *Sequential) Forward(x *Vec) *Vec {
	for _, l := range s.Layers {
		x = l.Forward(x)
	}
	return x
}
