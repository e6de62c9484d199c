package qhybrid

import (
	"context"
	"math"
)

// quantumSample is one sample's trip through the quantum layer.
type quantumSample struct {
	input    StateVector
	output   StateVector
	norm     float64
	fallback bool
	entropy  float64
	// shifts[k] is d Re(output)/dθ_k, filled only when gradients are wanted.
	shifts [][]float64
}

/*
prepareState normalizes a preprocessor output into the layer's input state.
A numerically zero vector becomes the uniform state, and the fallback flag
tells the backward pass that the input had no influence.
*/
func prepareState(z []float64) (StateVector, float64, bool, error) {
	var sq float64
	for _, v := range z {
		sq += v * v
	}
	norm := math.Sqrt(sq)

	state, err := FromReal(z)
	if err != nil {
		return StateVector{}, 0, false, err
	}

	return state, norm, norm < zeroNorm || math.IsNaN(norm) || math.IsInf(norm, 0), nil
}

/*
runQuantum prepares z, runs the bound circuit through the backend and, when
asked, evaluates the parameter-shift terms.

RX and RY satisfy dR(θ)/dθ = R(θ+π)/2 exactly, so the derivative of every
output amplitude with respect to θ_k is half the amplitude of the circuit with
θ_k shifted by π.
*/
func (p *Pipeline) runQuantum(
	ctx context.Context, c *Circuit, z, angles []float64, opts forwardOptions,
) (quantumSample, error) {
	input, norm, fallback, err := prepareState(z)
	if err != nil {
		return quantumSample{}, err
	}

	gates, err := c.bind(angles)
	if err != nil {
		return quantumSample{}, err
	}

	output, err := p.backend.Run(ctx, input, gates)
	if err != nil {
		return quantumSample{}, err
	}

	sample := quantumSample{input: input, output: output, norm: norm, fallback: fallback}

	if opts.entropy {
		sample.entropy = p.analyzer.Entropy(output)
	}

	if opts.grads {
		sample.shifts = make([][]float64, len(angles))
		shifted := make([]float64, len(angles))
		for k := range angles {
			copy(shifted, angles)
			shifted[k] += math.Pi

			buf := input.Amplitudes()
			c.runRaw(buf, shifted)

			d := make([]float64, len(buf))
			for i, a := range buf {
				d[i] = real(a) / 2
			}
			sample.shifts[k] = d
		}
	}

	return sample, nil
}

/*
quantumNode wires a sample into the autograd graph. Its value is Re(U ψ);
its backward pass sends gradients to the circuit angles through the shift
terms, and to the preprocessor output through the adjoint circuit and the
normalization Jacobian (I - ψψᵀ)/|z|.
*/
func quantumNode(z, theta *Vec, c *Circuit, angles []float64, s quantumSample) *Vec {
	out := NewVec(s.output.RealParts())
	out.children = []Node{z, theta}

	out.backFn = func() {
		g := out.Grad

		for k, d := range s.shifts {
			var sum float64
			for i := range g {
				sum += g[i] * d[i]
			}
			theta.Grad[k] += sum
		}

		if s.fallback {
			return
		}

		// Re(U† g) for real g equals Re(U)ᵀ g, the gradient with respect to ψ.
		buf := make([]complex128, len(g))
		for i, v := range g {
			buf[i] = complex(v, 0)
		}
		c.runAdjointRaw(buf, angles)

		psi := s.input.RealParts()
		var proj float64
		for i := range psi {
			proj += real(buf[i]) * psi[i]
		}
		for i := range psi {
			z.Grad[i] += (real(buf[i]) - proj*psi[i]) / s.norm
		}
	}

	return out
}
