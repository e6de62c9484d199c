package qhybrid

import "math"

/*
Adam holds first and second moment estimates for a fixed list of parameter
vectors. The list is bound at construction; Step must always see the same
vectors in the same order.
*/
type Adam struct {
	params []*Vec
	m, v   [][]float64
	t      int
	cfg    TrainConfig
}

func NewAdam(params []*Vec, cfg TrainConfig) *Adam {
	m := make([][]float64, len(params))
	v := make([][]float64, len(params))
	for i, p := range params {
		m[i] = make([]float64, len(p.Data))
		v[i] = make([]float64, len(p.Data))
	}
	return &Adam{params: params, m: m, v: v, cfg: cfg}
}

// Steps is the number of updates taken so far.
func (a *Adam) Steps() int { return a.t }

/*
Step clips the accumulated gradients, applies one bias-corrected Adam update
and clears every gradient for the next pass.
*/
func (a *Adam) Step() {
	a.t++
	b1, b2, eps := a.cfg.Beta1, a.cfg.Beta2, a.cfg.Epsilon
	b1Corr := 1.0 - math.Pow(b1, float64(a.t))
	b2Corr := 1.0 - math.Pow(b2, float64(a.t))

	ClipGrads(a.params, a.cfg.GradClip)

	for i, p := range a.params {
		mi, vi := a.m[i], a.v[i]
		for j := range p.Data {
			g := p.Grad[j]
			mi[j] = b1*mi[j] + (1-b1)*g
			vi[j] = b2*vi[j] + (1-b2)*g*g
			p.Data[j] -= a.cfg.LearningRate * (mi[j] / b1Corr) / (math.Sqrt(vi[j]/b2Corr) + eps)
			p.Grad[j] = 0
		}
	}
}

// ZeroGrad clears gradients without updating.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

// ClipGrads clips every gradient element to [-clip, clip]. Non-finite
// gradients are zeroed. A non-positive clip only zeroes.
func ClipGrads(params []*Vec, clip float64) {
	for _, p := range params {
		for j, g := range p.Grad {
			switch {
			case math.IsNaN(g) || math.IsInf(g, 0):
				p.Grad[j] = 0
			case clip <= 0:
			case g > clip:
				p.Grad[j] = clip
			case g < -clip:
				p.Grad[j] = -clip
			}
		}
	}
}
