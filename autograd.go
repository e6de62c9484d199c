package qhybrid

import "math"

// Node is anything in the reverse-mode compute graph.
type Node interface {
	getChildren() []Node
	doBackward()
}

/*
Vec is a differentiable vector. Data holds values, Grad accumulates the
gradient of whatever root Backward was called on.
*/
type Vec struct {
	Data     []float64
	Grad     []float64
	children []Node
	backFn   func()
}

func NewVec(data []float64) *Vec {
	return &Vec{Data: data, Grad: make([]float64, len(data))}
}

func NewVecZero(n int) *Vec {
	return NewVec(make([]float64, n))
}

func (v *Vec) getChildren() []Node { return v.children }
func (v *Vec) doBackward() {
	if v.backFn != nil {
		v.backFn()
	}
}

// Len is the vector width.
func (v *Vec) Len() int { return len(v.Data) }

// Values returns a copy of Data, detached from the graph.
func (v *Vec) Values() []float64 {
	out := make([]float64, len(v.Data))
	copy(out, v.Data)
	return out
}

// ZeroGrad clears the accumulated gradient.
func (v *Vec) ZeroGrad() {
	for i := range v.Grad {
		v.Grad[i] = 0
	}
}

// Add returns self + other, element-wise.
func (v *Vec) Add(other *Vec) *Vec {
	n := len(v.Data)
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		d[i] = v.Data[i] + other.Data[i]
	}
	out := NewVec(d)
	out.children = []Node{v, other}
	out.backFn = func() {
		for i := 0; i < n; i++ {
			v.Grad[i] += out.Grad[i]
			other.Grad[i] += out.Grad[i]
		}
	}
	return out
}

// Sub returns self - other.
func (v *Vec) Sub(other *Vec) *Vec {
	n := len(v.Data)
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		d[i] = v.Data[i] - other.Data[i]
	}
	out := NewVec(d)
	out.children = []Node{v, other}
	out.backFn = func() {
		for i := 0; i < n; i++ {
			v.Grad[i] += out.Grad[i]
			other.Grad[i] -= out.Grad[i]
		}
	}
	return out
}

// Scale returns self * s.
func (v *Vec) Scale(s float64) *Vec {
	n := len(v.Data)
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		d[i] = v.Data[i] * s
	}
	out := NewVec(d)
	out.children = []Node{v}
	out.backFn = func() {
		for i := 0; i < n; i++ {
			v.Grad[i] += s * out.Grad[i]
		}
	}
	return out
}

// Tanh applies tanh element-wise.
func (v *Vec) Tanh() *Vec {
	n := len(v.Data)
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		d[i] = math.Tanh(v.Data[i])
	}
	out := NewVec(d)
	out.children = []Node{v}
	out.backFn = func() {
		for i := 0; i < n; i++ {
			v.Grad[i] += (1 - d[i]*d[i]) * out.Grad[i]
		}
	}
	return out
}

// ReLU applies max(0, x) element-wise.
func (v *Vec) ReLU() *Vec {
	n := len(v.Data)
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		if v.Data[i] > 0 {
			d[i] = v.Data[i]
		}
	}
	out := NewVec(d)
	out.children = []Node{v}
	vData := v.Data
	out.backFn = func() {
		for i := 0; i < n; i++ {
			if vData[i] > 0 {
				v.Grad[i] += out.Grad[i]
			}
		}
	}
	return out
}

// MeanSq returns the mean of squared elements.
func (v *Vec) MeanSq() *Scalar {
	n := len(v.Data)
	nf := float64(n)
	val := 0.0
	for i := 0; i < n; i++ {
		val += v.Data[i] * v.Data[i]
	}
	val /= nf
	out := &Scalar{Data: val}
	out.children = []Node{v}
	vData := v.Data
	out.backFn = func() {
		for i := 0; i < n; i++ {
			v.Grad[i] += (2.0 * vData[i] / nf) * out.Grad
		}
	}
	return out
}

// Scalar is a differentiable scalar, used for losses.
type Scalar struct {
	Data     float64
	Grad     float64
	children []Node
	backFn   func()
}

func (s *Scalar) getChildren() []Node { return s.children }
func (s *Scalar) doBackward() {
	if s.backFn != nil {
		s.backFn()
	}
}

// MeanS averages scalars into one node.
func MeanS(terms []*Scalar) *Scalar {
	nf := float64(len(terms))
	val := 0.0
	kids := make([]Node, len(terms))
	for i, t := range terms {
		val += t.Data
		kids[i] = t
	}
	out := &Scalar{Data: val / nf}
	out.children = kids
	out.backFn = func() {
		for _, t := range terms {
			t.Grad += out.Grad / nf
		}
	}
	return out
}

// Backward runs reverse-mode autodiff from root.
func Backward(root Node) {
	topo := make([]Node, 0)
	visited := make(map[Node]bool)

	var build func(n Node)
	build = func(n Node) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, c := range n.getChildren() {
			build(c)
		}
		topo = append(topo, n)
	}
	build(root)

	switch r := root.(type) {
	case *Scalar:
		r.Grad = 1.0
	case *Vec:
		for i := range r.Grad {
			r.Grad[i] = 1.0
		}
	}

	for i := len(topo) - 1; i >= 0; i-- {
		topo[i].doBackward()
	}
}
