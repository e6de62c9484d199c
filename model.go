package qhybrid

import (
	"math/rand"
	"sync/atomic"
)

/*
HybridModel owns the three trainable stages: a classical preprocessor
(input_dim → 2^n), the quantum layer (a Circuit plus its angles), and a
classical postprocessor (2^n → output_dim).

A model is built by a factory, mutated only by a Trainer's optimizer step,
and refuses to be trained by two Trainers at once.
*/
type HybridModel struct {
	config   ModelConfig
	Pre      Layer
	Post     Layer
	circuit  *Circuit
	theta    *Vec
	training atomic.Bool
}

/*
NewHybridModel builds the standard architecture from cfg: MLP preprocessor
with HiddenDim units, the layered circuit with angles drawn from
[-InitScale, InitScale], and an MLP postprocessor. Seed fixes every draw.
*/
func NewHybridModel(cfg ModelConfig) (*HybridModel, error) {
	if cfg.Activation == "" {
		cfg.Activation = ActivationTanh
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	circuit, err := BuildCircuit(cfg.NQubits, cfg.NLayers)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	dim := circuit.Dim()

	pre, err := NewMLP(cfg.InputDim, cfg.HiddenDim, dim, cfg.Activation, rng)
	if err != nil {
		return nil, err
	}

	post, err := NewMLP(dim, cfg.HiddenDim, cfg.OutputDim, cfg.Activation, rng)
	if err != nil {
		return nil, err
	}

	return &HybridModel{
		config:  cfg,
		Pre:     pre,
		Post:    post,
		circuit: circuit,
		theta:   NewVec(RandomParameters(circuit, rng, cfg.InitScale).Values()),
	}, nil
}

/*
NewHybridModelFromLayers assembles a model from caller-supplied layers.
Widths are checked when the pipeline runs, so a mis-sized layer surfaces as a
DimensionMismatchError from Forward.
*/
func NewHybridModelFromLayers(pre, post Layer, circuit *Circuit, params ParameterVector) (*HybridModel, error) {
	if pre == nil || post == nil || circuit == nil {
		return nil, argumentError("NewHybridModelFromLayers", "pre, post and circuit are required")
	}
	if params.Len() != circuit.ParameterCount() {
		return nil, argumentError("NewHybridModelFromLayers",
			"got %d parameters, circuit declares %d", params.Len(), circuit.ParameterCount())
	}

	return &HybridModel{
		config: ModelConfig{
			NQubits:   circuit.NumQubits(),
			NLayers:   circuit.NumLayers(),
			InputDim:  pre.InputDim(),
			OutputDim: post.OutputDim(),
		},
		Pre:     pre,
		Post:    post,
		circuit: circuit,
		theta:   NewVec(params.Values()),
	}, nil
}

func (m *HybridModel) Config() ModelConfig { return m.config }
func (m *HybridModel) Circuit() *Circuit   { return m.circuit }
func (m *HybridModel) NumQubits() int      { return m.circuit.NumQubits() }

// Parameters returns a copy of the circuit angles.
func (m *HybridModel) Parameters() ParameterVector {
	return ParameterVector{values: m.theta.Values()}
}

// SetParameters replaces the circuit angles.
func (m *HybridModel) SetParameters(p ParameterVector) error {
	if p.Len() != m.circuit.ParameterCount() {
		return argumentError("SetParameters", "got %d parameters, circuit declares %d", p.Len(), m.circuit.ParameterCount())
	}
	copy(m.theta.Data, p.values)
	return nil
}

// Params lists every trainable vector: preprocessor, circuit angles, postprocessor.
func (m *HybridModel) Params() []*Vec {
	params := append([]*Vec{}, m.Pre.Params()...)
	params = append(params, m.theta)
	return append(params, m.Post.Params()...)
}

func (m *HybridModel) acquire() bool { return m.training.CompareAndSwap(false, true) }
func (m *HybridModel) release()      { m.training.Store(false) }
