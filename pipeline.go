package qhybrid

import (
	"context"
	"fmt"
)

/*
Pipeline runs HybridModels: classical preprocessing of the whole batch,
the quantum layer per sample, then classical postprocessing. The per-sample
stage has no cross-sample dependency and runs on the pool when one is set.
*/
type Pipeline struct {
	pool     *Pool
	backend  *Backend
	analyzer EntanglementAnalyzer
}

type PipelineOption func(*Pipeline)

// WithPool runs the per-sample stage on pool.
func WithPool(pool *Pool) PipelineOption {
	return func(p *Pipeline) { p.pool = pool }
}

// WithBackend routes circuit runs through backend.
func WithBackend(backend *Backend) PipelineOption {
	return func(p *Pipeline) { p.backend = backend }
}

// WithAnalyzer replaces the default bipartition entropy.
func WithAnalyzer(analyzer EntanglementAnalyzer) PipelineOption {
	return func(p *Pipeline) { p.analyzer = analyzer }
}

func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		backend:  CPUBackend(),
		analyzer: VonNeumann{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type forwardOptions struct {
	grads   bool
	entropy bool
}

// batchGraph is the forward pass of one batch, kept for backpropagation.
type batchGraph struct {
	outputs []*Vec
	samples []quantumSample
}

/*
Forward evaluates model on every row of x.

Returns:
  - [][]float64: one postprocessor output per row
  - error: ArgumentError on an empty batch, DimensionMismatchError when a row,
    the preprocessor output or the postprocessor input disagrees with the model
*/
func (p *Pipeline) Forward(ctx context.Context, model *HybridModel, x [][]float64) ([][]float64, error) {
	graph, err := p.forwardGraph(ctx, model, x, forwardOptions{})
	if err != nil {
		return nil, err
	}

	out := make([][]float64, len(graph.outputs))
	for i, v := range graph.outputs {
		out[i] = v.Values()
	}
	return out, nil
}

// States returns the quantum layer's output state for every row of x.
func (p *Pipeline) States(ctx context.Context, model *HybridModel, x [][]float64) ([]StateVector, error) {
	graph, err := p.forwardGraph(ctx, model, x, forwardOptions{})
	if err != nil {
		return nil, err
	}

	states := make([]StateVector, len(graph.samples))
	for i, s := range graph.samples {
		states[i] = s.output
	}
	return states, nil
}

func (p *Pipeline) forwardGraph(
	ctx context.Context, model *HybridModel, x [][]float64, opts forwardOptions,
) (*batchGraph, error) {
	if err := validateBatch("Pipeline.Forward", model, x); err != nil {
		return nil, err
	}

	dim := model.circuit.Dim()
	hidden := make([]*Vec, len(x))
	for i, row := range x {
		in := make([]float64, len(row))
		copy(in, row)
		hidden[i] = model.Pre.Forward(NewVec(in))

		if got := hidden[i].Len(); got != dim {
			return nil, &DimensionMismatchError{Stage: "preprocessor output", Want: dim, Got: got}
		}
	}

	angles := model.theta.Values()
	samples := make([]quantumSample, len(x))

	err := forEach(ctx, p.pool, len(x), func(i int) error {
		s, err := p.runQuantum(ctx, model.circuit, hidden[i].Data, angles, opts)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		samples[i] = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	outputs := make([]*Vec, len(x))
	for i := range x {
		q := quantumNode(hidden[i], model.theta, model.circuit, angles, samples[i])
		outputs[i] = model.Post.Forward(q)
	}

	return &batchGraph{outputs: outputs, samples: samples}, nil
}

// validateBatch checks a batch against the model before any stage runs.
func validateBatch(op string, model *HybridModel, x [][]float64) error {
	if model == nil {
		return argumentError(op, "nil model")
	}
	if len(x) == 0 {
		return argumentError(op, "empty batch")
	}

	dim := model.circuit.Dim()
	if got := model.Pre.OutputDim(); got != dim {
		return &DimensionMismatchError{Stage: "preprocessor output", Want: dim, Got: got}
	}
	if got := model.Post.InputDim(); got != dim {
		return &DimensionMismatchError{Stage: "postprocessor input", Want: dim, Got: got}
	}

	for i, row := range x {
		if len(row) != model.Pre.InputDim() {
			return &DimensionMismatchError{
				Stage: fmt.Sprintf("input row %d", i), Want: model.Pre.InputDim(), Got: len(row),
			}
		}
	}
	return nil
}
