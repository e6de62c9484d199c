package qhybrid

import (
	"context"
	"fmt"
	"math"

	"github.com/theapemachine/errnie"
	"gonum.org/v1/gonum/mat"
)

/*
KernelEngine evaluates the quantum kernel

	k(x1, x2) = |⟨φ(x1)|φ(x2)⟩|² · exp(-w · (|S1 - T| + |S2 - T|) / 2)

where φ(x) is the encoded state followed by the layered circuit bound to the
data's own angles, and S the entanglement entropy of φ. Averaging both
penalties keeps k symmetric in its arguments.
*/
type KernelEngine struct {
	cfg      KernelConfig
	circuit  *Circuit
	encoder  Encoder
	pool     *Pool
	backend  *Backend
	analyzer EntanglementAnalyzer
}

type KernelOption func(*KernelEngine)

func WithKernelPool(pool *Pool) KernelOption {
	return func(k *KernelEngine) { k.pool = pool }
}

func WithKernelBackend(backend *Backend) KernelOption {
	return func(k *KernelEngine) { k.backend = backend }
}

func WithKernelAnalyzer(analyzer EntanglementAnalyzer) KernelOption {
	return func(k *KernelEngine) { k.analyzer = analyzer }
}

// WithKernelEncoder replaces the fractal encoder that prepares each sample.
func WithKernelEncoder(encoder Encoder) KernelOption {
	return func(k *KernelEngine) { k.encoder = encoder }
}

func NewKernelEngine(cfg KernelConfig, opts ...KernelOption) (*KernelEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	circuit, err := BuildCircuit(cfg.NQubits, cfg.NLayers)
	if err != nil {
		return nil, err
	}

	k := &KernelEngine{
		cfg:      cfg,
		circuit:  circuit,
		encoder:  FractalEncoder{},
		backend:  CPUBackend(),
		analyzer: VonNeumann{},
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// feature is one sample mapped into Hilbert space.
type feature struct {
	state   StateVector
	entropy float64
}

/*
FeatureState maps x to φ(x). Every layer binds qubit i's RX slot to the
sample's encoding angle a_i and its RY slot to a_i/2.
*/
func (k *KernelEngine) FeatureState(ctx context.Context, x []float64) (StateVector, error) {
	f, err := k.feature(ctx, x)
	return f.state, err
}

func (k *KernelEngine) feature(ctx context.Context, x []float64) (feature, error) {
	angles, err := FractalAngles(x, k.cfg.NQubits)
	if err != nil {
		return feature{}, err
	}

	state, err := k.encoder.Encode(x, k.cfg.NQubits)
	if err != nil {
		return feature{}, err
	}

	params := make([]float64, k.circuit.ParameterCount())
	for layer := 0; layer < k.cfg.NLayers; layer++ {
		for i, a := range angles {
			slot := 2 * (layer*k.cfg.NQubits + i)
			params[slot] = a
			params[slot+1] = a / 2
		}
	}

	gates, err := k.circuit.bind(params)
	if err != nil {
		return feature{}, err
	}

	state, err = k.backend.Run(ctx, state, gates)
	if err != nil {
		return feature{}, err
	}

	return feature{state: state, entropy: k.analyzer.Entropy(state)}, nil
}

func (k *KernelEngine) value(a, b feature) (float64, error) {
	fid, err := a.state.Fidelity(b.state)
	if err != nil {
		return 0, err
	}

	t, w := k.cfg.TargetEntropy, k.cfg.PenaltyWeight
	v := fid * math.Exp(-w*(math.Abs(a.entropy-t)+math.Abs(b.entropy-t))/2)

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite kernel value %v", v)
	}
	return math.Min(math.Max(v, 0), 1), nil
}

/*
Kernel evaluates k(x1, x2). Invalid input, such as an empty vector, is an
ArgumentError; a numerical failure degrades to 0 with a warning.
*/
func (k *KernelEngine) Kernel(ctx context.Context, x1, x2 []float64) (float64, error) {
	a, err := k.feature(ctx, x1)
	if err != nil {
		return 0, err
	}
	b, err := k.feature(ctx, x2)
	if err != nil {
		return 0, err
	}

	v, err := k.value(a, b)
	if err != nil {
		errnie.Warn("kernel value degraded to 0: %v", err)
		return 0, nil
	}
	return v, nil
}

/*
KernelMatrix builds the Gram matrix of X. Each sample is mapped once, only the
upper triangle is evaluated, and the diagonal is set to exactly 1. A sample or
pair that fails contributes 0 and a warning instead of aborting the matrix.
*/
func (k *KernelEngine) KernelMatrix(ctx context.Context, X [][]float64) (*KernelMatrix, error) {
	n := len(X)
	if n == 0 {
		return nil, argumentError("KernelMatrix", "no samples")
	}

	features := make([]feature, n)
	failed := make([]error, n)

	err := forEach(ctx, k.pool, n, func(i int) error {
		features[i], failed[i] = k.feature(ctx, X[i])
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, err := range failed {
		if err != nil {
			errnie.Warn("kernel sample %d failed, its row degrades to 0: %v", i, err)
		}
	}

	type pair struct{ i, j int }
	pairs := make([]pair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, pair{i, j})
		}
	}

	values := make([]float64, len(pairs))
	err = forEach(ctx, k.pool, len(pairs), func(p int) error {
		i, j := pairs[p].i, pairs[p].j
		if failed[i] != nil || failed[j] != nil {
			return nil
		}

		v, err := k.value(features[i], features[j])
		if err != nil {
			errnie.Warn("kernel pair (%d, %d) degraded to 0: %v", i, j, err)
			return nil
		}
		values[p] = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		sym.SetSym(i, i, 1.0)
	}
	for p, pr := range pairs {
		sym.SetSym(pr.i, pr.j, values[p])
	}

	return &KernelMatrix{sym: sym}, nil
}

/*
Kernel evaluates the quantum kernel between x1 and x2 with the default
penalty weight and target entropy.
*/
func Kernel(x1, x2 []float64, nqubits, nlayers int) (float64, error) {
	cfg := DefaultKernelConfig()
	cfg.NQubits, cfg.NLayers = nqubits, nlayers

	k, err := NewKernelEngine(cfg)
	if err != nil {
		return 0, err
	}
	return k.Kernel(context.Background(), x1, x2)
}

// KernelMatrix is a symmetric Gram matrix with unit diagonal.
type KernelMatrix struct {
	sym *mat.SymDense
}

func (m *KernelMatrix) Size() int           { return m.sym.SymmetricDim() }
func (m *KernelMatrix) At(i, j int) float64 { return m.sym.At(i, j) }

// SymDense returns a copy of the backing matrix.
func (m *KernelMatrix) SymDense() *mat.SymDense {
	out := mat.NewSymDense(m.Size(), nil)
	out.CopySym(m.sym)
	return out
}

// Rows copies the matrix into row slices.
func (m *KernelMatrix) Rows() [][]float64 {
	n := m.Size()
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = m.sym.At(i, j)
		}
	}
	return out
}
