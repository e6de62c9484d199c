package qhybrid

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const constantRange = 1e-10

// Encoder maps a classical feature vector onto an initial quantum state.
type Encoder interface {
	Encode(data []float64, nqubits int) (StateVector, error)
}

/*
FractalEncoder is the hierarchical angle encoding. Qubit i reads the mean of
a prefix of the normalized features whose length doubles with every level of
a binary tree over the qubits, so low qubits see coarse summaries and the
prefix widens as the register grows.

Each qubit gets exactly one RX rotation from |0⟩. This is the canonical
scheme; the two-angle RX+RY variant is only used, with its own angles, by the
kernel feature map.
*/
type FractalEncoder struct{}

func (FractalEncoder) Encode(data []float64, nqubits int) (StateVector, error) {
	angles, err := FractalAngles(data, nqubits)
	if err != nil {
		return StateVector{}, err
	}

	return encodeAngles(angles)
}

// Encode runs the FractalEncoder.
func Encode(data []float64, nqubits int) (StateVector, error) {
	return FractalEncoder{}.Encode(data, nqubits)
}

/*
FractalAngles returns the per-qubit RX angles, in qubit order.

Data is min-max normalized to [0, 1]; a range below 1e-10 maps every value
to 0.5. Qubit i (1-based) takes π times the mean of the first
min(len(data), 2^⌊log2(i+1)⌋) normalized values.
*/
func FractalAngles(data []float64, nqubits int) ([]float64, error) {
	if len(data) == 0 {
		return nil, argumentError("Encode", "empty feature vector")
	}
	if err := validateQubits("Encode", nqubits); err != nil {
		return nil, err
	}

	norm := minMax(data)
	angles := make([]float64, nqubits)

	for i := 1; i <= nqubits; i++ {
		level := int(math.Floor(math.Log2(float64(i + 1))))
		width := min(len(norm), 1<<level)
		angles[i-1] = math.Pi * stat.Mean(norm[:width], nil)
	}

	return angles, nil
}

func minMax(data []float64) []float64 {
	out := make([]float64, len(data))
	lo, hi := floats.Min(data), floats.Max(data)

	if hi-lo < constantRange || math.IsNaN(hi-lo) {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}

	for i, v := range data {
		out[i] = (v - lo) / (hi - lo)
	}

	return out
}

// encodeAngles applies RX(angle_i) to qubit i starting from |0...0⟩.
func encodeAngles(angles []float64) (StateVector, error) {
	state, err := ZeroState(len(angles))
	if err != nil {
		return StateVector{}, err
	}

	gates := make([]GateSpec, len(angles))
	for i, a := range angles {
		gates[i] = RX(i+1, a)
	}

	return ApplyGates(state, gates)
}
