package qhybrid

import (
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const checkpointVersion = 1

/*
Checkpoint is the serialized form of a HybridModel: its architecture and
every trainable vector, in Params order.
*/
type Checkpoint struct {
	Version int         `msgpack:"version"`
	SavedAt time.Time   `msgpack:"saved_at"`
	Config  ModelConfig `msgpack:"config"`
	Theta   []float64   `msgpack:"theta"`
	Pre     [][]float64 `msgpack:"pre"`
	Post    [][]float64 `msgpack:"post"`
}

func snapshot(params []*Vec) [][]float64 {
	out := make([][]float64, len(params))
	for i, p := range params {
		out[i] = p.Values()
	}
	return out
}

func checkShapes(stage string, params []*Vec, values [][]float64) error {
	if len(params) != len(values) {
		return &DimensionMismatchError{Stage: stage + " parameter count", Want: len(params), Got: len(values)}
	}
	for i, p := range params {
		if len(values[i]) != len(p.Data) {
			return &DimensionMismatchError{
				Stage: fmt.Sprintf("%s parameter %d", stage, i), Want: len(p.Data), Got: len(values[i]),
			}
		}
	}
	return nil
}

func restore(params []*Vec, values [][]float64) {
	for i, p := range params {
		copy(p.Data, values[i])
	}
}

// SaveCheckpoint writes model to w as msgpack.
func SaveCheckpoint(w io.Writer, model *HybridModel) error {
	cp := Checkpoint{
		Version: checkpointVersion,
		SavedAt: time.Now().UTC(),
		Config:  model.Config(),
		Theta:   model.theta.Values(),
		Pre:     snapshot(model.Pre.Params()),
		Post:    snapshot(model.Post.Params()),
	}

	if err := msgpack.NewEncoder(w).Encode(&cp); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return nil
}

func readCheckpoint(r io.Reader) (*Checkpoint, error) {
	var cp Checkpoint
	if err := msgpack.NewDecoder(r).Decode(&cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if cp.Version != checkpointVersion {
		return nil, argumentError("LoadCheckpoint", "unsupported checkpoint version %d", cp.Version)
	}
	return &cp, nil
}

/*
LoadCheckpoint rebuilds a standard-architecture model from r. Models built
from custom layers are restored with RestoreCheckpoint instead.
*/
func LoadCheckpoint(r io.Reader) (*HybridModel, error) {
	cp, err := readCheckpoint(r)
	if err != nil {
		return nil, err
	}

	model, err := NewHybridModel(cp.Config)
	if err != nil {
		return nil, err
	}
	if err := cp.apply(model); err != nil {
		return nil, err
	}
	return model, nil
}

// RestoreCheckpoint overwrites the weights of an existing model with those in r.
func RestoreCheckpoint(r io.Reader, model *HybridModel) error {
	cp, err := readCheckpoint(r)
	if err != nil {
		return err
	}
	return cp.apply(model)
}

func (cp *Checkpoint) apply(model *HybridModel) error {
	if !model.acquire() {
		return argumentError("RestoreCheckpoint", "model is being trained")
	}
	defer model.release()

	if len(cp.Theta) != model.circuit.ParameterCount() {
		return &DimensionMismatchError{Stage: "circuit parameters", Want: model.circuit.ParameterCount(), Got: len(cp.Theta)}
	}
	if err := checkShapes("preprocessor", model.Pre.Params(), cp.Pre); err != nil {
		return err
	}
	if err := checkShapes("postprocessor", model.Post.Params(), cp.Post); err != nil {
		return err
	}

	restore(model.Pre.Params(), cp.Pre)
	restore(model.Post.Params(), cp.Post)
	copy(model.theta.Data, cp.Theta)
	return nil
}
