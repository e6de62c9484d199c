package qhybrid

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/theapemachine/errnie"
	"gonum.org/v1/gonum/stat"
)

// EpochMetrics is one epoch's result. A failed epoch has Loss +Inf, Entropy 0 and Err set.
type EpochMetrics struct {
	RunID    uuid.UUID
	Epoch    int
	Loss     float64
	Entropy  float64
	Duration time.Duration
	Err      error
}

// Failed reports whether the epoch was recorded as a sentinel.
func (m EpochMetrics) Failed() bool { return m.Err != nil }

/*
TrainingRecord is the append-only history of one Train call, one entry per
epoch in order.
*/
type TrainingRecord struct {
	RunID  uuid.UUID
	Epochs []EpochMetrics
}

func (r *TrainingRecord) Append(m EpochMetrics) { r.Epochs = append(r.Epochs, m) }
func (r *TrainingRecord) Len() int              { return len(r.Epochs) }

func (r *TrainingRecord) Losses() []float64 {
	out := make([]float64, len(r.Epochs))
	for i, m := range r.Epochs {
		out[i] = m.Loss
	}
	return out
}

func (r *TrainingRecord) Entropies() []float64 {
	out := make([]float64, len(r.Epochs))
	for i, m := range r.Epochs {
		out[i] = m.Entropy
	}
	return out
}

/*
Trainer fits a HybridModel with Adam on

	loss = MSE(model(x), y) + w · |S - T|

where S is the entanglement entropy of the batch's quantum states (their
mean, or the first sample's) and T the target entropy.
*/
type Trainer struct {
	pipeline *Pipeline
	cfg      TrainConfig
	feed     *BroadcastGroup
}

func NewTrainer(pipeline *Pipeline, cfg TrainConfig) (*Trainer, error) {
	if pipeline == nil {
		pipeline = NewPipeline()
	}
	if cfg.EntropyReference == "" {
		cfg.EntropyReference = EntropyMean
	}
	if cfg.PenaltyStep <= 0 {
		cfg.PenaltyStep = DefaultTrainConfig().PenaltyStep
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Trainer{
		pipeline: pipeline,
		cfg:      cfg,
		feed:     NewBroadcastGroup("training"),
	}, nil
}

// Subscribe returns a feed of every epoch this Trainer completes from now on.
func (t *Trainer) Subscribe(bufferSize int) <-chan EpochMetrics {
	return t.feed.Subscribe(bufferSize)
}

// Close ends every subscription.
func (t *Trainer) Close() { t.feed.Close() }

/*
Train runs epochs optimization steps of model on (x, y). An epochs of 0
means the configured TrainConfig.Epochs.

A failing epoch, whether it returned an error, panicked or produced a
non-finite loss, is logged and recorded as (+Inf, 0) and training moves on.
ctx is only consulted between epochs; on cancellation the record so far is
returned together with the context error.

Returns:
  - *TrainingRecord: one entry per completed epoch
  - error: ArgumentError or DimensionMismatchError for a malformed call,
    including a model that is already being trained
*/
func (t *Trainer) Train(ctx context.Context, model *HybridModel, x, y [][]float64, epochs int) (*TrainingRecord, error) {
	if epochs == 0 {
		epochs = t.cfg.Epochs
	}
	if epochs < 1 {
		return nil, argumentError("Train", "epochs %d must be at least 1", epochs)
	}
	if err := validateBatch("Train", model, x); err != nil {
		return nil, err
	}
	if len(y) != len(x) {
		return nil, &DimensionMismatchError{Stage: "targets", Want: len(x), Got: len(y)}
	}
	for i, row := range y {
		if len(row) != model.Post.OutputDim() {
			return nil, &DimensionMismatchError{
				Stage: fmt.Sprintf("target row %d", i), Want: model.Post.OutputDim(), Got: len(row),
			}
		}
	}

	if !model.acquire() {
		return nil, argumentError("Train", "model is already being trained")
	}
	defer model.release()

	record := &TrainingRecord{RunID: uuid.New()}
	opt := NewAdam(model.Params(), t.cfg)
	epochCtx := context.WithoutCancel(ctx)

	for epoch := 1; epoch <= epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			errnie.Warn("training run %s stopped before epoch %d: %v", record.RunID, epoch, err)
			return record, err
		}

		start := time.Now()
		loss, entropy, err := t.epoch(epochCtx, model, opt, x, y)

		m := EpochMetrics{
			RunID:    record.RunID,
			Epoch:    epoch,
			Loss:     loss,
			Entropy:  entropy,
			Duration: time.Since(start),
		}

		if err != nil {
			opt.ZeroGrad()
			m.Loss, m.Entropy, m.Err = math.Inf(1), 0, err
			errnie.Warn("epoch %d/%d failed: %v", epoch, epochs, err)
		} else {
			errnie.Info("epoch %d/%d loss %.6f entropy %.4f (%s)", epoch, epochs, loss, entropy, m.Duration)
		}

		record.Append(m)
		t.feed.Send(m)
	}

	return record, nil
}

func (t *Trainer) epoch(
	ctx context.Context, model *HybridModel, opt *Adam, x, y [][]float64,
) (loss, entropy float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("epoch panicked: %v", r)
		}
	}()

	graph, err := t.pipeline.forwardGraph(ctx, model, x, forwardOptions{grads: true, entropy: true})
	if err != nil {
		return 0, 0, err
	}

	terms := make([]*Scalar, len(graph.outputs))
	for i, out := range graph.outputs {
		terms[i] = out.Sub(NewVec(append([]float64(nil), y[i]...))).MeanSq()
	}
	mse := MeanS(terms)

	reference := t.referenceSamples(graph.samples)
	entropy = meanEntropy(reference)
	loss = mse.Data + t.cfg.PenaltyWeight*math.Abs(entropy-t.cfg.TargetEntropy)

	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, 0, fmt.Errorf("non-finite loss %v", loss)
	}

	Backward(mse)

	if t.cfg.PenaltyWeight > 0 {
		if err := t.penaltyGrad(ctx, model, reference, entropy); err != nil {
			return 0, 0, err
		}
	}

	opt.Step()
	return loss, entropy, nil
}

func (t *Trainer) referenceSamples(samples []quantumSample) []quantumSample {
	if t.cfg.EntropyReference == EntropyFirst {
		return samples[:1]
	}
	return samples
}

func meanEntropy(samples []quantumSample) float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.entropy
	}
	return stat.Mean(values, nil)
}

/*
penaltyGrad adds the coherence penalty's gradient with respect to the circuit
angles, w · sign(S - T) · dS/dθ, where dS/dθ_k comes from central differences
of the reference entropy. Entropy is not differentiated through the
preprocessor. The shifted runs are independent and go to the pool.
*/
func (t *Trainer) penaltyGrad(ctx context.Context, model *HybridModel, reference []quantumSample, entropy float64) error {
	diff := entropy - t.cfg.TargetEntropy
	if diff == 0 {
		return nil
	}
	scale := t.cfg.PenaltyWeight * math.Copysign(1, diff)

	h := t.cfg.PenaltyStep
	angles := model.theta.Values()
	c := model.circuit
	p := t.pipeline
	grads := make([]float64, len(angles))

	shiftedEntropy := func(shifted []float64) float64 {
		var sum float64
		for _, s := range reference {
			buf := s.input.Amplitudes()
			c.runRaw(buf, shifted)
			sum += p.analyzer.Entropy(fromOwned(buf, c.NumQubits()))
		}
		return sum / float64(len(reference))
	}

	err := forEach(ctx, p.pool, len(angles), func(k int) error {
		shifted := append([]float64(nil), angles...)

		shifted[k] = angles[k] + h
		plus := shiftedEntropy(shifted)
		shifted[k] = angles[k] - h
		minus := shiftedEntropy(shifted)

		grads[k] = (plus - minus) / (2 * h)
		return nil
	})
	if err != nil {
		return err
	}

	for k, g := range grads {
		model.theta.Grad[k] += scale * g
	}
	return nil
}
