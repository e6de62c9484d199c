package qhybrid

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func tinyModelConfig() ModelConfig {
	cfg := DefaultModelConfig()
	cfg.NQubits = 2
	cfg.NLayers = 1
	cfg.InputDim = 3
	cfg.HiddenDim = 4
	cfg.InitScale = 0.8
	cfg.Seed = 7
	return cfg
}

func tinyBatch() ([][]float64, [][]float64) {
	x := [][]float64{
		{0.1, 0.5, -0.3},
		{0.9, -0.2, 0.4},
		{-0.6, 0.3, 0.8},
	}
	y := [][]float64{{0.2}, {-0.1}, {0.5}}
	return x, y
}

func TestPipelineForward(t *testing.T) {
	Convey("Given a small hybrid model", t, func() {
		model, err := NewHybridModel(tinyModelConfig())
		So(err, ShouldBeNil)
		x, _ := tinyBatch()
		ctx := context.Background()

		Convey("Forward should return one output per row", func() {
			out, err := NewPipeline().Forward(ctx, model, x)
			So(err, ShouldBeNil)
			So(len(out), ShouldEqual, 3)
			for _, row := range out {
				So(len(row), ShouldEqual, 1)
			}
		})

		Convey("Forward should be a pure function of model and input", func() {
			a, _ := NewPipeline().Forward(ctx, model, x)
			b, _ := NewPipeline().Forward(ctx, model, x)
			So(a, ShouldResemble, b)
		})

		Convey("The pool should not change the result", func() {
			pool := newTestPool(3)
			defer pool.Close()

			seq, err := NewPipeline().Forward(ctx, model, x)
			So(err, ShouldBeNil)
			par, err := NewPipeline(WithPool(pool)).Forward(ctx, model, x)
			So(err, ShouldBeNil)
			So(par, ShouldResemble, seq)
		})

		Convey("Quantum states should be valid and sized", func() {
			states, err := NewPipeline().States(ctx, model, x)
			So(err, ShouldBeNil)
			So(len(states), ShouldEqual, 3)
			for _, s := range states {
				So(s.Dim(), ShouldEqual, 4)
				So(s.IsValid(), ShouldBeTrue)
			}
		})

		Convey("An empty batch should be an ArgumentError", func() {
			_, err := NewPipeline().Forward(ctx, model, nil)
			var ae *ArgumentError
			So(errors.As(err, &ae), ShouldBeTrue)
		})

		Convey("A short row should be a DimensionMismatchError", func() {
			_, err := NewPipeline().Forward(ctx, model, [][]float64{{1, 2}})
			var dm *DimensionMismatchError
			So(errors.As(err, &dm), ShouldBeTrue)
			So(dm.Want, ShouldEqual, 3)
		})
	})

	Convey("Given a preprocessor producing 8 values for 4 qubits", t, func() {
		rng := rand.New(rand.NewSource(1))
		circuit, _ := BuildCircuit(4, 1)
		model, err := NewHybridModelFromLayers(
			NewLinear(4, 8, rng), NewLinear(16, 1, rng), circuit,
			RandomParameters(circuit, rng, 0.1),
		)
		So(err, ShouldBeNil)

		Convey("Forward should fail with DimensionMismatchError", func() {
			_, err := NewPipeline().Forward(context.Background(), model, [][]float64{{1, 2, 3, 4}})
			var dm *DimensionMismatchError
			So(errors.As(err, &dm), ShouldBeTrue)
			So(dm.Want, ShouldEqual, 16)
			So(dm.Got, ShouldEqual, 8)
		})
	})

	Convey("Given a preprocessor that outputs zeros", t, func() {
		rng := rand.New(rand.NewSource(1))
		circuit, _ := BuildCircuit(2, 1)
		pre := NewLinear(2, 4, rng)
		for _, r := range pre.Rows {
			copy(r.Data, make([]float64, len(r.Data)))
		}
		model, _ := NewHybridModelFromLayers(pre, NewLinear(4, 1, rng), circuit, RandomParameters(circuit, rng, 0.3))

		Convey("The quantum layer should fall back to the uniform state", func() {
			states, err := NewPipeline().States(context.Background(), model, [][]float64{{1, 1}})
			So(err, ShouldBeNil)
			So(states[0].IsValid(), ShouldBeTrue)

			graph, err := NewPipeline().forwardGraph(context.Background(), model, [][]float64{{1, 1}}, forwardOptions{grads: true})
			So(err, ShouldBeNil)
			So(func() { Backward(graph.outputs[0].MeanSq()) }, ShouldNotPanic)
			So(pre.Bias.Grad, ShouldResemble, []float64{0, 0, 0, 0})
		})
	})
}

func TestQuantumLayerGradients(t *testing.T) {
	Convey("Given a model and a batch", t, func() {
		model, err := NewHybridModel(tinyModelConfig())
		So(err, ShouldBeNil)
		x, y := tinyBatch()
		ctx := context.Background()
		p := NewPipeline()

		mse := func() float64 {
			out, err := p.Forward(ctx, model, x)
			if err != nil {
				panic(err)
			}
			var sum float64
			for i := range out {
				d := out[i][0] - y[i][0]
				sum += d * d
			}
			return sum / float64(len(out))
		}

		graph, err := p.forwardGraph(ctx, model, x, forwardOptions{grads: true})
		So(err, ShouldBeNil)

		terms := make([]*Scalar, len(graph.outputs))
		for i, out := range graph.outputs {
			terms[i] = out.Sub(NewVec(y[i])).MeanSq()
		}
		loss := MeanS(terms)
		So(loss.Data, ShouldAlmostEqual, mse(), 1e-12)
		Backward(loss)

		const h = 1e-6
		check := func(v *Vec) {
			for j := range v.Data {
				orig := v.Data[j]
				v.Data[j] = orig + h
				plus := mse()
				v.Data[j] = orig - h
				minus := mse()
				v.Data[j] = orig

				So(v.Grad[j], ShouldAlmostEqual, (plus-minus)/(2*h), 1e-5)
			}
		}

		Convey("Parameter-shift gradients should match finite differences", func() {
			check(model.theta)
		})

		Convey("Gradients through the normalization should reach the preprocessor", func() {
			for _, v := range model.Pre.Params() {
				check(v)
			}
		})

		Convey("Postprocessor gradients should match too", func() {
			for _, v := range model.Post.Params() {
				check(v)
			}
		})
	})
}
