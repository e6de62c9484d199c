package qhybrid

import (
	"bytes"
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCheckpoint(t *testing.T) {
	Convey("Given a trained model", t, func() {
		model, err := NewHybridModel(tinyModelConfig())
		So(err, ShouldBeNil)
		x, y := tinyBatch()

		trainer, _ := NewTrainer(nil, testTrainConfig())
		Reset(trainer.Close)
		_, err = trainer.Train(context.Background(), model, x, y, 2)
		So(err, ShouldBeNil)

		var buf bytes.Buffer
		So(SaveCheckpoint(&buf, model), ShouldBeNil)

		want, err := NewPipeline().Forward(context.Background(), model, x)
		So(err, ShouldBeNil)

		Convey("LoadCheckpoint should reproduce its outputs", func() {
			restored, err := LoadCheckpoint(bytes.NewReader(buf.Bytes()))
			So(err, ShouldBeNil)
			So(restored.Config(), ShouldResemble, model.Config())
			So(restored.Parameters().Values(), ShouldResemble, model.Parameters().Values())

			got, err := NewPipeline().Forward(context.Background(), restored, x)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, want)
		})

		Convey("RestoreCheckpoint should overwrite a fresh model", func() {
			fresh, _ := NewHybridModel(tinyModelConfig())
			So(RestoreCheckpoint(bytes.NewReader(buf.Bytes()), fresh), ShouldBeNil)

			got, _ := NewPipeline().Forward(context.Background(), fresh, x)
			So(got, ShouldResemble, want)
		})

		Convey("Restoring into a different architecture should fail untouched", func() {
			cfg := tinyModelConfig()
			cfg.HiddenDim = 6
			other, _ := NewHybridModel(cfg)
			before := other.Pre.Params()[0].Values()

			err := RestoreCheckpoint(bytes.NewReader(buf.Bytes()), other)
			var dm *DimensionMismatchError
			So(errors.As(err, &dm), ShouldBeTrue)
			So(other.Pre.Params()[0].Values(), ShouldResemble, before)
		})

		Convey("Garbage should not decode", func() {
			_, err := LoadCheckpoint(bytes.NewReader([]byte("not msgpack")))
			So(err, ShouldNotBeNil)
		})
	})
}
