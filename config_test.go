package qhybrid

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "qhybrid.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewConfig(t *testing.T) {
	Convey("Given the defaults", t, func() {
		cfg := NewConfig()

		Convey("They should be valid and match the documented values", func() {
			So(cfg.Validate(), ShouldBeNil)
			So(cfg.Model.HiddenDim, ShouldEqual, 32)
			So(cfg.Train.LearningRate, ShouldEqual, 0.01)
			So(cfg.Train.PenaltyWeight, ShouldEqual, 0.1)
			So(cfg.Train.TargetEntropy, ShouldEqual, 1.0)
			So(cfg.Train.EntropyReference, ShouldEqual, EntropyMean)
		})
	})

	Convey("Given out-of-range values", t, func() {
		cases := map[string]func(*Config){
			"qubits":     func(c *Config) { c.Model.NQubits = 21 },
			"layers":     func(c *Config) { c.Model.NLayers = 0 },
			"epochs":     func(c *Config) { c.Train.Epochs = 0 },
			"activation": func(c *Config) { c.Model.Activation = "sigmoid" },
			"reference":  func(c *Config) { c.Train.EntropyReference = "last" },
			"workers":    func(c *Config) { c.Workers = -1 },
			"retries":    func(c *Config) { c.Retries = 0 },
			"kernel":     func(c *Config) { c.Kernel.NQubits = 0 },
		}

		Convey("Validate should return an ArgumentError for each", func() {
			for _, mutate := range cases {
				cfg := NewConfig()
				mutate(cfg)

				var ae *ArgumentError
				So(errors.As(cfg.Validate(), &ae), ShouldBeTrue)
			}
		})
	})
}

func TestLoadConfig(t *testing.T) {
	Convey("Given no config file", t, func() {
		cfg, err := LoadConfig("")

		Convey("It should return the defaults", func() {
			So(err, ShouldBeNil)
			So(cfg.Model, ShouldResemble, DefaultModelConfig())
			So(cfg.SchedulingTimeout, ShouldEqual, 10*time.Second)
		})
	})

	Convey("Given a config file", t, func() {
		path := writeConfig(t, `
workers: 3
scheduling_timeout: 2s
model:
  qubits: 3
  layers: 4
  activation: relu
train:
  learning_rate: 0.05
  entropy_reference: first
kernel:
  penalty_weight: 0.2
`)

		Convey("It should layer the file over the defaults", func() {
			cfg, err := LoadConfig(path)
			So(err, ShouldBeNil)
			So(cfg.Workers, ShouldEqual, 3)
			So(cfg.SchedulingTimeout, ShouldEqual, 2*time.Second)
			So(cfg.Model.NQubits, ShouldEqual, 3)
			So(cfg.Model.NLayers, ShouldEqual, 4)
			So(cfg.Model.Activation, ShouldEqual, ActivationReLU)
			So(cfg.Model.HiddenDim, ShouldEqual, 32)
			So(cfg.Train.LearningRate, ShouldEqual, 0.05)
			So(cfg.Train.EntropyReference, ShouldEqual, EntropyFirst)
			So(cfg.Kernel.PenaltyWeight, ShouldEqual, 0.2)
		})
	})

	Convey("Given an invalid config file", t, func() {
		path := writeConfig(t, "model:\n  qubits: 30\n")

		Convey("It should fail validation", func() {
			_, err := LoadConfig(path)
			var ae *ArgumentError
			So(errors.As(err, &ae), ShouldBeTrue)
		})
	})

	Convey("Given a missing config file", t, func() {
		Convey("It should return a read error", func() {
			_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("QHYBRID_MODEL_QUBITS", "5")
	t.Setenv("QHYBRID_TRAIN_EPOCHS", "7")

	Convey("Given environment overrides and a config file", t, func() {
		path := writeConfig(t, "model:\n  qubits: 30\ntrain:\n  epochs: 2\n")

		Convey("The environment should win over the file", func() {
			cfg, err := LoadConfig(path)
			So(err, ShouldBeNil)
			So(cfg.Model.NQubits, ShouldEqual, 5)
			So(cfg.Train.Epochs, ShouldEqual, 7)
		})
	})
}
