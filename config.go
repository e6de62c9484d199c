package qhybrid

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

/*
Config is the full configuration surface: pool sizing plus the model,
training and kernel sections. NewConfig holds the defaults; LoadConfig
layers a config file and QHYBRID_* environment variables on top.
*/
type Config struct {
	Workers           int           `mapstructure:"workers"`
	SchedulingTimeout time.Duration `mapstructure:"scheduling_timeout"`
	Retries           int           `mapstructure:"retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	Model             ModelConfig   `mapstructure:"model"`
	Train             TrainConfig   `mapstructure:"train"`
	Kernel            KernelConfig  `mapstructure:"kernel"`
}

// ModelConfig sizes a HybridModel.
type ModelConfig struct {
	NQubits    int        `mapstructure:"qubits" msgpack:"qubits"`
	NLayers    int        `mapstructure:"layers" msgpack:"layers"`
	InputDim   int        `mapstructure:"input_dim" msgpack:"input_dim"`
	OutputDim  int        `mapstructure:"output_dim" msgpack:"output_dim"`
	HiddenDim  int        `mapstructure:"hidden_dim" msgpack:"hidden_dim"`
	Activation Activation `mapstructure:"activation" msgpack:"activation"`
	InitScale  float64    `mapstructure:"init_scale" msgpack:"init_scale"`
	Seed       int64      `mapstructure:"seed" msgpack:"seed"`
}

// TrainConfig drives the Trainer and its Adam optimizer.
type TrainConfig struct {
	Epochs        int     `mapstructure:"epochs"`
	LearningRate  float64 `mapstructure:"learning_rate"`
	Beta1         float64 `mapstructure:"beta1"`
	Beta2         float64 `mapstructure:"beta2"`
	Epsilon       float64 `mapstructure:"epsilon"`
	GradClip      float64 `mapstructure:"grad_clip"`
	PenaltyWeight float64 `mapstructure:"penalty_weight"`
	TargetEntropy float64 `mapstructure:"target_entropy"`
	// EntropyReference is "mean" (every sample) or "first" (sample 0 only).
	EntropyReference string  `mapstructure:"entropy_reference"`
	PenaltyStep      float64 `mapstructure:"penalty_step"`
}

// KernelConfig sizes the kernel feature map.
type KernelConfig struct {
	NQubits       int     `mapstructure:"qubits"`
	NLayers       int     `mapstructure:"layers"`
	PenaltyWeight float64 `mapstructure:"penalty_weight"`
	TargetEntropy float64 `mapstructure:"target_entropy"`
}

const (
	EntropyMean  = "mean"
	EntropyFirst = "first"
)

func NewConfig() *Config {
	return &Config{
		Workers:           0,
		SchedulingTimeout: 10 * time.Second,
		Retries:           1,
		RetryBackoff:      10 * time.Millisecond,
		Model:             DefaultModelConfig(),
		Train:             DefaultTrainConfig(),
		Kernel:            DefaultKernelConfig(),
	}
}

func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		NQubits:    4,
		NLayers:    2,
		InputDim:   4,
		OutputDim:  1,
		HiddenDim:  32,
		Activation: ActivationTanh,
		InitScale:  0.1,
		Seed:       42,
	}
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:           100,
		LearningRate:     0.01,
		Beta1:            0.9,
		Beta2:            0.999,
		Epsilon:          1e-8,
		GradClip:         5.0,
		PenaltyWeight:    0.1,
		TargetEntropy:    1.0,
		EntropyReference: EntropyMean,
		PenaltyStep:      1e-3,
	}
}

func DefaultKernelConfig() KernelConfig {
	return KernelConfig{
		NQubits:       4,
		NLayers:       2,
		PenaltyWeight: 0.1,
		TargetEntropy: 1.0,
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return argumentError("Config", "workers %d must not be negative", c.Workers)
	}
	if c.Retries < 1 {
		return argumentError("Config", "retries %d must be at least 1", c.Retries)
	}
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if err := c.Train.Validate(); err != nil {
		return err
	}
	return c.Kernel.Validate()
}

func (m ModelConfig) Validate() error {
	if err := validateQubits("ModelConfig", m.NQubits); err != nil {
		return err
	}
	if m.NLayers < 1 {
		return argumentError("ModelConfig", "layers %d must be at least 1", m.NLayers)
	}
	if m.InputDim < 1 || m.OutputDim < 1 || m.HiddenDim < 1 {
		return argumentError("ModelConfig", "dimensions must be positive (input %d, output %d, hidden %d)",
			m.InputDim, m.OutputDim, m.HiddenDim)
	}
	switch m.Activation {
	case "", ActivationTanh, ActivationReLU:
	default:
		return argumentError("ModelConfig", "unknown activation %q", m.Activation)
	}
	return nil
}

func (t TrainConfig) Validate() error {
	switch {
	case t.Epochs < 1:
		return argumentError("TrainConfig", "epochs %d must be at least 1", t.Epochs)
	case t.LearningRate <= 0:
		return argumentError("TrainConfig", "learning rate %g must be positive", t.LearningRate)
	case t.Beta1 < 0 || t.Beta1 >= 1 || t.Beta2 < 0 || t.Beta2 >= 1:
		return argumentError("TrainConfig", "betas (%g, %g) must lie in [0, 1)", t.Beta1, t.Beta2)
	case t.PenaltyWeight < 0:
		return argumentError("TrainConfig", "penalty weight %g must not be negative", t.PenaltyWeight)
	case t.EntropyReference != EntropyMean && t.EntropyReference != EntropyFirst:
		return argumentError("TrainConfig", "entropy reference %q must be %q or %q",
			t.EntropyReference, EntropyMean, EntropyFirst)
	}
	return nil
}

func (k KernelConfig) Validate() error {
	if err := validateQubits("KernelConfig", k.NQubits); err != nil {
		return err
	}
	if k.NLayers < 1 {
		return argumentError("KernelConfig", "layers %d must be at least 1", k.NLayers)
	}
	if k.PenaltyWeight < 0 {
		return argumentError("KernelConfig", "penalty weight %g must not be negative", k.PenaltyWeight)
	}
	return nil
}

/*
LoadConfig reads path (any format viper understands; empty path skips the
file) over the defaults, applies QHYBRID_* environment overrides such as
QHYBRID_MODEL_QUBITS, and validates the result.
*/
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, NewConfig())

	v.SetEnvPrefix("qhybrid")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("workers", c.Workers)
	v.SetDefault("scheduling_timeout", c.SchedulingTimeout)
	v.SetDefault("retries", c.Retries)
	v.SetDefault("retry_backoff", c.RetryBackoff)

	v.SetDefault("model.qubits", c.Model.NQubits)
	v.SetDefault("model.layers", c.Model.NLayers)
	v.SetDefault("model.input_dim", c.Model.InputDim)
	v.SetDefault("model.output_dim", c.Model.OutputDim)
	v.SetDefault("model.hidden_dim", c.Model.HiddenDim)
	v.SetDefault("model.activation", string(c.Model.Activation))
	v.SetDefault("model.init_scale", c.Model.InitScale)
	v.SetDefault("model.seed", c.Model.Seed)

	v.SetDefault("train.epochs", c.Train.Epochs)
	v.SetDefault("train.learning_rate", c.Train.LearningRate)
	v.SetDefault("train.beta1", c.Train.Beta1)
	v.SetDefault("train.beta2", c.Train.Beta2)
	v.SetDefault("train.epsilon", c.Train.Epsilon)
	v.SetDefault("train.grad_clip", c.Train.GradClip)
	v.SetDefault("train.penalty_weight", c.Train.PenaltyWeight)
	v.SetDefault("train.target_entropy", c.Train.TargetEntropy)
	v.SetDefault("train.entropy_reference", c.Train.EntropyReference)
	v.SetDefault("train.penalty_step", c.Train.PenaltyStep)

	v.SetDefault("kernel.qubits", c.Kernel.NQubits)
	v.SetDefault("kernel.layers", c.Kernel.NLayers)
	v.SetDefault("kernel.penalty_weight", c.Kernel.PenaltyWeight)
	v.SetDefault("kernel.target_entropy", c.Kernel.TargetEntropy)
}
