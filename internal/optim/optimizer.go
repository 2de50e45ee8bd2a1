package optim

import (
	"strings"

	"github.com/pkg/errors"

	"activelearn/internal/nn"
)

// ErrUnknownOptimizer is returned for optimizer names outside {adam, sgd}.
var ErrUnknownOptimizer = errors.New("unknown optimizer")

// Optimizer updates a fixed set of parameters from their accumulated
// gradients. Each optimizer owns its own state; two optimizers may share a
// parameter but never share a step.
type Optimizer interface {
	Name() string
	Step()
	ZeroGrad()
	StepCount() uint64
}

// Config selects and parameterizes an optimizer.
type Config struct {
	Name         string  `yaml:"optimizer" json:"optimizer"`
	LearningRate float64 `yaml:"lr" json:"lr"`
	Momentum     float64 `yaml:"momentum,omitempty" json:"momentum,omitempty"`
	WeightDecay  float64 `yaml:"weight_decay,omitempty" json:"weight_decay,omitempty"`
}

// New builds the named optimizer over params. Unknown names fail.
func New(cfg Config, params []*nn.Param) (Optimizer, error) {
	if len(params) == 0 {
		return nil, errors.New("no parameters to optimize")
	}
	switch strings.ToLower(cfg.Name) {
	case "adam":
		c := DefaultAdamConfig()
		if cfg.LearningRate > 0 {
			c.LearningRate = cfg.LearningRate
		}
		c.WeightDecay = cfg.WeightDecay
		return NewAdam(c, params), nil
	case "sgd":
		c := DefaultSGDConfig()
		if cfg.LearningRate > 0 {
			c.LearningRate = cfg.LearningRate
		}
		c.Momentum = cfg.Momentum
		c.WeightDecay = cfg.WeightDecay
		return NewSGD(c, params), nil
	default:
		return nil, errors.Wrapf(ErrUnknownOptimizer, "%q", cfg.Name)
	}
}

func zeroGrad(params []*nn.Param) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
