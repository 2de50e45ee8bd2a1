package optim

import (
	"math"

	"activelearn/internal/nn"
)

// AdamConfig holds configuration for the Adam optimizer.
type AdamConfig struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	WeightDecay  float64
}

// DefaultAdamConfig returns the usual Adam hyperparameters.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

type Adam struct {
	cfg      AdamConfig
	params   []*nn.Param
	momentum [][]float64
	variance [][]float64
	steps    uint64
}

func NewAdam(cfg AdamConfig, params []*nn.Param) *Adam {
	a := &Adam{
		cfg:      cfg,
		params:   params,
		momentum: make([][]float64, len(params)),
		variance: make([][]float64, len(params)),
	}
	for i, p := range params {
		n := len(p.Value.RawMatrix().Data)
		a.momentum[i] = make([]float64, n)
		a.variance[i] = make([]float64, n)
	}
	return a
}

func (a *Adam) Name() string { return "adam" }

func (a *Adam) StepCount() uint64 { return a.steps }

func (a *Adam) ZeroGrad() { zeroGrad(a.params) }

func (a *Adam) Step() {
	a.steps++
	t := float64(a.steps)
	c1 := 1 - math.Pow(a.cfg.Beta1, t)
	c2 := 1 - math.Pow(a.cfg.Beta2, t)
	for i, p := range a.params {
		w := p.Value.RawMatrix().Data
		g := p.Grad.RawMatrix().Data
		m := a.momentum[i]
		v := a.variance[i]
		for j := range w {
			grad := g[j] + a.cfg.WeightDecay*w[j]
			m[j] = a.cfg.Beta1*m[j] + (1-a.cfg.Beta1)*grad
			v[j] = a.cfg.Beta2*v[j] + (1-a.cfg.Beta2)*grad*grad
			w[j] -= a.cfg.LearningRate * (m[j] / c1) / (math.Sqrt(v[j]/c2) + a.cfg.Epsilon)
		}
	}
}
