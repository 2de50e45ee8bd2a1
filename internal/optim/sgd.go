package optim

import "activelearn/internal/nn"

// SGDConfig holds configuration for plain and momentum SGD.
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
}

func DefaultSGDConfig() SGDConfig {
	return SGDConfig{LearningRate: 0.01}
}

type SGD struct {
	cfg      SGDConfig
	params   []*nn.Param
	velocity [][]float64
	steps    uint64
}

func NewSGD(cfg SGDConfig, params []*nn.Param) *SGD {
	s := &SGD{cfg: cfg, params: params}
	if cfg.Momentum > 0 {
		s.velocity = make([][]float64, len(params))
		for i, p := range params {
			s.velocity[i] = make([]float64, len(p.Value.RawMatrix().Data))
		}
	}
	return s
}

func (s *SGD) Name() string { return "sgd" }

func (s *SGD) StepCount() uint64 { return s.steps }

func (s *SGD) ZeroGrad() { zeroGrad(s.params) }

func (s *SGD) Step() {
	s.steps++
	for i, p := range s.params {
		w := p.Value.RawMatrix().Data
		g := p.Grad.RawMatrix().Data
		for j := range w {
			grad := g[j] + s.cfg.WeightDecay*w[j]
			if s.velocity != nil {
				s.velocity[i][j] = s.cfg.Momentum*s.velocity[i][j] + grad
				grad = s.velocity[i][j]
			}
			w[j] -= s.cfg.LearningRate * grad
		}
	}
}
