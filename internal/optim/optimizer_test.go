package optim

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"activelearn/internal/nn"
)

func quadraticParam() *nn.Param {
	return &nn.Param{
		Name:  "w",
		Value: mat.NewDense(1, 2, []float64{3, -2}),
		Grad:  mat.NewDense(1, 2, nil),
	}
}

// minimize drives w toward zero on the loss ½‖w‖².
func minimize(t *testing.T, opt Optimizer, p *nn.Param, steps int) {
	t.Helper()
	for i := 0; i < steps; i++ {
		opt.ZeroGrad()
		p.Grad.Add(p.Grad, p.Value)
		opt.Step()
	}
}

func TestOptimizersDecreaseQuadratic(t *testing.T) {
	for _, name := range []string{"adam", "sgd", "ADAM"} {
		t.Run(name, func(t *testing.T) {
			p := quadraticParam()
			before := mat.Norm(p.Value, 2)
			opt, err := New(Config{Name: name, LearningRate: 0.05}, []*nn.Param{p})
			require.NoError(t, err)
			minimize(t, opt, p, 200)
			assert.Less(t, mat.Norm(p.Value, 2), before/10)
			assert.EqualValues(t, 200, opt.StepCount())
		})
	}
}

func TestSGDMomentumStep(t *testing.T) {
	p := quadraticParam()
	opt := NewSGD(SGDConfig{LearningRate: 0.1, Momentum: 0.9}, []*nn.Param{p})
	minimize(t, opt, p, 1)
	assert.InDelta(t, 2.7, p.Value.At(0, 0), 1e-12)
	minimize(t, opt, p, 1)
	// velocity = 0.9*3 + 2.7
	assert.InDelta(t, 2.7-0.1*5.4, p.Value.At(0, 0), 1e-12)
}

func TestNewRejectsUnknownOptimizer(t *testing.T) {
	_, err := New(Config{Name: "rmsprop"}, []*nn.Param{quadraticParam()})
	assert.True(t, errors.Is(err, ErrUnknownOptimizer))

	_, err = New(Config{Name: "adam"}, nil)
	assert.Error(t, err)
}

func TestOptimizersDoNotShareState(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	m, err := nn.NewMLP("shared", 2, []nn.LayerSpec{{Out: 1, Activation: "identity"}}, rng)
	require.NoError(t, err)
	a, err := New(Config{Name: "adam"}, m.Params())
	require.NoError(t, err)
	b, err := New(Config{Name: "adam"}, m.Params())
	require.NoError(t, err)

	a.ZeroGrad()
	a.Step()
	assert.EqualValues(t, 1, a.StepCount())
	assert.EqualValues(t, 0, b.StepCount())
}
