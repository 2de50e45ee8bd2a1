package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMLPBackwardMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m, err := NewMLP("probe", 3, []LayerSpec{{Out: 4, Activation: "tanh"}, {Out: 1, Activation: "sigmoid"}}, rng)
	require.NoError(t, err)

	x := mat.NewDense(2, 3, []float64{0.2, -0.4, 0.9, 1.1, 0.3, -0.7})
	lossAt := func() float64 {
		loss, _ := BCE(m.Predict(x), 1)
		return loss
	}

	out, trace := m.Forward(x)
	_, grad := BCE(out, 1)
	m.ZeroGrad()
	m.Backward(trace, grad)

	const h = 1e-6
	w := m.Layers[0].Weight
	for _, idx := range [][2]int{{0, 0}, {2, 1}, {3, 2}} {
		orig := w.Value.At(idx[0], idx[1])
		w.Value.Set(idx[0], idx[1], orig+h)
		up := lossAt()
		w.Value.Set(idx[0], idx[1], orig-h)
		down := lossAt()
		w.Value.Set(idx[0], idx[1], orig)
		assert.InDelta(t, (up-down)/(2*h), w.Grad.At(idx[0], idx[1]), 1e-6)
	}
}

func TestInputGradientLeavesParamsUntouched(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	m, err := NewMLP("critic", 2, []LayerSpec{{Out: 3, Activation: "relu"}, {Out: 1, Activation: "sigmoid"}}, rng)
	require.NoError(t, err)

	x := mat.NewDense(1, 2, []float64{0.5, -0.25})
	out, trace := m.Forward(x)
	_, grad := BCE(out, 0)
	gin := m.InputGradient(trace, grad)

	r, c := gin.Dims()
	assert.Equal(t, 1, r)
	assert.Equal(t, 2, c)
	for _, p := range m.Params() {
		assert.Zero(t, mat.Norm(p.Grad, 1), p.Name)
	}
}

func TestTensorsRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a, err := NewMLP("net", 2, []LayerSpec{{Out: 2, Activation: "identity"}}, rng)
	require.NoError(t, err)
	b, err := NewMLP("net", 2, []LayerSpec{{Out: 2, Activation: "identity"}}, rng)
	require.NoError(t, err)

	require.NoError(t, LoadTensors(b.Params(), Tensors(a.Params())))
	assert.True(t, mat.Equal(a.Layers[0].Weight.Value, b.Layers[0].Weight.Value))

	bad := Tensors(a.Params())
	bad[0].Shape = []int{3, 3}
	assert.Error(t, LoadTensors(b.Params(), bad))
}

func TestCrossEntropyGradientSumsToZero(t *testing.T) {
	logits := mat.NewDense(2, 3, []float64{1, 2, 3, 0.5, 0.5, -1})
	loss, grad := CrossEntropy(logits, []int{2, 0})
	assert.Greater(t, loss, 0.0)
	for i := 0; i < 2; i++ {
		sum := 0.0
		for _, v := range grad.RawRowView(i) {
			sum += v
		}
		assert.InDelta(t, 0, sum, 1e-12)
	}
}

func TestBCESaturatedPredictionIsFinite(t *testing.T) {
	loss, grad := BCE(mat.NewDense(1, 2, []float64{1, 0}), 0)
	assert.InDelta(t, 50, loss, 1e-9)
	assert.False(t, math.IsNaN(grad.At(0, 0)))
}

func TestElementwiseKL(t *testing.T) {
	p := []float64{0.25, 0.75}
	assert.Zero(t, ElementwiseKL(p, p))
	assert.Greater(t, ElementwiseKL(p, []float64{0.5, 0.5}), 0.0)
	assert.True(t, math.IsInf(ElementwiseKL([]float64{1, 0}, []float64{0, 1}), 1))
}

func TestSoftmaxRowsNormalized(t *testing.T) {
	probs := Softmax(mat.NewDense(2, 3, []float64{1000, 1001, 999, -3, 0, 3}))
	for i := 0; i < 2; i++ {
		sum := 0.0
		for _, v := range probs.RawRowView(i) {
			sum += v
		}
		assert.InDelta(t, 1, sum, 1e-12)
	}
	assert.Equal(t, []int{1, 2}, Argmax(probs))
}
