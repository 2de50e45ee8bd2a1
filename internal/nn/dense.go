package nn

import (
	"math"
	"math/rand"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"activelearn/internal/model"
)

// Param is a trainable matrix with its accumulated gradient.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(rows, cols, nil),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() {
	p.Grad.Zero()
}

// Dense is a fully connected layer y = act(x·Wᵀ + b) over row batches.
type Dense struct {
	Weight *Param
	Bias   *Param
	act    Activation
}

// NewDense creates a layer with Kaiming-uniform weights and zero bias.
func NewDense(name string, in, out int, activation string, rng *rand.Rand) (*Dense, error) {
	if in <= 0 || out <= 0 {
		return nil, errors.Errorf("layer %s: invalid shape %dx%d", name, in, out)
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	act, err := GetActivation(activation)
	if err != nil {
		return nil, errors.Wrapf(err, "layer %s", name)
	}
	d := &Dense{
		Weight: newParam(name+".weight", out, in),
		Bias:   newParam(name+".bias", 1, out),
		act:    act,
	}
	bound := math.Sqrt(6.0 / float64(in))
	raw := d.Weight.Value.RawMatrix().Data
	for i := range raw {
		raw[i] = (rng.Float64()*2 - 1) * bound
	}
	return d, nil
}

type denseCache struct {
	input *mat.Dense
	pre   *mat.Dense
}

func (d *Dense) forward(x *mat.Dense) (*mat.Dense, denseCache) {
	var pre mat.Dense
	pre.Mul(x, d.Weight.Value.T())
	rows, _ := pre.Dims()
	bias := d.Bias.Value.RawRowView(0)
	for i := 0; i < rows; i++ {
		floats.Add(pre.RawRowView(i), bias)
	}
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return d.act.Func(v) }, &pre)
	return &out, denseCache{input: x, pre: &pre}
}

// backward returns the gradient with respect to the layer input. Parameter
// gradients are accumulated only when accumulate is set.
func (d *Dense) backward(c denseCache, gradOut *mat.Dense, accumulate bool) *mat.Dense {
	var delta mat.Dense
	delta.Apply(func(i, j int, v float64) float64 {
		return v * d.act.Derivative(c.pre.At(i, j))
	}, gradOut)

	if accumulate {
		var gw mat.Dense
		gw.Mul(delta.T(), c.input)
		d.Weight.Grad.Add(d.Weight.Grad, &gw)
		rows, _ := delta.Dims()
		gb := d.Bias.Grad.RawRowView(0)
		for i := 0; i < rows; i++ {
			floats.Add(gb, delta.RawRowView(i))
		}
	}

	var gradIn mat.Dense
	gradIn.Mul(&delta, d.Weight.Value)
	return &gradIn
}

// MLP is a stack of dense layers.
type MLP struct {
	Name   string
	Layers []*Dense
}

// LayerSpec describes one layer of an MLP.
type LayerSpec struct {
	Out        int
	Activation string
}

// NewMLP builds an MLP whose first layer consumes in features.
func NewMLP(name string, in int, specs []LayerSpec, rng *rand.Rand) (*MLP, error) {
	if len(specs) == 0 {
		return nil, errors.Errorf("mlp %s: no layers", name)
	}
	m := &MLP{Name: name}
	width := in
	for i, spec := range specs {
		layer, err := NewDense(layerName(name, i), width, spec.Out, spec.Activation, rng)
		if err != nil {
			return nil, err
		}
		m.Layers = append(m.Layers, layer)
		width = spec.Out
	}
	return m, nil
}

func layerName(name string, i int) string {
	return name + "." + strconv.Itoa(i)
}

// Trace keeps the activations of one forward pass for the backward pass.
type Trace struct {
	caches []denseCache
}

func (m *MLP) Forward(x *mat.Dense) (*mat.Dense, *Trace) {
	trace := &Trace{caches: make([]denseCache, 0, len(m.Layers))}
	out := x
	for _, layer := range m.Layers {
		var c denseCache
		out, c = layer.forward(out)
		trace.caches = append(trace.caches, c)
	}
	return out, trace
}

// Predict runs a forward pass without keeping a trace.
func (m *MLP) Predict(x *mat.Dense) *mat.Dense {
	out, _ := m.Forward(x)
	return out
}

// Backward accumulates parameter gradients and returns the input gradient.
func (m *MLP) Backward(trace *Trace, gradOut *mat.Dense) *mat.Dense {
	return m.backward(trace, gradOut, true)
}

// InputGradient returns the gradient with respect to the input while leaving
// parameter gradients untouched.
func (m *MLP) InputGradient(trace *Trace, gradOut *mat.Dense) *mat.Dense {
	return m.backward(trace, gradOut, false)
}

func (m *MLP) backward(trace *Trace, gradOut *mat.Dense, accumulate bool) *mat.Dense {
	grad := gradOut
	for i := len(m.Layers) - 1; i >= 0; i-- {
		grad = m.Layers[i].backward(trace.caches[i], grad, accumulate)
	}
	return grad
}

func (m *MLP) Params() []*Param {
	params := make([]*Param, 0, 2*len(m.Layers))
	for _, layer := range m.Layers {
		params = append(params, layer.Weight, layer.Bias)
	}
	return params
}

func (m *MLP) ZeroGrad() {
	for _, p := range m.Params() {
		p.ZeroGrad()
	}
}

// Tensors exports the parameters in layer order.
func Tensors(params []*Param) []model.Tensor {
	out := make([]model.Tensor, 0, len(params))
	for _, p := range params {
		r, c := p.Value.Dims()
		out = append(out, model.Tensor{
			Name:  p.Name,
			Shape: []int{r, c},
			Data:  append([]float64(nil), p.Value.RawMatrix().Data...),
		})
	}
	return out
}

// LoadTensors copies tensors into params by name. Every param must be
// present with a matching shape.
func LoadTensors(params []*Param, tensors []model.Tensor) error {
	byName := make(map[string]model.Tensor, len(tensors))
	for _, t := range tensors {
		byName[t.Name] = t
	}
	for _, p := range params {
		t, ok := byName[p.Name]
		if !ok {
			return errors.Errorf("tensor %s missing from checkpoint", p.Name)
		}
		r, c := p.Value.Dims()
		if len(t.Shape) != 2 || t.Shape[0] != r || t.Shape[1] != c || len(t.Data) != r*c {
			return errors.Errorf("tensor %s: shape %v does not match %dx%d", p.Name, t.Shape, r, c)
		}
		copy(p.Value.RawMatrix().Data, t.Data)
	}
	return nil
}
