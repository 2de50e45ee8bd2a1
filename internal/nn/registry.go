package nn

import (
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrActivationExists   = errors.New("activation already registered")
	ErrActivationNotFound = errors.New("activation not found")
)

type ActivationFunc func(x float64) float64

// Activation pairs a pointwise function with its derivative evaluated at the
// pre-activation value.
type Activation struct {
	Name       string
	Func       ActivationFunc
	Derivative ActivationFunc
}

var activationRegistry = struct {
	mu sync.RWMutex
	m  map[string]Activation
}{
	m: make(map[string]Activation),
}

func init() {
	initializeBuiltInActivations()
}

func initializeBuiltInActivations() {
	MustRegisterActivation("identity",
		func(x float64) float64 { return x },
		func(float64) float64 { return 1 })
	MustRegisterActivation("relu",
		func(x float64) float64 {
			if x < 0 {
				return 0
			}
			return x
		},
		func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		})
	MustRegisterActivation("tanh", math.Tanh, func(x float64) float64 {
		y := math.Tanh(x)
		return 1 - y*y
	})
	MustRegisterActivation("sigmoid", Sigmoid, func(x float64) float64 {
		s := Sigmoid(x)
		return s * (1 - s)
	})
}

func RegisterActivation(name string, fn, deriv ActivationFunc) error {
	switch {
	case name == "":
		return errors.New("activation name is required")
	case fn == nil:
		return errors.New("activation function is required")
	case deriv == nil:
		return errors.New("activation derivative is required")
	}

	activationRegistry.mu.Lock()
	defer activationRegistry.mu.Unlock()

	if _, exists := activationRegistry.m[name]; exists {
		return errors.Wrap(ErrActivationExists, name)
	}
	activationRegistry.m[name] = Activation{Name: name, Func: fn, Derivative: deriv}
	return nil
}

func MustRegisterActivation(name string, fn, deriv ActivationFunc) {
	if err := RegisterActivation(name, fn, deriv); err != nil {
		panic(err)
	}
}

func GetActivation(name string) (Activation, error) {
	activationRegistry.mu.RLock()
	act, ok := activationRegistry.m[name]
	activationRegistry.mu.RUnlock()
	if !ok {
		return Activation{}, errors.Wrap(ErrActivationNotFound, name)
	}
	return act, nil
}

func ListActivations() []string {
	activationRegistry.mu.RLock()
	defer activationRegistry.mu.RUnlock()

	names := make([]string, 0, len(activationRegistry.m))
	for name := range activationRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func resetActivationRegistryForTests() {
	activationRegistry.mu.Lock()
	activationRegistry.m = make(map[string]Activation)
	activationRegistry.mu.Unlock()
	initializeBuiltInActivations()
}
