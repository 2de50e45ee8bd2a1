package dataset

import (
	"github.com/pkg/errors"
)

// Sample is one flat input vector with its integer class.
type Sample struct {
	Input  []float64
	Target int
}

// Source is random access over a fixed collection of samples.
type Source interface {
	Len() int
	Dim() int
	Classes() int
	Sample(idx int) (Sample, error)
}

// MemorySource keeps every sample in memory.
type MemorySource struct {
	inputs  [][]float64
	targets []int
	dim     int
	classes int
}

// NewMemorySource validates that all inputs share one width and that
// targets are non-negative.
func NewMemorySource(inputs [][]float64, targets []int) (*MemorySource, error) {
	if len(inputs) == 0 {
		return nil, errors.New("source has no samples")
	}
	if len(inputs) != len(targets) {
		return nil, errors.Errorf("inputs and targets differ in length: %d vs %d", len(inputs), len(targets))
	}
	dim := len(inputs[0])
	if dim == 0 {
		return nil, errors.New("samples have no features")
	}
	classes := 0
	for i, x := range inputs {
		if len(x) != dim {
			return nil, errors.Errorf("sample %d has %d features, want %d", i, len(x), dim)
		}
		if targets[i] < 0 {
			return nil, errors.Errorf("sample %d has negative target %d", i, targets[i])
		}
		if targets[i]+1 > classes {
			classes = targets[i] + 1
		}
	}
	return &MemorySource{inputs: inputs, targets: targets, dim: dim, classes: classes}, nil
}

func (s *MemorySource) Len() int     { return len(s.inputs) }
func (s *MemorySource) Dim() int     { return s.dim }
func (s *MemorySource) Classes() int { return s.classes }

func (s *MemorySource) Sample(idx int) (Sample, error) {
	if idx < 0 || idx >= len(s.inputs) {
		return Sample{}, errors.Wrapf(ErrIndexOutOfRange, "sample %d of %d", idx, len(s.inputs))
	}
	return Sample{Input: s.inputs[idx], Target: s.targets[idx]}, nil
}
