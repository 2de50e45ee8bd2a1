package dataset

import (
	"math/rand"

	"github.com/pkg/errors"
)

// SyntheticConfig describes an isotropic Gaussian blob dataset: one blob
// per class, centers drawn uniformly from [-Spread, Spread].
type SyntheticConfig struct {
	Samples  int
	Features int
	Classes  int
	Spread   float64
	Noise    float64
	Seed     int64
}

func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Samples:  1000,
		Features: 8,
		Classes:  4,
		Spread:   3,
		Noise:    1,
		Seed:     1,
	}
}

// Synthetic generates a blob dataset. Classes are assigned round robin so
// every class is represented.
func Synthetic(cfg SyntheticConfig) (*MemorySource, error) {
	if cfg.Samples <= 0 || cfg.Features <= 0 || cfg.Classes <= 0 {
		return nil, errors.Errorf("invalid synthetic shape: samples=%d features=%d classes=%d", cfg.Samples, cfg.Features, cfg.Classes)
	}
	if cfg.Samples < cfg.Classes {
		return nil, errors.Errorf("need at least one sample per class: samples=%d classes=%d", cfg.Samples, cfg.Classes)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	centers := make([][]float64, cfg.Classes)
	for c := range centers {
		centers[c] = make([]float64, cfg.Features)
		for j := range centers[c] {
			centers[c][j] = (rng.Float64()*2 - 1) * cfg.Spread
		}
	}

	inputs := make([][]float64, cfg.Samples)
	targets := make([]int, cfg.Samples)
	for i := range inputs {
		class := i % cfg.Classes
		x := make([]float64, cfg.Features)
		for j := range x {
			x[j] = centers[class][j] + rng.NormFloat64()*cfg.Noise
		}
		inputs[i] = x
		targets[i] = class
	}
	return NewMemorySource(inputs, targets)
}

// Split divides src into a pool and a held out test source. The test share
// is drawn uniformly with the given seed.
func Split(src Source, testRatio float64, seed int64) (pool, test *MemorySource, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, errors.Errorf("test ratio must be in (0, 1): %f", testRatio)
	}
	n := src.Len()
	nTest := int(testRatio * float64(n))
	if nTest == 0 || nTest == n {
		return nil, nil, errors.Errorf("test ratio %f leaves an empty split of %d samples", testRatio, n)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	collect := func(idxs []int) (*MemorySource, error) {
		inputs := make([][]float64, 0, len(idxs))
		targets := make([]int, 0, len(idxs))
		for _, idx := range idxs {
			s, err := src.Sample(idx)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, s.Input)
			targets = append(targets, s.Target)
		}
		return NewMemorySource(inputs, targets)
	}
	if test, err = collect(perm[:nTest]); err != nil {
		return nil, nil, err
	}
	if pool, err = collect(perm[nTest:]); err != nil {
		return nil, nil, err
	}
	return pool, test, nil
}
