package dataset

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

const (
	ScaleNone   = "none"
	ScaleMax    = "max"
	ScaleZScore = "zscore"
	ScaleAsinh  = "asinh"
	ScaleBinary = "binary"
)

// ColumnStats summarizes one input column.
type ColumnStats struct {
	Min    float64 `json:"min"`
	Mean   float64 `json:"mean"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stddev"`
}

func InputColumnStats(src Source) ([]ColumnStats, error) {
	n, dim := src.Len(), src.Dim()
	if n == 0 {
		return nil, errors.New("source has no samples")
	}
	cols := make([][]float64, dim)
	for j := range cols {
		cols[j] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		s, err := src.Sample(i)
		if err != nil {
			return nil, err
		}
		for j, v := range s.Input {
			cols[j][i] = v
		}
	}

	out := make([]ColumnStats, dim)
	for j, col := range cols {
		mean, std := stat.MeanStdDev(col, nil)
		lo, hi := col[0], col[0]
		for _, v := range col[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if n == 1 {
			std = 0
		}
		out[j] = ColumnStats{Min: lo, Mean: mean, Max: hi, StdDev: std}
	}
	return out, nil
}

// Scale returns a copy of src with every input rescaled. Column statistics
// are passed in so that a test set can be scaled with those of the pool.
// A zero max or zero deviation maps the column to zero.
func Scale(src Source, mode string, stats []ColumnStats) (*MemorySource, error) {
	mode = strings.ToLower(mode)
	var f func(j int, v float64) float64
	switch mode {
	case "", ScaleNone:
		f = func(_ int, v float64) float64 { return v }
	case ScaleMax:
		f = func(j int, v float64) float64 {
			if stats[j].Max == 0 {
				return 0
			}
			return v / stats[j].Max
		}
	case ScaleZScore:
		f = func(j int, v float64) float64 {
			if stats[j].StdDev == 0 {
				return 0
			}
			return (v - stats[j].Mean) / stats[j].StdDev
		}
	case ScaleAsinh:
		f = func(_ int, v float64) float64 { return math.Asinh(v) }
	case ScaleBinary:
		f = func(_ int, v float64) float64 {
			if v == 0 {
				return 0
			}
			return 1
		}
	default:
		return nil, errors.Errorf("unknown scale mode: %q", mode)
	}
	if (mode == ScaleMax || mode == ScaleZScore) && len(stats) != src.Dim() {
		return nil, errors.Errorf("have stats for %d columns, source has %d", len(stats), src.Dim())
	}

	inputs := make([][]float64, src.Len())
	targets := make([]int, src.Len())
	for i := range inputs {
		s, err := src.Sample(i)
		if err != nil {
			return nil, err
		}
		x := make([]float64, len(s.Input))
		for j, v := range s.Input {
			x[j] = f(j, v)
		}
		inputs[i] = x
		targets[i] = s.Target
	}
	return NewMemorySource(inputs, targets)
}
