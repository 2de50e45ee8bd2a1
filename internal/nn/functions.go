package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Softmax maps every row of logits to a probability vector.
func Softmax(logits *mat.Dense) *mat.Dense {
	rows, cols := logits.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		softmaxRow(out.RawRowView(i), logits.RawRowView(i))
	}
	return out
}

func softmaxRow(dst, src []float64) {
	maxV := floats.Max(src)
	for j, v := range src {
		dst[j] = math.Exp(v - maxV)
	}
	floats.Scale(1/floats.Sum(dst), dst)
}

// LogSoftmax is the numerically stable log of Softmax.
func LogSoftmax(logits *mat.Dense) *mat.Dense {
	rows, cols := logits.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		src := logits.RawRowView(i)
		lse := floats.LogSumExp(src)
		dst := out.RawRowView(i)
		for j, v := range src {
			dst[j] = v - lse
		}
	}
	return out
}

// NormalizeL1 divides each row by its L1 norm. Zero rows are left as is.
func NormalizeL1(m *mat.Dense) {
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		norm := floats.Norm(row, 1)
		if norm > 0 {
			floats.Scale(1/norm, row)
		}
	}
}

// Argmax returns the index of the largest entry of every row.
func Argmax(m *mat.Dense) []int {
	rows, _ := m.Dims()
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		out[i] = floats.MaxIdx(m.RawRowView(i))
	}
	return out
}

// RowSlices copies the rows of m into plain slices.
func RowSlices(m *mat.Dense) [][]float64 {
	rows, _ := m.Dims()
	out := make([][]float64, rows)
	for i := range out {
		out[i] = append([]float64(nil), m.RawRowView(i)...)
	}
	return out
}

// ColumnSlice returns a copy of columns [from, to) of m.
func ColumnSlice(m *mat.Dense, from, to int) *mat.Dense {
	rows, _ := m.Dims()
	return mat.DenseCopyOf(m.Slice(0, rows, from, to))
}
