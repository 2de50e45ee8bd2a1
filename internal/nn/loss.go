package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// bceLogFloor mirrors the clamp applied to log terms in binary cross
	// entropy so that saturated predictions give a finite loss.
	bceLogFloor = -100.0
	probEpsilon = 1e-12
)

// BCE is the mean binary cross entropy between probabilities in pred and a
// constant target. It also returns the gradient with respect to pred.
func BCE(pred *mat.Dense, target float64) (float64, *mat.Dense) {
	rows, cols := pred.Dims()
	n := float64(rows * cols)
	grad := mat.NewDense(rows, cols, nil)
	loss := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			p := pred.At(i, j)
			logP := math.Max(math.Log(p), bceLogFloor)
			log1mP := math.Max(math.Log(1-p), bceLogFloor)
			loss -= target*logP + (1-target)*log1mP

			pc := math.Min(math.Max(p, probEpsilon), 1-probEpsilon)
			grad.Set(i, j, (pc-target)/(pc*(1-pc))/n)
		}
	}
	return loss / n, grad
}

// CrossEntropy is the mean negative log likelihood of targets under the
// softmax of logits, with its gradient with respect to logits.
func CrossEntropy(logits *mat.Dense, targets []int) (float64, *mat.Dense) {
	rows, _ := logits.Dims()
	probs := Softmax(logits)
	logProbs := LogSoftmax(logits)
	loss := 0.0
	for i := 0; i < rows; i++ {
		loss -= logProbs.At(i, targets[i])
		probs.Set(i, targets[i], probs.At(i, targets[i])-1)
	}
	probs.Scale(1/float64(rows), probs)
	return loss / float64(rows), probs
}

// MSE is the mean squared error over all elements, with the gradient with
// respect to pred.
func MSE(pred, target *mat.Dense) (float64, *mat.Dense) {
	rows, cols := pred.Dims()
	n := float64(rows * cols)
	var diff mat.Dense
	diff.Sub(pred, target)
	sum := 0.0
	for i := 0; i < rows; i++ {
		for _, v := range diff.RawRowView(i) {
			sum += v * v
		}
	}
	diff.Scale(2/n, &diff)
	return sum / n, &diff
}

// ElementwiseKL sums x·log(x/y) − x + y over the entries of two probability
// vectors, with the conventions 0·log(0/y) = 0 and +Inf when y is zero and x
// is not.
func ElementwiseKL(x, y []float64) float64 {
	total := 0.0
	for i := range x {
		switch {
		case x[i] > 0 && y[i] > 0:
			total += x[i]*math.Log(x[i]/y[i]) - x[i] + y[i]
		case x[i] == 0 && y[i] >= 0:
			total += y[i]
		default:
			return math.Inf(1)
		}
	}
	return total
}
