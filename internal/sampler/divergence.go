package sampler

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

const (
	DistL2      = "l2"
	DistKL      = "kldiv"
	DistSymKL   = "sym_kldiv"
	defaultDist = DistL2
)

// GaussianKL is the divergence between two diagonal Gaussians given as
// (μ, log σ²) pairs:
//
//	½·Σ[ exp(−lv_q)·(exp(lv_p) + (μ_q − μ_p)²) − 1 + lv_q − lv_p ]
//
// In neighbor search p is the unlabeled query and q the labeled candidate.
func GaussianKL(muP, logVarP, muQ, logVarQ []float64) float64 {
	total := 0.0
	for i := range muP {
		d := muQ[i] - muP[i]
		total += math.Exp(-logVarQ[i])*(math.Exp(logVarP[i])+d*d) - 1 + logVarQ[i] - logVarP[i]
	}
	return 0.5 * total
}

// SymmetricGaussianKL is GaussianKL(p, q) − GaussianKL(q, p). It is a signed
// difference, so swapping the arguments flips its sign.
func SymmetricGaussianKL(muP, logVarP, muQ, logVarQ []float64) float64 {
	return GaussianKL(muP, logVarP, muQ, logVarQ) - GaussianKL(muQ, logVarQ, muP, logVarP)
}

// SquaredL2 is the squared Euclidean distance.
func SquaredL2(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

// DistanceFunc compares an unlabeled query with a labeled candidate. Log
// variances are nil for embeddings that have none.
type DistanceFunc func(queryMu, queryLogVar, candMu, candLogVar []float64) float64

// NeighborDistance resolves a neigh_dist option.
func NeighborDistance(name string) (DistanceFunc, error) {
	switch strings.ToLower(name) {
	case DistL2:
		return func(qMu, _, cMu, _ []float64) float64 { return SquaredL2(qMu, cMu) }, nil
	case DistKL:
		return GaussianKL, nil
	case DistSymKL:
		return SymmetricGaussianKL, nil
	default:
		return nil, errors.Wrapf(ErrUnknownNeighDist, "%q", name)
	}
}
