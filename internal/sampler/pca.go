package sampler

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"activelearn/internal/dataset"
)

// Projection maps inputs onto the leading principal components of the data
// it was fitted on, centering by that data's column means first.
type Projection struct {
	mean  []float64
	basis *mat.Dense
}

// FitProjection fits k components over the rows of x.
func FitProjection(x *mat.Dense, k int) (*Projection, error) {
	rows, cols := x.Dims()
	if rows < 2 {
		return nil, errors.Errorf("pca needs at least two samples, got %d", rows)
	}
	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, errors.New("pca decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, avail := vecs.Dims()
	if k > avail {
		return nil, errors.Errorf("n_pca_comp %d exceeds the %d available components", k, avail)
	}

	mean := make([]float64, cols)
	for i := 0; i < rows; i++ {
		floats.Add(mean, x.RawRowView(i))
	}
	floats.Scale(1/float64(rows), mean)

	return &Projection{
		mean:  mean,
		basis: mat.DenseCopyOf(vecs.Slice(0, cols, 0, k)),
	}, nil
}

func (p *Projection) Transform(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	centered := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		floats.SubTo(centered.RawRowView(i), x.RawRowView(i), p.mean)
	}
	var out mat.Dense
	out.Mul(centered, p.basis)
	return &out
}

// fitPCA fits a projection over every pool sample regardless of its label.
func fitPCA(p *dataset.Partition, k, batchSize int) (*Projection, error) {
	all, err := p.Loader(dataset.ViewAll, batchSize)
	if err != nil {
		return nil, err
	}
	x, err := all.Matrix()
	if err != nil {
		return nil, err
	}
	if x == nil {
		return nil, errors.New("pca over an empty pool")
	}
	return FitProjection(x, k)
}
