package dataset

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrExhausted is returned by Next once every batch has been served.
var ErrExhausted = errors.New("loader exhausted")

// Batch is a minibatch of inputs, one row per sample. Targets are only
// present for views whose labels may be read: labeled, validation and test.
type Batch struct {
	// Indices are training positions for the train, labeled and unlabeled
	// views, and source indices otherwise.
	Indices []int
	Inputs  *mat.Dense
	Targets []int
}

func (b Batch) Len() int { return len(b.Indices) }

// Loader serves consecutive batches of a fixed index list. The last batch
// may be short.
type Loader struct {
	src         Source
	sourceIdx   []int
	ids         []int
	batchSize   int
	withTargets bool
	pos         int
}

func newLoader(src Source, sourceIdx, ids []int, batchSize int, withTargets bool) *Loader {
	return &Loader{
		src:         src,
		sourceIdx:   append([]int(nil), sourceIdx...),
		ids:         append([]int(nil), ids...),
		batchSize:   batchSize,
		withTargets: withTargets,
	}
}

// Size is the number of samples the loader covers.
func (l *Loader) Size() int { return len(l.sourceIdx) }

// Len is the number of batches in one pass.
func (l *Loader) Len() int {
	return (len(l.sourceIdx) + l.batchSize - 1) / l.batchSize
}

func (l *Loader) HasNext() bool { return l.pos < len(l.sourceIdx) }

// Reset rewinds the loader for another pass.
func (l *Loader) Reset() { l.pos = 0 }

func (l *Loader) Next() (Batch, error) {
	if !l.HasNext() {
		return Batch{}, ErrExhausted
	}
	end := l.pos + l.batchSize
	if end > len(l.sourceIdx) {
		end = len(l.sourceIdx)
	}
	n := end - l.pos
	inputs := mat.NewDense(n, l.src.Dim(), nil)
	var targets []int
	if l.withTargets {
		targets = make([]int, n)
	}
	for i := 0; i < n; i++ {
		s, err := l.src.Sample(l.sourceIdx[l.pos+i])
		if err != nil {
			return Batch{}, err
		}
		inputs.SetRow(i, s.Input)
		if l.withTargets {
			targets[i] = s.Target
		}
	}
	b := Batch{
		Indices: append([]int(nil), l.ids[l.pos:end]...),
		Inputs:  inputs,
		Targets: targets,
	}
	l.pos = end
	return b, nil
}

// Matrix stacks every remaining sample into one matrix, consuming the
// loader. It returns nil when nothing is left.
func (l *Loader) Matrix() (*mat.Dense, error) {
	rows := len(l.sourceIdx) - l.pos
	if rows <= 0 {
		return nil, nil
	}
	out := mat.NewDense(rows, l.src.Dim(), nil)
	for i := 0; l.HasNext(); {
		b, err := l.Next()
		if err != nil {
			return nil, err
		}
		for r := 0; r < b.Len(); r++ {
			out.SetRow(i, b.Inputs.RawRowView(r))
			i++
		}
	}
	return out, nil
}
