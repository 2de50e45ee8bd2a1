package sampler

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"activelearn/internal/dataset"
)

func checkBudget(budget, unlabeled int) error {
	if budget < 0 {
		return errors.Wrapf(ErrNegativeBudget, "got %d", budget)
	}
	if budget > unlabeled {
		return errors.Wrapf(ErrBudgetExceedsPool, "budget %d, unlabeled %d", budget, unlabeled)
	}
	return nil
}

// topK returns the positions of the k largest scores, highest first. Equal
// scores keep their input order.
func topK(scores []float64, k int) []int {
	neg := make([]float64, len(scores))
	inds := make([]int, len(scores))
	for i, s := range scores {
		neg[i] = -s
		inds[i] = i
	}
	floats.ArgsortStable(neg, inds)
	return inds[:k]
}

// pick maps positions within a scored batch back to training positions.
func pick(positions, order []int) []int {
	out := make([]int, len(order))
	for i, o := range order {
		out[i] = positions[o]
	}
	return out
}

// split reads the labeled and unlabeled views from one mask snapshot.
func split(p *dataset.Partition, batchSize int) (labeled, unlabeled *dataset.Loader, err error) {
	loaders, err := p.Loaders(batchSize, dataset.ViewLabeled, dataset.ViewUnlabeled)
	if err != nil {
		return nil, nil, err
	}
	return loaders[0], loaders[1], nil
}

// batchFunc is applied to every batch of a loader; its result rows are
// stacked in loader order.
type batchFunc func(x *mat.Dense) (*mat.Dense, error)

// each runs fn over every remaining batch of l and stacks the results. The
// visited positions are returned alongside.
func each(ctx context.Context, l *dataset.Loader, fn batchFunc) (*mat.Dense, []int, error) {
	var (
		rows      [][]float64
		positions []int
		width     int
	)
	for l.HasNext() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		b, err := l.Next()
		if err != nil {
			return nil, nil, err
		}
		out, err := fn(b.Inputs)
		if err != nil {
			return nil, nil, err
		}
		r, c := out.Dims()
		width = c
		for i := 0; i < r; i++ {
			rows = append(rows, out.RawRowView(i))
		}
		positions = append(positions, b.Indices...)
	}
	if len(rows) == 0 {
		return nil, positions, nil
	}
	stacked := mat.NewDense(len(rows), width, nil)
	for i, row := range rows {
		stacked.SetRow(i, row)
	}
	return stacked, positions, nil
}
