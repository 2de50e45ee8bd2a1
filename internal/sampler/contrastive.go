package sampler

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"activelearn/internal/dataset"
	"activelearn/internal/learner"
	"activelearn/internal/nn"
)

// Contrastive scores every unlabeled sample by how much its class
// probabilities disagree with those of its nearest labeled neighbors, and
// takes the most contradictory ones.
type Contrastive struct {
	name      string
	nNeighs   int
	batchSize int
	dist      DistanceFunc
	// pcaComp is zero when the learner's latent parameters are the
	// embedding.
	pcaComp int
}

func newContrastive(cfg Config) (*Contrastive, error) {
	if cfg.NNeighs <= 0 {
		return nil, errors.Errorf("n_neighs must be > 0: %d", cfg.NNeighs)
	}
	name := cfg.NeighDist
	if name == "" {
		name = defaultDist
	}
	dist, err := NeighborDistance(name)
	if err != nil {
		return nil, err
	}
	return &Contrastive{name: NameCAL, nNeighs: cfg.NNeighs, batchSize: cfg.BatchSize, dist: dist}, nil
}

// newContrastivePCA embeds samples by a PCA projection of their inputs and
// always compares them with squared Euclidean distance.
func newContrastivePCA(cfg Config) (*Contrastive, error) {
	if cfg.NNeighs <= 0 {
		return nil, errors.Errorf("n_neighs must be > 0: %d", cfg.NNeighs)
	}
	if cfg.NPCAComp <= 0 {
		return nil, errors.Errorf("n_pca_comp must be > 0: %d", cfg.NPCAComp)
	}
	dist, _ := NeighborDistance(DistL2)
	return &Contrastive{
		name:      NameCALPCA,
		nNeighs:   cfg.NNeighs,
		batchSize: cfg.BatchSize,
		dist:      dist,
		pcaComp:   cfg.NPCAComp,
	}, nil
}

func (c *Contrastive) Name() string    { return c.name }
func (c *Contrastive) Trainable() bool { return false }

func (c *Contrastive) Sample(ctx context.Context, p *dataset.Partition, budget int, l learner.Learner) ([]int, error) {
	var embed func(x *mat.Dense) (mu, logVar *mat.Dense)
	if c.pcaComp > 0 {
		proj, err := fitPCA(p, c.pcaComp, c.batchSize)
		if err != nil {
			return nil, err
		}
		embed = func(x *mat.Dense) (*mat.Dense, *mat.Dense) { return proj.Transform(x), nil }
	} else {
		embed = func(x *mat.Dense) (*mat.Dense, *mat.Dense) {
			lat := l.LatentParam(x)
			return lat.Mu, lat.LogVar
		}
	}

	labLoader, unlLoader, err := split(p, c.batchSize)
	if err != nil {
		return nil, err
	}
	if err := checkBudget(budget, unlLoader.Size()); err != nil {
		return nil, err
	}
	if budget == 0 {
		return []int{}, nil
	}
	if labLoader.Size() == 0 {
		return nil, errors.New("contrastive sampling needs at least one labeled sample")
	}

	var embDim int
	fn := func(x *mat.Dense) (*mat.Dense, error) {
		mu, logVar := embed(x)
		_, embDim = mu.Dims()
		probs := nn.Softmax(l.Classify(x))
		nn.NormalizeL1(probs)
		if logVar == nil {
			return hstack(mu, probs), nil
		}
		return hstack(mu, logVar, probs), nil
	}
	lab, _, err := each(ctx, labLoader, fn)
	if err != nil {
		return nil, err
	}
	unl, positions, err := each(ctx, unlLoader, fn)
	if err != nil {
		return nil, err
	}

	scores := ContrastiveScores(c.split(unl, embDim), c.split(lab, embDim), c.nNeighs, c.dist)
	return pick(positions, topK(scores, budget)), nil
}

// Embedded is a set of samples with their embedding and class
// probabilities. LogVar is nil for embeddings without a variance.
type Embedded struct {
	Mu     *mat.Dense
	LogVar *mat.Dense
	Probs  *mat.Dense
}

func (c *Contrastive) split(m *mat.Dense, embDim int) Embedded {
	_, cols := m.Dims()
	if c.pcaComp > 0 {
		return Embedded{
			Mu:    nn.ColumnSlice(m, 0, embDim),
			Probs: nn.ColumnSlice(m, embDim, cols),
		}
	}
	return Embedded{
		Mu:     nn.ColumnSlice(m, 0, embDim),
		LogVar: nn.ColumnSlice(m, embDim, 2*embDim),
		Probs:  nn.ColumnSlice(m, 2*embDim, cols),
	}
}

// ContrastiveScores returns, for every query, the mean over its k nearest
// references of Σ_c kl_div(p_ref_c, p_query_c), with kl_div(x, y) =
// x·log(x/y) − x + y.
func ContrastiveScores(query, ref Embedded, k int, dist DistanceFunc) []float64 {
	nq, _ := query.Mu.Dims()
	nr, _ := ref.Mu.Dims()
	if k > nr {
		k = nr
	}
	row := func(m *mat.Dense, i int) []float64 {
		if m == nil {
			return nil
		}
		return m.RawRowView(i)
	}

	scores := make([]float64, nq)
	dists := make([]float64, nr)
	order := make([]int, nr)
	for i := 0; i < nq; i++ {
		qMu, qLv := row(query.Mu, i), row(query.LogVar, i)
		for j := 0; j < nr; j++ {
			dists[j] = dist(qMu, qLv, row(ref.Mu, j), row(ref.LogVar, j))
			order[j] = j
		}
		floats.ArgsortStable(dists, order)

		qProbs := query.Probs.RawRowView(i)
		total := 0.0
		for _, j := range order[:k] {
			total += nn.ElementwiseKL(ref.Probs.RawRowView(j), qProbs)
		}
		scores[i] = total / float64(k)
	}
	return scores
}

func hstack(ms ...*mat.Dense) *mat.Dense {
	rows, _ := ms[0].Dims()
	width := 0
	for _, m := range ms {
		_, c := m.Dims()
		width += c
	}
	out := mat.NewDense(rows, width, nil)
	for i := 0; i < rows; i++ {
		dst := out.RawRowView(i)
		off := 0
		for _, m := range ms {
			off += copy(dst[off:], m.RawRowView(i))
		}
	}
	return out
}
