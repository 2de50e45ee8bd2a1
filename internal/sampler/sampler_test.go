package sampler

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"activelearn/internal/dataset"
	"activelearn/internal/learner"
	"activelearn/internal/model"
	"activelearn/internal/optim"
)

// identityLearner uses the raw input as both latent mean and class logits.
type identityLearner struct {
	dim int
}

func (s identityLearner) LatentDim() int { return s.dim }

func (s identityLearner) Classify(x *mat.Dense) *mat.Dense { return mat.DenseCopyOf(x) }

func (s identityLearner) LatentParam(x *mat.Dense) learner.Latent {
	r, c := x.Dims()
	return learner.Latent{Mu: mat.DenseCopyOf(x), LogVar: mat.NewDense(r, c, nil)}
}

func (s identityLearner) Reconstruct(x *mat.Dense) (*mat.Dense, learner.Latent) {
	return mat.DenseCopyOf(x), s.LatentParam(x)
}

func (s identityLearner) CLoss(*mat.Dense, []int) float64 { return 0 }

func (s identityLearner) RLoss(*mat.Dense, *mat.Dense, learner.Latent) learner.ReconLoss {
	return learner.ReconLoss{}
}

func (s identityLearner) TrainClassifier(*mat.Dense, []int) float64 { return 0 }

func (s identityLearner) TrainEmbedding(*mat.Dense) learner.ReconLoss { return learner.ReconLoss{} }

func (s identityLearner) TrainAdversarial(*mat.Dense, *mat.Dense, learner.Critic) float64 { return 0 }

func (s identityLearner) Snapshot() model.Checkpoint { return model.Checkpoint{} }

func (s identityLearner) Restore(model.Checkpoint) error { return nil }

func (s identityLearner) Clone() (learner.Learner, error) { return s, nil }

func testPartition(t *testing.T, samples int) *dataset.Partition {
	t.Helper()
	cfg := dataset.DefaultSyntheticConfig()
	cfg.Samples = samples
	cfg.Features = 3
	cfg.Classes = 3
	src, err := dataset.Synthetic(cfg)
	require.NoError(t, err)
	pool, test, err := dataset.Split(src, 0.2, 2)
	require.NoError(t, err)
	p, err := dataset.NewPartition(pool, test, dataset.Config{InitLabeledRatio: 0.2, ValRatio: 0.1, Seed: 9})
	require.NoError(t, err)
	return p
}

func assertValidSelection(t *testing.T, p *dataset.Partition, got []int, budget int) {
	t.Helper()
	require.Len(t, got, budget)
	seen := map[int]bool{}
	for _, pos := range got {
		assert.False(t, seen[pos], "duplicate %d", pos)
		seen[pos] = true
		assert.False(t, p.IsLabeled(pos), "position %d already labeled", pos)
	}
}

func allConfigs() []Config {
	return []Config{
		{Name: NameRandom, Seed: 3},
		{Name: NameCAL, NNeighs: 3, NeighDist: DistL2, BatchSize: 7},
		{Name: NameCAL, NNeighs: 3, NeighDist: DistKL, BatchSize: 7},
		{Name: NameCAL, NNeighs: 3, NeighDist: DistSymKL, BatchSize: 7},
		{Name: NameCALPCA, NNeighs: 5, NPCAComp: 2, BatchSize: 7},
		{Name: NameVAAL, LatentDim: 3, HiddenDim: 16, Optimizer: "adam", LR: 0.001, BatchSize: 7, Seed: 3},
	}
}

func TestEveryStrategyReturnsBudgetUnlabeledPositions(t *testing.T) {
	for _, cfg := range allConfigs() {
		p := testPartition(t, 200)
		s, err := New(cfg)
		require.NoError(t, err, cfg.Name)

		got, err := s.Sample(context.Background(), p, 12, identityLearner{dim: 3})
		require.NoError(t, err, cfg.Name)
		assertValidSelection(t, p, got, 12)
		require.NoError(t, p.Update(got), cfg.Name)

		none, err := s.Sample(context.Background(), p, 0, identityLearner{dim: 3})
		require.NoError(t, err, cfg.Name)
		assert.Empty(t, none, cfg.Name)
	}
}

func TestBudgetLargerThanPoolFails(t *testing.T) {
	for _, cfg := range allConfigs() {
		p := testPartition(t, 50)
		_, unlabeled := p.Counts()
		s, err := New(cfg)
		require.NoError(t, err)

		_, err = s.Sample(context.Background(), p, unlabeled+1, identityLearner{dim: 3})
		assert.True(t, errors.Is(err, ErrBudgetExceedsPool), "%s: %v", cfg.Name, err)

		_, err = s.Sample(context.Background(), p, -1, identityLearner{dim: 3})
		assert.True(t, errors.Is(err, ErrNegativeBudget), "%s: %v", cfg.Name, err)

		all, err := s.Sample(context.Background(), p, unlabeled, identityLearner{dim: 3})
		require.NoError(t, err, cfg.Name)
		sorted := append([]int(nil), all...)
		sort.Ints(sorted)
		assert.Equal(t, p.UnlabeledIndices(), sorted, cfg.Name)
	}
}

func TestRandomIsReproducible(t *testing.T) {
	p := testPartition(t, 100)
	a, err := New(Config{Name: NameRandom, Seed: 42})
	require.NoError(t, err)
	b, err := New(Config{Name: NameRandom, Seed: 42})
	require.NoError(t, err)

	x, err := a.Sample(context.Background(), p, 10, nil)
	require.NoError(t, err)
	y, err := b.Sample(context.Background(), p, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, x, y)
}

func TestNewRejectsUnknownOptions(t *testing.T) {
	_, err := New(Config{Name: "entropy"})
	assert.True(t, errors.Is(err, ErrUnknownStrategy))

	_, err = New(Config{Name: NameCAL, NNeighs: 3, NeighDist: "cosine"})
	assert.True(t, errors.Is(err, ErrUnknownNeighDist))

	_, err = New(Config{Name: NameCAL, NeighDist: DistL2})
	assert.Error(t, err)

	_, err = New(Config{Name: NameCALPCA, NNeighs: 3})
	assert.Error(t, err)

	_, err = New(Config{Name: NameVAAL, LatentDim: 4, Optimizer: "rmsprop"})
	assert.True(t, errors.Is(err, optim.ErrUnknownOptimizer))
}

func TestContrastiveScoreZeroForMatchingNeighbor(t *testing.T) {
	ref := Embedded{
		Mu:    mat.NewDense(2, 2, []float64{0, 0, 10, 10}),
		Probs: mat.NewDense(2, 2, []float64{0.9, 0.1, 0.5, 0.5}),
	}
	query := Embedded{
		Mu:    mat.NewDense(3, 2, []float64{1, 1, 0.5, 0.5, -1, 0}),
		Probs: mat.NewDense(3, 2, []float64{0.9, 0.1, 0.6, 0.4, 0.2, 0.8}),
	}
	dist, err := NeighborDistance(DistL2)
	require.NoError(t, err)

	scores := ContrastiveScores(query, ref, 1, dist)
	require.Len(t, scores, 3)
	assert.InDelta(t, 0, scores[0], 1e-12)
	assert.Greater(t, scores[1], scores[0])
	assert.Greater(t, scores[2], scores[0])
	assert.Equal(t, []int{2, 1}, topK(scores, 2))
}

func TestContrastiveScoreAveragesOverNeighbors(t *testing.T) {
	ref := Embedded{
		Mu:    mat.NewDense(3, 1, []float64{0, 1, 100}),
		Probs: mat.NewDense(3, 2, []float64{0.5, 0.5, 0.25, 0.75, 0.99, 0.01}),
	}
	query := Embedded{
		Mu:    mat.NewDense(1, 1, []float64{0.4}),
		Probs: mat.NewDense(1, 2, []float64{0.5, 0.5}),
	}
	dist, _ := NeighborDistance(DistL2)
	got := ContrastiveScores(query, ref, 2, dist)

	want := (0 + 0.25*math.Log(0.25/0.5) - 0.25 + 0.5 + 0.75*math.Log(0.75/0.5) - 0.75 + 0.5) / 2
	assert.InDelta(t, want, got[0], 1e-12)

	// More neighbors than references uses all of them.
	all := ContrastiveScores(query, ref, 10, dist)
	assert.Greater(t, all[0], got[0])
}

func TestGaussianDivergences(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	vec := func() []float64 {
		v := make([]float64, 4)
		for i := range v {
			v[i] = rng.NormFloat64()
		}
		return v
	}
	for i := 0; i < 20; i++ {
		muP, lvP, muQ, lvQ := vec(), vec(), vec(), vec()
		assert.InDelta(t, 0, GaussianKL(muP, lvP, muP, lvP), 1e-12)
		assert.GreaterOrEqual(t, GaussianKL(muP, lvP, muQ, lvQ), 0.0)
		assert.InDelta(t,
			-SymmetricGaussianKL(muQ, lvQ, muP, lvP),
			SymmetricGaussianKL(muP, lvP, muQ, lvQ), 1e-9)
	}

	// Unit variances reduce the divergence to half the squared distance.
	zero := []float64{0, 0}
	assert.InDelta(t, 0.5*SquaredL2([]float64{1, 2}, zero), GaussianKL([]float64{1, 2}, zero, zero, zero), 1e-12)
	assert.Equal(t, 25.0, SquaredL2([]float64{3, 4}, zero))
}

func TestTopKIsStableDescending(t *testing.T) {
	assert.Equal(t, []int{1, 2}, topK([]float64{-0.9, -0.1, -0.5}, 2))
	assert.Equal(t, []int{0, 1}, topK([]float64{1, 1, 1}, 2))
	assert.Equal(t, []int{3, 0, 1}, topK([]float64{2, 2, 0, 5}, 3))
	assert.Empty(t, topK([]float64{1, 2}, 0))
}

func TestPCAProjectionCentersAndReduces(t *testing.T) {
	x := mat.NewDense(4, 3, []float64{
		1, 0, 5,
		-1, 0, 5,
		2, 0.1, 5,
		-2, -0.1, 5,
	})
	proj, err := FitProjection(x, 1)
	require.NoError(t, err)
	out := proj.Transform(x)
	r, c := out.Dims()
	assert.Equal(t, []int{4, 1}, []int{r, c})

	sum := 0.0
	for i := 0; i < r; i++ {
		sum += out.At(i, 0)
	}
	assert.InDelta(t, 0, sum, 1e-9)
	assert.InDelta(t, math.Abs(out.At(2, 0)), math.Abs(out.At(3, 0)), 1e-9)

	_, err = FitProjection(x, 4)
	assert.Error(t, err)
}
