package dataset

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrUnknownView     = errors.New("unknown view")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrIndexLabeled    = errors.New("index already labeled")
	ErrDuplicateIndex  = errors.New("duplicate index")
)

// View names a subset of the partition a loader can iterate.
type View string

const (
	ViewTrain      View = "train"
	ViewLabeled    View = "labeled"
	ViewUnlabeled  View = "unlabeled"
	ViewValidation View = "validation"
	ViewTest       View = "test"
	// ViewAll is every pool sample, training and validation alike.
	ViewAll View = "all"
)

func ParseView(name string) (View, error) {
	switch v := View(name); v {
	case ViewTrain, ViewLabeled, ViewUnlabeled, ViewValidation, ViewTest, ViewAll:
		return v, nil
	default:
		return "", errors.Wrapf(ErrUnknownView, "%q", name)
	}
}

type Config struct {
	InitLabeledRatio float64
	ValRatio         float64
	Seed             int64
}

// Partition owns the index universe of one active learning sequence: a pool
// split once into training and validation positions, a separate test
// source, and the labeled mask over the training positions.
//
// Training positions 0..TrainLen()-1 are the index space for the mask,
// for Update and for every index a sampler returns.
type Partition struct {
	pool Source
	test Source

	trainIdx []int
	valIdx   []int

	mu       sync.RWMutex
	labeled  []bool
	nLabeled int
	rng      *rand.Rand
}

// NewPartition splits pool into training and validation by cfg.ValRatio and
// labels int(InitLabeledRatio·|train|) training positions drawn without
// replacement, all from a generator seeded with cfg.Seed.
func NewPartition(pool, test Source, cfg Config) (*Partition, error) {
	if pool == nil || test == nil {
		return nil, errors.New("pool and test sources are required")
	}
	if cfg.ValRatio < 0 || cfg.ValRatio >= 1 {
		return nil, errors.Errorf("validation ratio must be in [0, 1): %f", cfg.ValRatio)
	}
	if cfg.InitLabeledRatio <= 0 || cfg.InitLabeledRatio > 1 {
		return nil, errors.Errorf("initial labeled ratio must be in (0, 1]: %f", cfg.InitLabeledRatio)
	}
	if pool.Dim() != test.Dim() {
		return nil, errors.Errorf("pool and test feature widths differ: %d vs %d", pool.Dim(), test.Dim())
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	perm := rng.Perm(pool.Len())
	nVal := int(cfg.ValRatio * float64(pool.Len()))
	if cfg.ValRatio > 0 && nVal == 0 {
		return nil, errors.Errorf("validation ratio %f leaves no validation samples out of %d", cfg.ValRatio, pool.Len())
	}
	valIdx := append([]int(nil), perm[:nVal]...)
	trainIdx := append([]int(nil), perm[nVal:]...)
	sort.Ints(valIdx)
	sort.Ints(trainIdx)
	if len(trainIdx) == 0 {
		return nil, errors.New("validation split leaves no training samples")
	}

	p := &Partition{
		pool:     pool,
		test:     test,
		trainIdx: trainIdx,
		valIdx:   valIdx,
		labeled:  make([]bool, len(trainIdx)),
		rng:      rng,
	}
	nInit := int(cfg.InitLabeledRatio * float64(len(trainIdx)))
	if nInit == 0 {
		return nil, errors.Errorf("initial labeled ratio %f labels nothing out of %d", cfg.InitLabeledRatio, len(trainIdx))
	}
	for _, pos := range rng.Perm(len(trainIdx))[:nInit] {
		p.labeled[pos] = true
	}
	p.nLabeled = nInit
	return p, nil
}

// TrainLen is |train|, the length of the labeled mask.
func (p *Partition) TrainLen() int { return len(p.trainIdx) }

// BaseLen is the pool size before the validation split.
func (p *Partition) BaseLen() int { return p.pool.Len() }

func (p *Partition) Dim() int { return p.pool.Dim() }

func (p *Partition) Classes() int {
	if c := p.test.Classes(); c > p.pool.Classes() {
		return c
	}
	return p.pool.Classes()
}

// Counts returns the labeled and unlabeled sizes. They always sum to TrainLen.
func (p *Partition) Counts() (labeled, unlabeled int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nLabeled, len(p.labeled) - p.nLabeled
}

func (p *Partition) IsLabeled(pos int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return pos >= 0 && pos < len(p.labeled) && p.labeled[pos]
}

// LabeledIndices returns the labeled training positions in ascending order.
func (p *Partition) LabeledIndices() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positionsLocked(true)
}

// UnlabeledIndices returns the unlabeled training positions in ascending
// order, the same order the unlabeled loader yields them.
func (p *Partition) UnlabeledIndices() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positionsLocked(false)
}

func (p *Partition) positionsLocked(labeled bool) []int {
	out := make([]int, 0, len(p.labeled))
	for pos, l := range p.labeled {
		if l == labeled {
			out = append(out, pos)
		}
	}
	return out
}

// Update marks the given training positions as labeled. Every position is
// validated before any is applied, so a rejected call leaves the mask as it
// was.
func (p *Partition) Update(positions []int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[int]struct{}, len(positions))
	for _, pos := range positions {
		if pos < 0 || pos >= len(p.labeled) {
			return errors.Wrapf(ErrIndexOutOfRange, "position %d of %d", pos, len(p.labeled))
		}
		if p.labeled[pos] {
			return errors.Wrapf(ErrIndexLabeled, "position %d", pos)
		}
		if _, dup := seen[pos]; dup {
			return errors.Wrapf(ErrDuplicateIndex, "position %d", pos)
		}
		seen[pos] = struct{}{}
	}
	for _, pos := range positions {
		p.labeled[pos] = true
	}
	p.nLabeled += len(positions)
	return nil
}

// Loader returns an index-ordered minibatch iterator over view. The
// membership of the view is fixed when the loader is built.
func (p *Partition) Loader(view View, batchSize int) (*Loader, error) {
	loaders, err := p.Loaders(batchSize, view)
	if err != nil {
		return nil, err
	}
	return loaders[0], nil
}

// Loaders builds one loader per view from a single reading of the mask, so
// the labeled and unlabeled views of one call never overlap or miss a
// position even when Update runs concurrently.
func (p *Partition) Loaders(batchSize int, views ...View) ([]*Loader, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be > 0: %d", batchSize)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Loader, 0, len(views))
	for _, view := range views {
		l, err := p.loaderLocked(view, batchSize)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (p *Partition) loaderLocked(view View, batchSize int) (*Loader, error) {
	switch view {
	case ViewTrain:
		return newLoader(p.pool, p.trainIdx, allPositions(len(p.trainIdx)), batchSize, false), nil
	case ViewLabeled:
		pos := p.positionsLocked(true)
		return newLoader(p.pool, p.sourceIndices(pos), pos, batchSize, true), nil
	case ViewUnlabeled:
		pos := p.positionsLocked(false)
		return newLoader(p.pool, p.sourceIndices(pos), pos, batchSize, false), nil
	case ViewValidation:
		return newLoader(p.pool, p.valIdx, p.valIdx, batchSize, true), nil
	case ViewTest:
		idx := allPositions(p.test.Len())
		return newLoader(p.test, idx, idx, batchSize, true), nil
	case ViewAll:
		idx := allPositions(p.pool.Len())
		return newLoader(p.pool, idx, idx, batchSize, false), nil
	default:
		return nil, errors.Wrapf(ErrUnknownView, "%q", view)
	}
}

func (p *Partition) sourceIndices(positions []int) []int {
	out := make([]int, len(positions))
	for i, pos := range positions {
		out[i] = p.trainIdx[pos]
	}
	return out
}

func allPositions(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Schedule returns the per-step tags of one epoch, true meaning the step
// draws a labeled batch. There are TrainLen()/batchSize steps. A uniform
// schedule is an exact half split in random order; otherwise every step is
// labeled with probability equal to the current labeled fraction.
func (p *Partition) Schedule(batchSize int, uniform bool) []bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if batchSize <= 0 {
		return nil
	}
	steps := len(p.labeled) / batchSize
	out := make([]bool, steps)
	if uniform {
		for i := 0; i < steps/2; i++ {
			out[i] = true
		}
		p.rng.Shuffle(steps, func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}
	frac := float64(p.nLabeled) / float64(len(p.labeled))
	for i := range out {
		out[i] = p.rng.Float64() < frac
	}
	return out
}
