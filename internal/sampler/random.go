package sampler

import (
	"context"
	"math/rand"

	"activelearn/internal/dataset"
	"activelearn/internal/learner"
)

// Random draws uniformly without replacement from the unlabeled set.
type Random struct {
	rng *rand.Rand
}

func newRandom(cfg Config) *Random {
	return &Random{rng: rand.New(rand.NewSource(cfg.Seed))}
}

func (r *Random) Name() string    { return NameRandom }
func (r *Random) Trainable() bool { return false }

func (r *Random) Sample(_ context.Context, p *dataset.Partition, budget int, _ learner.Learner) ([]int, error) {
	unlabeled := p.UnlabeledIndices()
	if err := checkBudget(budget, len(unlabeled)); err != nil {
		return nil, err
	}
	return pick(unlabeled, r.rng.Perm(len(unlabeled))[:budget]), nil
}
