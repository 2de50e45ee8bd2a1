package sampler

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"activelearn/internal/dataset"
	"activelearn/internal/learner"
)

var (
	ErrUnknownStrategy   = errors.New("unknown sampling strategy")
	ErrUnknownNeighDist  = errors.New("unknown neighbor distance")
	ErrBudgetExceedsPool = errors.New("budget exceeds unlabeled pool")
	ErrNegativeBudget    = errors.New("budget must be >= 0")
)

const (
	NameRandom = "random"
	NameCAL    = "cal"
	NameCALPCA = "cal_pca"
	NameVAAL   = "vaal"
)

// Names lists every strategy New accepts.
func Names() []string {
	return []string{NameRandom, NameCAL, NameCALPCA, NameVAAL}
}

// Config carries the options of every strategy; each strategy reads only
// its own fields.
type Config struct {
	Name       string  `yaml:"name" json:"name"`
	NNeighs    int     `yaml:"n_neighs,omitempty" json:"n_neighs,omitempty"`
	NeighDist  string  `yaml:"neigh_dist,omitempty" json:"neigh_dist,omitempty"`
	NPCAComp   int     `yaml:"n_pca_comp,omitempty" json:"n_pca_comp,omitempty"`
	NSubEpochs int     `yaml:"n_sub_epochs,omitempty" json:"n_sub_epochs,omitempty"`
	Optimizer  string  `yaml:"optimizer,omitempty" json:"optimizer,omitempty"`
	LR         float64 `yaml:"lr,omitempty" json:"lr,omitempty"`
	LatentDim  int     `yaml:"latent_dim,omitempty" json:"latent_dim,omitempty"`
	HiddenDim  int     `yaml:"hidden_dim,omitempty" json:"hidden_dim,omitempty"`

	// BatchSize and Seed come from the run, not the strategy section.
	BatchSize int   `yaml:"-" json:"-"`
	Seed      int64 `yaml:"-" json:"-"`
}

// Strategy picks which unlabeled training positions to label next.
//
// Sample returns exactly budget distinct positions, all unlabeled when the
// call started. It fails with ErrBudgetExceedsPool when budget is larger
// than the unlabeled set.
type Strategy interface {
	Name() string
	Trainable() bool
	Sample(ctx context.Context, p *dataset.Partition, budget int, l learner.Learner) ([]int, error)
}

// Prediction is one discriminator pass over a labeled and an unlabeled
// latent batch.
type Prediction struct {
	Labeled   *mat.Dense
	Unlabeled *mat.Dense
}

// Trainable is a strategy with its own model and optimizer. TrainStep only
// ever steps that optimizer; the learner.Critic side only yields gradients
// for the learner's embedding step.
type Trainable interface {
	Strategy
	learner.Critic
	SubEpochs() int
	Predict(labeledMu, unlabeledMu *mat.Dense) Prediction
	SamplerLoss(pred Prediction) float64
	ModelLoss(pred Prediction) float64
	TrainStep(labeledMu, unlabeledMu *mat.Dense) float64
}

// New builds the configured strategy. Every option is checked here so that a
// bad configuration fails before any training starts.
func New(cfg Config) (Strategy, error) {
	cfg = withDefaults(cfg)
	switch strings.ToLower(cfg.Name) {
	case NameRandom:
		return newRandom(cfg), nil
	case NameCAL:
		return newContrastive(cfg)
	case NameCALPCA:
		return newContrastivePCA(cfg)
	case NameVAAL:
		return newAdversarial(cfg)
	default:
		return nil, errors.Wrapf(ErrUnknownStrategy, "%q", cfg.Name)
	}
}

func withDefaults(cfg Config) Config {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return cfg
}
