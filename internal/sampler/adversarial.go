package sampler

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"activelearn/internal/dataset"
	"activelearn/internal/learner"
	"activelearn/internal/nn"
	"activelearn/internal/optim"
)

const (
	defaultDiscriminatorHidden = 512
	defaultSubEpochs           = 1
)

// Adversarial trains a discriminator to tell labeled latent means from
// unlabeled ones, and acquires the samples it is surest are unlabeled.
type Adversarial struct {
	disc      *nn.MLP
	opt       optim.Optimizer
	latentDim int
	subEpochs int
	batchSize int
}

var _ Trainable = (*Adversarial)(nil)

func newAdversarial(cfg Config) (*Adversarial, error) {
	if cfg.LatentDim <= 0 {
		return nil, errors.Errorf("latent_dim must be > 0: %d", cfg.LatentDim)
	}
	hidden := cfg.HiddenDim
	if hidden <= 0 {
		hidden = defaultDiscriminatorHidden
	}
	subEpochs := cfg.NSubEpochs
	if subEpochs <= 0 {
		subEpochs = defaultSubEpochs
	}

	disc, err := NewDiscriminator(cfg.LatentDim, hidden, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		return nil, err
	}
	opt, err := optim.New(optim.Config{Name: cfg.Optimizer, LearningRate: cfg.LR}, disc.Params())
	if err != nil {
		return nil, errors.Wrap(err, "discriminator optimizer")
	}
	return &Adversarial{
		disc:      disc,
		opt:       opt,
		latentDim: cfg.LatentDim,
		subEpochs: subEpochs,
		batchSize: cfg.BatchSize,
	}, nil
}

// NewDiscriminator builds latent → hidden → hidden → 1 with ReLU hidden
// layers and a sigmoid output.
func NewDiscriminator(latentDim, hidden int, rng *rand.Rand) (*nn.MLP, error) {
	return nn.NewMLP("discriminator", latentDim, []nn.LayerSpec{
		{Out: hidden, Activation: "relu"},
		{Out: hidden, Activation: "relu"},
		{Out: 1, Activation: "sigmoid"},
	}, rng)
}

func (a *Adversarial) Name() string    { return NameVAAL }
func (a *Adversarial) Trainable() bool { return true }
func (a *Adversarial) SubEpochs() int  { return a.subEpochs }

// Optimizer exposes the discriminator's own optimizer.
func (a *Adversarial) Optimizer() optim.Optimizer { return a.opt }

func (a *Adversarial) Predict(labeledMu, unlabeledMu *mat.Dense) Prediction {
	return Prediction{
		Labeled:   a.disc.Predict(labeledMu),
		Unlabeled: a.disc.Predict(unlabeledMu),
	}
}

// SamplerLoss is BCE(labeled, 1) + BCE(unlabeled, 0).
func (a *Adversarial) SamplerLoss(pred Prediction) float64 {
	l, _ := nn.BCE(pred.Labeled, 1)
	u, _ := nn.BCE(pred.Unlabeled, 0)
	return l + u
}

// ModelLoss is BCE(labeled, 1) + BCE(unlabeled, 1).
func (a *Adversarial) ModelLoss(pred Prediction) float64 {
	l, _ := nn.BCE(pred.Labeled, 1)
	u, _ := nn.BCE(pred.Unlabeled, 1)
	return l + u
}

// TrainStep takes one discriminator step on the sampler loss.
func (a *Adversarial) TrainStep(labeledMu, unlabeledMu *mat.Dense) float64 {
	a.opt.ZeroGrad()
	outL, traceL := a.disc.Forward(labeledMu)
	outU, traceU := a.disc.Forward(unlabeledMu)
	lossL, gradL := nn.BCE(outL, 1)
	lossU, gradU := nn.BCE(outU, 0)
	a.disc.Backward(traceL, gradL)
	a.disc.Backward(traceU, gradU)
	a.opt.Step()
	return lossL + lossU
}

// ModelLossGrad returns the model loss and its gradient with respect to
// both latent batches. Discriminator gradients are left as they were.
func (a *Adversarial) ModelLossGrad(labeledMu, unlabeledMu *mat.Dense) (float64, *mat.Dense, *mat.Dense) {
	outL, traceL := a.disc.Forward(labeledMu)
	outU, traceU := a.disc.Forward(unlabeledMu)
	lossL, gradL := nn.BCE(outL, 1)
	lossU, gradU := nn.BCE(outU, 1)
	return lossL + lossU, a.disc.InputGradient(traceL, gradL), a.disc.InputGradient(traceU, gradU)
}

func (a *Adversarial) Sample(ctx context.Context, p *dataset.Partition, budget int, l learner.Learner) ([]int, error) {
	if l.LatentDim() != a.latentDim {
		return nil, errors.Errorf("learner latent dim %d, discriminator expects %d", l.LatentDim(), a.latentDim)
	}
	unlLoader, err := p.Loader(dataset.ViewUnlabeled, a.batchSize)
	if err != nil {
		return nil, err
	}
	if err := checkBudget(budget, unlLoader.Size()); err != nil {
		return nil, err
	}
	if budget == 0 {
		return []int{}, nil
	}

	preds, positions, err := each(ctx, unlLoader, func(x *mat.Dense) (*mat.Dense, error) {
		return a.disc.Predict(l.LatentParam(x).Mu), nil
	})
	if err != nil {
		return nil, err
	}
	rows, _ := preds.Dims()
	scores := make([]float64, rows)
	for i := range scores {
		scores[i] = -preds.At(i, 0)
	}
	return pick(positions, topK(scores, budget)), nil
}
