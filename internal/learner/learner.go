package learner

import (
	"gonum.org/v1/gonum/mat"

	"activelearn/internal/model"
)

// Latent holds the Gaussian posterior parameters of a batch, one row per
// sample.
type Latent struct {
	Mu     *mat.Dense
	LogVar *mat.Dense
}

// ReconLoss is the reconstruction objective split into its two terms.
type ReconLoss struct {
	Total          float64
	Reconstruction float64
	KL             float64
}

// Critic judges latent means of labeled and unlabeled batches. The
// adversarial embedding step minimizes the returned loss through the
// encoder; the critic's own parameters are never touched by it.
type Critic interface {
	ModelLossGrad(labeledMu, unlabeledMu *mat.Dense) (loss float64, labeledGrad, unlabeledGrad *mat.Dense)
}

// Learner is the model trained by the active learning loop. Every Train*
// call takes exactly one step of one optimizer: TrainClassifier steps the
// classifier optimizer, TrainEmbedding and TrainAdversarial step the
// embedding optimizer.
type Learner interface {
	LatentDim() int
	Classify(x *mat.Dense) *mat.Dense
	LatentParam(x *mat.Dense) Latent
	Reconstruct(x *mat.Dense) (*mat.Dense, Latent)
	CLoss(logits *mat.Dense, targets []int) float64
	RLoss(recon, input *mat.Dense, latent Latent) ReconLoss

	TrainClassifier(x *mat.Dense, targets []int) float64
	TrainEmbedding(x *mat.Dense) ReconLoss
	TrainAdversarial(labeled, unlabeled *mat.Dense, critic Critic) float64

	Snapshot() model.Checkpoint
	Restore(cp model.Checkpoint) error
	Clone() (Learner, error)
}
