package learner

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"activelearn/internal/model"
	"activelearn/internal/nn"
	"activelearn/internal/optim"
)

const (
	checkpointSchemaVersion = 1
	checkpointCodecVersion  = 1
)

type VAEConfig struct {
	InputDim  int
	Classes   int
	HiddenDim int
	LatentDim int
	// KLWeight scales the KL term of the reconstruction loss.
	KLWeight   float64
	Classifier optim.Config
	Embedding  optim.Config
	Seed       int64
}

func DefaultVAEConfig(inputDim, classes int) VAEConfig {
	return VAEConfig{
		InputDim:   inputDim,
		Classes:    classes,
		HiddenDim:  64,
		LatentDim:  8,
		KLWeight:   0.1,
		Classifier: optim.Config{Name: "adam", LearningRate: 0.001},
		Embedding:  optim.Config{Name: "adam", LearningRate: 0.001},
		Seed:       1,
	}
}

// VAE is a Gaussian variational autoencoder with a classifier head on the
// posterior mean. The encoder emits μ and log σ² side by side.
type VAE struct {
	cfg        VAEConfig
	encoder    *nn.MLP
	decoder    *nn.MLP
	classifier *nn.MLP
	clsOpt     optim.Optimizer
	embOpt     optim.Optimizer
	rng        *rand.Rand
}

var _ Learner = (*VAE)(nil)

func NewVAE(cfg VAEConfig) (*VAE, error) {
	if cfg.InputDim <= 0 || cfg.Classes <= 0 || cfg.HiddenDim <= 0 || cfg.LatentDim <= 0 {
		return nil, errors.Errorf("invalid vae shape: input=%d classes=%d hidden=%d latent=%d",
			cfg.InputDim, cfg.Classes, cfg.HiddenDim, cfg.LatentDim)
	}
	if cfg.KLWeight < 0 {
		return nil, errors.Errorf("kl weight must be >= 0: %f", cfg.KLWeight)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	encoder, err := nn.NewMLP("encoder", cfg.InputDim, []nn.LayerSpec{
		{Out: cfg.HiddenDim, Activation: "relu"},
		{Out: 2 * cfg.LatentDim, Activation: "identity"},
	}, rng)
	if err != nil {
		return nil, err
	}
	decoder, err := nn.NewMLP("decoder", cfg.LatentDim, []nn.LayerSpec{
		{Out: cfg.HiddenDim, Activation: "relu"},
		{Out: cfg.InputDim, Activation: "identity"},
	}, rng)
	if err != nil {
		return nil, err
	}
	classifier, err := nn.NewMLP("classifier", cfg.LatentDim, []nn.LayerSpec{
		{Out: cfg.Classes, Activation: "identity"},
	}, rng)
	if err != nil {
		return nil, err
	}

	clsOpt, err := optim.New(cfg.Classifier, append(encoder.Params(), classifier.Params()...))
	if err != nil {
		return nil, errors.Wrap(err, "classifier optimizer")
	}
	embOpt, err := optim.New(cfg.Embedding, append(encoder.Params(), decoder.Params()...))
	if err != nil {
		return nil, errors.Wrap(err, "embedding optimizer")
	}

	return &VAE{
		cfg:        cfg,
		encoder:    encoder,
		decoder:    decoder,
		classifier: classifier,
		clsOpt:     clsOpt,
		embOpt:     embOpt,
		rng:        rng,
	}, nil
}

func (v *VAE) Config() VAEConfig { return v.cfg }

func (v *VAE) LatentDim() int { return v.cfg.LatentDim }

func (v *VAE) encode(x *mat.Dense) (Latent, *nn.Trace) {
	out, trace := v.encoder.Forward(x)
	d := v.cfg.LatentDim
	return Latent{
		Mu:     nn.ColumnSlice(out, 0, d),
		LogVar: nn.ColumnSlice(out, d, 2*d),
	}, trace
}

func (v *VAE) LatentParam(x *mat.Dense) Latent {
	lat, _ := v.encode(x)
	return lat
}

// Classify returns class logits computed from the posterior mean.
func (v *VAE) Classify(x *mat.Dense) *mat.Dense {
	lat, _ := v.encode(x)
	return v.classifier.Predict(lat.Mu)
}

// Reconstruct decodes the posterior mean, so it is deterministic.
func (v *VAE) Reconstruct(x *mat.Dense) (*mat.Dense, Latent) {
	lat, _ := v.encode(x)
	return v.decoder.Predict(lat.Mu), lat
}

func (v *VAE) CLoss(logits *mat.Dense, targets []int) float64 {
	loss, _ := nn.CrossEntropy(logits, targets)
	return loss
}

func (v *VAE) RLoss(recon, input *mat.Dense, latent Latent) ReconLoss {
	mse, _ := nn.MSE(recon, input)
	kl := gaussianKL(latent)
	return ReconLoss{Total: mse + v.cfg.KLWeight*kl, Reconstruction: mse, KL: kl}
}

// gaussianKL is KL(N(μ, σ²) ‖ N(0, 1)) averaged over every latent entry.
func gaussianKL(latent Latent) float64 {
	rows, cols := latent.Mu.Dims()
	total := 0.0
	for i := 0; i < rows; i++ {
		mu := latent.Mu.RawRowView(i)
		lv := latent.LogVar.RawRowView(i)
		for j := range mu {
			total += -0.5 * (1 + lv[j] - mu[j]*mu[j] - math.Exp(lv[j]))
		}
	}
	return total / float64(rows*cols)
}

func (v *VAE) zeroGrad() {
	v.encoder.ZeroGrad()
	v.decoder.ZeroGrad()
	v.classifier.ZeroGrad()
}

// joinGrad lays out μ and log σ² gradients the way the encoder emits them.
func joinGrad(gradMu, gradLogVar *mat.Dense) *mat.Dense {
	rows, d := gradMu.Dims()
	out := mat.NewDense(rows, 2*d, nil)
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		copy(row[:d], gradMu.RawRowView(i))
		if gradLogVar != nil {
			copy(row[d:], gradLogVar.RawRowView(i))
		}
	}
	return out
}

func (v *VAE) TrainClassifier(x *mat.Dense, targets []int) float64 {
	v.zeroGrad()
	lat, encTrace := v.encode(x)
	logits, clsTrace := v.classifier.Forward(lat.Mu)
	loss, grad := nn.CrossEntropy(logits, targets)
	gradMu := v.classifier.Backward(clsTrace, grad)
	v.encoder.Backward(encTrace, joinGrad(gradMu, nil))
	v.clsOpt.Step()
	return loss
}

// TrainEmbedding takes one embedding step on the reconstruction loss of a
// reparameterized sample z = μ + σ·ε.
func (v *VAE) TrainEmbedding(x *mat.Dense) ReconLoss {
	v.zeroGrad()
	lat, encTrace := v.encode(x)
	rows, d := lat.Mu.Dims()

	eps := mat.NewDense(rows, d, nil)
	z := mat.NewDense(rows, d, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < d; j++ {
			e := v.rng.NormFloat64()
			eps.Set(i, j, e)
			z.Set(i, j, lat.Mu.At(i, j)+math.Exp(0.5*lat.LogVar.At(i, j))*e)
		}
	}

	recon, decTrace := v.decoder.Forward(z)
	mse, gradRecon := nn.MSE(recon, x)
	kl := gaussianKL(lat)
	gradZ := v.decoder.Backward(decTrace, gradRecon)

	n := float64(rows * d)
	gradMu := mat.NewDense(rows, d, nil)
	gradLogVar := mat.NewDense(rows, d, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < d; j++ {
			mu, lv, gz := lat.Mu.At(i, j), lat.LogVar.At(i, j), gradZ.At(i, j)
			sigma := math.Exp(0.5 * lv)
			gradMu.Set(i, j, gz+v.cfg.KLWeight*mu/n)
			gradLogVar.Set(i, j, gz*eps.At(i, j)*0.5*sigma+v.cfg.KLWeight*0.5*(math.Exp(lv)-1)/n)
		}
	}
	v.encoder.Backward(encTrace, joinGrad(gradMu, gradLogVar))
	v.embOpt.Step()
	return ReconLoss{Total: mse + v.cfg.KLWeight*kl, Reconstruction: mse, KL: kl}
}

// TrainAdversarial moves the encoder so that the critic's model loss over
// both latent batches drops.
func (v *VAE) TrainAdversarial(labeled, unlabeled *mat.Dense, critic Critic) float64 {
	v.zeroGrad()
	latL, traceL := v.encode(labeled)
	latU, traceU := v.encode(unlabeled)
	loss, gradL, gradU := critic.ModelLossGrad(latL.Mu, latU.Mu)
	v.encoder.Backward(traceL, joinGrad(gradL, nil))
	v.encoder.Backward(traceU, joinGrad(gradU, nil))
	v.embOpt.Step()
	return loss
}

func (v *VAE) params() []*nn.Param {
	params := append([]*nn.Param{}, v.encoder.Params()...)
	params = append(params, v.decoder.Params()...)
	return append(params, v.classifier.Params()...)
}

func (v *VAE) Snapshot() model.Checkpoint {
	return model.Checkpoint{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: checkpointSchemaVersion,
			CodecVersion:  checkpointCodecVersion,
		},
		Tensors: nn.Tensors(v.params()),
	}
}

func (v *VAE) Restore(cp model.Checkpoint) error {
	if cp.SchemaVersion != checkpointSchemaVersion {
		return errors.Errorf("checkpoint schema version %d, want %d", cp.SchemaVersion, checkpointSchemaVersion)
	}
	return nn.LoadTensors(v.params(), cp.Tensors)
}

// Clone returns an independent copy with the same weights and fresh
// optimizer state.
func (v *VAE) Clone() (Learner, error) {
	c, err := NewVAE(v.cfg)
	if err != nil {
		return nil, errors.Wrap(err, "clone")
	}
	if err := c.Restore(v.Snapshot()); err != nil {
		return nil, errors.Wrap(err, "clone")
	}
	return c, nil
}
