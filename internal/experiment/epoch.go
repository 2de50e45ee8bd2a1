package experiment

import (
	"context"
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"
	"gonum.org/v1/gonum/mat"

	"activelearn/internal/dataset"
	"activelearn/internal/learner"
	"activelearn/internal/model"
	"activelearn/internal/nn"
	"activelearn/internal/sampler"
)

// trainLosses collects the per-step losses of one training epoch.
type trainLosses struct {
	classification []float64
	reconstruction []float64
	embedding      []float64
	sampler        []float64
	skipped        int
}

type validation struct {
	classification model.Metric
	reconstruction model.Metric
	accuracy       model.Metric
}

// trainEpoch runs one pass of the labeled/unlabeled schedule and then the
// discriminator sub-epochs of a trainable strategy.
func trainEpoch(ctx context.Context, p *dataset.Partition, l learner.Learner, s sampler.Strategy, batchSize int, trainVAE bool) (trainLosses, error) {
	var out trainLosses

	loaders, err := p.Loaders(batchSize, dataset.ViewLabeled, dataset.ViewUnlabeled, dataset.ViewTrain)
	if err != nil {
		return out, err
	}
	labeled, unlabeled, train := loaders[0], loaders[1], loaders[2]
	critic, adversarial := s.(sampler.Trainable)

	for _, isLabeled := range p.Schedule(batchSize, false) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if isLabeled {
			if !labeled.HasNext() {
				out.skipped++
				continue
			}
			b, err := labeled.Next()
			if err != nil {
				return out, err
			}
			out.classification = append(out.classification, l.TrainClassifier(b.Inputs, b.Targets))

			if trainVAE && adversarial {
				if !unlabeled.HasNext() {
					out.skipped++
					continue
				}
				u, err := unlabeled.Next()
				if err != nil {
					return out, err
				}
				out.embedding = append(out.embedding, l.TrainAdversarial(b.Inputs, u.Inputs, critic))
			}
			continue
		}

		if !trainVAE {
			continue
		}
		if !train.HasNext() {
			out.skipped++
			continue
		}
		b, err := train.Next()
		if err != nil {
			return out, err
		}
		out.reconstruction = append(out.reconstruction, l.TrainEmbedding(b.Inputs).Total)
	}

	if adversarial {
		losses, err := trainDiscriminator(ctx, p, l, critic, batchSize)
		if err != nil {
			return out, err
		}
		out.sampler = losses
	}
	return out, nil
}

// trainDiscriminator steps only the strategy's optimizer, pairing labeled
// and unlabeled batches until the shorter loader runs out.
func trainDiscriminator(ctx context.Context, p *dataset.Partition, l learner.Learner, t sampler.Trainable, batchSize int) ([]float64, error) {
	loaders, err := p.Loaders(batchSize, dataset.ViewLabeled, dataset.ViewUnlabeled)
	if err != nil {
		return nil, err
	}
	labeled, unlabeled := loaders[0], loaders[1]

	var losses []float64
	for sub := 0; sub < t.SubEpochs(); sub++ {
		labeled.Reset()
		unlabeled.Reset()
		for labeled.HasNext() && unlabeled.HasNext() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			lb, err := labeled.Next()
			if err != nil {
				return nil, err
			}
			ub, err := unlabeled.Next()
			if err != nil {
				return nil, err
			}
			losses = append(losses, t.TrainStep(l.LatentParam(lb.Inputs).Mu, l.LatentParam(ub.Inputs).Mu))
		}
	}
	return losses, nil
}

// validate scores the learner on the validation view. Accuracy is a
// percentage.
func validate(p *dataset.Partition, l learner.Learner, batchSize int, trainVAE bool) (validation, error) {
	loader, err := p.Loader(dataset.ViewValidation, batchSize)
	if err != nil {
		return validation{}, err
	}
	var cls, rec []float64
	correct, total := 0, 0
	for loader.HasNext() {
		b, err := loader.Next()
		if err != nil {
			return validation{}, err
		}
		logits := l.Classify(b.Inputs)
		cls = append(cls, l.CLoss(logits, b.Targets))
		correct += countCorrect(logits, b.Targets)
		total += b.Len()

		if trainVAE {
			recon, latent := l.Reconstruct(b.Inputs)
			rec = append(rec, l.RLoss(recon, b.Inputs, latent).Total)
		}
	}
	return validation{
		classification: mean(cls),
		reconstruction: mean(rec),
		accuracy:       percent(correct, total),
	}, nil
}

// testAccuracy is the test set accuracy in percent.
func testAccuracy(p *dataset.Partition, l learner.Learner, batchSize int) (model.Metric, error) {
	loader, err := p.Loader(dataset.ViewTest, batchSize)
	if err != nil {
		return 0, err
	}
	correct, total := 0, 0
	for loader.HasNext() {
		b, err := loader.Next()
		if err != nil {
			return 0, err
		}
		correct += countCorrect(l.Classify(b.Inputs), b.Targets)
		total += b.Len()
	}
	return percent(correct, total), nil
}

func countCorrect(logits *mat.Dense, targets []int) int {
	n := 0
	for i, pred := range nn.Argmax(logits) {
		if pred == targets[i] {
			n++
		}
	}
	return n
}

func percent(correct, total int) model.Metric {
	if total == 0 {
		return model.Metric(math.NaN())
	}
	return model.Metric(100 * float64(correct) / float64(total))
}

// mean is NaN for an empty list.
func mean(xs []float64) model.Metric {
	m, err := stats.Mean(xs)
	if err != nil {
		return model.Metric(math.NaN())
	}
	return model.Metric(m)
}

// progressLoop calls fn for 0..n-1, behind a tqdm bar when show is set. The
// first error stops the loop.
func progressLoop(n int, desc string, show bool, fn func(i int) error) error {
	if !show {
		for i := 0; i < n; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}
	var loopErr error
	err := tqdm.With(iterators.Interval(0, n), desc, func(v interface{}) (brk bool) {
		if loopErr == nil {
			loopErr = fn(v.(int))
		}
		return loopErr != nil
	})
	if loopErr != nil {
		return loopErr
	}
	return errors.Wrap(err, "progress")
}
