package experiment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"activelearn/internal/dataset"
	"activelearn/internal/learner"
	"activelearn/internal/model"
	"activelearn/internal/optim"
	"activelearn/internal/sampler"
	"activelearn/internal/stats"
	"activelearn/internal/storage"
)

const (
	PrefixBestAcc  = "best_acc_"
	PrefixBestLoss = "best_loss_"

	initialBestAcc  = -1.0
	initialBestLoss = 1e10
)

// Report is everything one experiment produced.
type Report struct {
	RunID        string
	ArtifactsDir string
	Epochs       []model.EpochMetrics
	Rounds       []model.RoundResult
}

// Runner drives one active learning experiment: n_runs rounds of training
// on a shared partition, each followed by an acquisition step except the
// last.
type Runner struct {
	cfg       Config
	store     storage.Store
	ownsStore bool
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Runner)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithStore replaces the store named by the configuration. The runner never
// closes a store it was given.
func WithStore(store storage.Store) Option {
	return func(r *Runner) { r.store = store }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func NewRunner(cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{cfg: cfg, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		store, err := openStore(cfg.Store)
		if err != nil {
			return nil, err
		}
		r.store = store
		r.ownsStore = true
	}
	return r, nil
}

func openStore(cfg StoreConfig) (storage.Store, error) {
	store, err := storage.NewStore(cfg.Kind, cfg.Path)
	if err != nil || cfg.CacheSize == 0 || cfg.Kind == "memory" {
		return store, err
	}
	cached, err := storage.NewCachedStore(store, cfg.CacheSize)
	if err != nil {
		storage.CloseIfSupported(store)
		return nil, err
	}
	return cached, nil
}

// Close releases a store the runner opened itself.
func (r *Runner) Close() error {
	if !r.ownsStore {
		return nil
	}
	return storage.CloseIfSupported(r.store)
}

func (r *Runner) Config() Config { return r.cfg }

func (r *Runner) Execute(ctx context.Context) (Report, error) {
	cfg := r.cfg
	started := r.now()
	runID := RunName(started, cfg.ExperimentName, cfg.Seed)
	logger := r.logger.With(zap.String("run_id", runID))
	if cfg.Device != "cpu" {
		logger.Warn("only cpu is supported, ignoring device", zap.String("device", cfg.Device))
	}

	if err := r.store.Init(ctx); err != nil {
		return Report{}, errors.Wrap(err, "init store")
	}
	pool, test, err := BuildSources(cfg.Dataset, cfg.Seed)
	if err != nil {
		return Report{}, err
	}
	part, err := dataset.NewPartition(pool, test, dataset.Config{
		InitLabeledRatio: cfg.Dataset.InitLabeledRatio,
		ValRatio:         cfg.Dataset.ValRatio,
		Seed:             cfg.Seed,
	})
	if err != nil {
		return Report{}, err
	}
	stepAcqSize := int(cfg.UpdateRatio * float64(part.BaseLen()))
	if err := checkPlan(cfg, part, stepAcqSize); err != nil {
		return Report{}, err
	}
	labeled, unlabeled := part.Counts()
	logger.Info("experiment started",
		zap.String("strategy", cfg.Sampler.Name),
		zap.Int("labeled", labeled),
		zap.Int("unlabeled", unlabeled),
		zap.Int("step_acq_size", stepAcqSize),
	)

	report := Report{RunID: runID}
	for round := 0; round < cfg.NRuns; round++ {
		epochs, result, err := r.runRound(ctx, logger, runID, round, part, stepAcqSize)
		report.Epochs = append(report.Epochs, epochs...)
		if err != nil {
			// Keep the records of a failed run, even after cancellation.
			if saveErr := r.saveRecords(context.WithoutCancel(ctx), runID, report); saveErr != nil {
				logger.Warn("saving records of failed run", zap.Error(saveErr))
			}
			return report, errors.Wrapf(err, "run %d", round)
		}
		report.Rounds = append(report.Rounds, result)
	}

	if err := r.saveRecords(ctx, runID, report); err != nil {
		return report, err
	}

	if cfg.ArtifactsDir != "" {
		dir, err := r.writeArtifacts(runID, started, report)
		if err != nil {
			return report, err
		}
		report.ArtifactsDir = dir
	}
	logger.Info("experiment finished", zap.Duration("elapsed", r.now().Sub(started)))
	return report, nil
}

// checkPlan rejects configurations that would only fail at an acquisition
// step, after rounds of training.
func checkPlan(cfg Config, part *dataset.Partition, stepAcqSize int) error {
	_, unlabeled := part.Counts()
	if need := stepAcqSize * (cfg.NRuns - 1); need > unlabeled {
		return errors.Wrapf(sampler.ErrBudgetExceedsPool,
			"%d rounds of %d acquisitions need %d unlabeled samples, have %d", cfg.NRuns-1, stepAcqSize, need, unlabeled)
	}
	if strings.EqualFold(cfg.Sampler.Name, sampler.NameCALPCA) {
		k := cfg.Sampler.NPCAComp
		if k > part.Dim() || k > part.TrainLen() {
			return errors.Errorf("n_pca_comp %d exceeds %d features or %d training samples", k, part.Dim(), part.TrainLen())
		}
	}
	return nil
}

func (r *Runner) saveRecords(ctx context.Context, runID string, report Report) error {
	if err := r.store.SaveEpochMetrics(ctx, runID, report.Epochs); err != nil {
		return errors.Wrap(err, "save epoch metrics")
	}
	if err := r.store.SaveRoundResults(ctx, runID, report.Rounds); err != nil {
		return errors.Wrap(err, "save round results")
	}
	return nil
}

// runRound trains a fresh learner and strategy on the current partition,
// tests it, and acquires new labels unless this is the last round.
func (r *Runner) runRound(ctx context.Context, logger *zap.Logger, runID string, round int, part *dataset.Partition, stepAcqSize int) ([]model.EpochMetrics, model.RoundResult, error) {
	cfg := r.cfg
	scope := fmt.Sprintf("%s/%d", runID, round)
	sink := sinkFrom(ctx)

	lrn, err := r.newLearner(part, round)
	if err != nil {
		return nil, model.RoundResult{}, err
	}
	strat, err := sampler.New(cfg.samplerConfig(round))
	if err != nil {
		return nil, model.RoundResult{}, err
	}

	labeled, unlabeled := part.Counts()
	result := model.RoundResult{
		Round:             round,
		LabeledCount:      labeled,
		UnlabeledCount:    unlabeled,
		BestValidAccuracy: initialBestAcc,
		BestValidLoss:     initialBestLoss,
	}

	var epochs []model.EpochMetrics
	desc := fmt.Sprintf("run %d/%d", round+1, cfg.NRuns)
	err = progressLoop(cfg.NEpochs, desc, cfg.Progress, func(epoch int) error {
		losses, err := trainEpoch(ctx, part, lrn, strat, cfg.BatchSize, cfg.Embedding.TrainVAE)
		if err != nil {
			return errors.Wrapf(err, "train epoch %d", epoch)
		}
		val, err := validate(part, lrn, cfg.BatchSize, cfg.Embedding.TrainVAE)
		if err != nil {
			return errors.Wrapf(err, "validate epoch %d", epoch)
		}
		m := model.EpochMetrics{
			Round:                      round,
			Epoch:                      epoch,
			ClassificationLossTrain:    mean(losses.classification),
			ReconstructionLossTrain:    mean(losses.reconstruction),
			SamplingEmbeddingLossTrain: mean(losses.embedding),
			SamplingSamplerLossTrain:   mean(losses.sampler),
			ClassificationLossVal:      val.classification,
			ReconstructionLossVal:      val.reconstruction,
			ValidAccuracy:              val.accuracy,
			SkippedSteps:               losses.skipped,
		}
		epochs = append(epochs, m)

		if val.accuracy > result.BestValidAccuracy {
			if err := r.saveCheckpoint(ctx, scope, PrefixBestAcc, epoch, lrn); err != nil {
				return err
			}
			result.BestValidAccuracy = val.accuracy
		}
		if val.classification < result.BestValidLoss {
			if err := r.saveCheckpoint(ctx, scope, PrefixBestLoss, epoch, lrn); err != nil {
				return err
			}
			result.BestValidLoss = val.classification
		}

		logger.Info("epoch",
			zap.Int("run_no", round),
			zap.Int("epoch", epoch),
			zap.Float64("classification_loss_train", float64(m.ClassificationLossTrain)),
			zap.Float64("reconstruction_loss_train", float64(m.ReconstructionLossTrain)),
			zap.Float64("sampling_embedding_loss_train", float64(m.SamplingEmbeddingLossTrain)),
			zap.Float64("sampling_sampler_loss_train", float64(m.SamplingSamplerLossTrain)),
			zap.Float64("classification_loss_val", float64(m.ClassificationLossVal)),
			zap.Float64("valid_accuracy", float64(m.ValidAccuracy)),
			zap.Int("skipped_steps", m.SkippedSteps),
		)
		if sink != nil {
			if err := sink.RecordEpoch(ctx, m); err != nil {
				return errors.Wrap(err, "record epoch")
			}
		}
		return nil
	})
	if err != nil {
		return epochs, result, err
	}

	last, err := lrn.Clone()
	if err != nil {
		return epochs, result, err
	}
	if result.TestAccLastEpoch, err = testAccuracy(part, last, cfg.BatchSize); err != nil {
		return epochs, result, err
	}
	if result.TestAccBestAcc, err = r.testCheckpoint(ctx, part, lrn, scope, PrefixBestAcc); err != nil {
		return epochs, result, err
	}
	if result.TestAccBestLoss, err = r.testCheckpoint(ctx, part, lrn, scope, PrefixBestLoss); err != nil {
		return epochs, result, err
	}

	if round < cfg.NRuns-1 {
		picked, err := strat.Sample(ctx, part, stepAcqSize, lrn)
		if err != nil {
			return epochs, result, errors.Wrap(err, "sample")
		}
		if err := part.Update(picked); err != nil {
			return epochs, result, errors.Wrap(err, "update partition")
		}
		result.Acquired = picked
	}

	logger.Info("run finished",
		zap.Int("run_no", round),
		zap.Int("labeled", labeled),
		zap.Float64("test_acc_last_epoch", float64(result.TestAccLastEpoch)),
		zap.Float64("test_acc_best_acc", float64(result.TestAccBestAcc)),
		zap.Float64("test_acc_best_loss", float64(result.TestAccBestLoss)),
		zap.Int("acquired", len(result.Acquired)),
	)
	if sink != nil {
		if err := sink.RecordRound(ctx, result); err != nil {
			return epochs, result, errors.Wrap(err, "record round")
		}
	}
	return epochs, result, nil
}

func (r *Runner) newLearner(part *dataset.Partition, round int) (learner.Learner, error) {
	e := r.cfg.Embedding
	cfg := learner.DefaultVAEConfig(part.Dim(), part.Classes())
	cfg.HiddenDim = e.HiddenDim
	cfg.LatentDim = e.LatentDim
	cfg.KLWeight = e.KLWeight
	cfg.Classifier = r.cfg.Classifier
	cfg.Embedding = optim.Config{Name: e.Optimizer, LearningRate: e.LR}
	cfg.Seed = r.cfg.Seed + int64(round)
	return learner.NewVAE(cfg)
}

func (r *Runner) saveCheckpoint(ctx context.Context, scope, prefix string, epoch int, l learner.Learner) error {
	cp := l.Snapshot()
	cp.Prefix = prefix
	cp.Epoch = epoch
	if err := r.store.SaveCheckpoint(ctx, scope, cp); err != nil {
		return errors.Wrapf(err, "save %s checkpoint", prefix)
	}
	return nil
}

// testCheckpoint evaluates a clone of l carrying the stored parameters, so
// the live learner keeps its last epoch weights.
func (r *Runner) testCheckpoint(ctx context.Context, part *dataset.Partition, l learner.Learner, scope, prefix string) (model.Metric, error) {
	cp, err := storage.LoadCheckpoint(ctx, r.store, scope, prefix)
	if err != nil {
		return 0, err
	}
	c, err := l.Clone()
	if err != nil {
		return 0, err
	}
	if err := c.Restore(cp); err != nil {
		return 0, errors.Wrapf(err, "restore %s", prefix)
	}
	return testAccuracy(part, c, r.cfg.BatchSize)
}

func (r *Runner) writeArtifacts(runID string, started time.Time, report Report) (string, error) {
	cfg := r.cfg
	dir, err := stats.WriteRunArtifacts(cfg.ArtifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:            runID,
			ExperimentName:   cfg.ExperimentName,
			Dataset:          cfg.Dataset.Name,
			Strategy:         cfg.Sampler.Name,
			NeighDist:        cfg.Sampler.NeighDist,
			NRuns:            cfg.NRuns,
			NEpochs:          cfg.NEpochs,
			BatchSize:        cfg.BatchSize,
			Seed:             cfg.Seed,
			UpdateRatio:      cfg.UpdateRatio,
			InitLabeledRatio: cfg.Dataset.InitLabeledRatio,
			ValRatio:         cfg.Dataset.ValRatio,
			TrainVAE:         cfg.Embedding.TrainVAE,
			Store:            cfg.Store.Kind,
			Settings:         cfg,
		},
		Epochs: report.Epochs,
		Rounds: report.Rounds,
	})
	if err != nil {
		return "", errors.Wrap(err, "write artifacts")
	}

	entry := stats.RunIndexEntry{
		RunID:          runID,
		ExperimentName: cfg.ExperimentName,
		Dataset:        cfg.Dataset.Name,
		Strategy:       cfg.Sampler.Name,
		NRuns:          cfg.NRuns,
		Seed:           cfg.Seed,
		CreatedAtUTC:   started.UTC().Format(time.RFC3339),
	}
	if n := len(report.Rounds); n > 0 {
		last := report.Rounds[n-1]
		entry.FinalLabeled = last.LabeledCount
		entry.FinalTestAcc = last.TestAccBestAcc
	}
	if err := stats.AppendRunIndex(cfg.ArtifactsDir, entry); err != nil {
		return "", errors.Wrap(err, "append run index")
	}
	return dir, nil
}
