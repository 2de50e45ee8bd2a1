package storage

import (
	"context"

	"github.com/pkg/errors"

	"activelearn/internal/model"
)

// ErrCheckpointNotFound is returned when a checkpoint prefix was never
// saved in a scope.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Store persists learner checkpoints and per-run metric records.
//
// A scope names one round of one experiment, "<experiment>/<round>"; within a
// scope a checkpoint is keyed by its prefix, so saving "best_acc_" twice
// keeps only the later one.
type Store interface {
	Init(ctx context.Context) error
	SaveCheckpoint(ctx context.Context, scope string, cp model.Checkpoint) error
	GetCheckpoint(ctx context.Context, scope, prefix string) (model.Checkpoint, bool, error)
	SaveEpochMetrics(ctx context.Context, runID string, metrics []model.EpochMetrics) error
	GetEpochMetrics(ctx context.Context, runID string) ([]model.EpochMetrics, bool, error)
	SaveRoundResults(ctx context.Context, runID string, results []model.RoundResult) error
	GetRoundResults(ctx context.Context, runID string) ([]model.RoundResult, bool, error)
}

// LoadCheckpoint is GetCheckpoint with a missing entry turned into
// ErrCheckpointNotFound.
func LoadCheckpoint(ctx context.Context, store Store, scope, prefix string) (model.Checkpoint, error) {
	cp, ok, err := store.GetCheckpoint(ctx, scope, prefix)
	if err != nil {
		return model.Checkpoint{}, err
	}
	if !ok {
		return model.Checkpoint{}, errors.Wrapf(ErrCheckpointNotFound, "%s/%s", scope, prefix)
	}
	return cp, nil
}
