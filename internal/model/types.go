package model

import (
	"encoding/json"
	"math"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Tensor is one named parameter block of a learner, stored row-major.
type Tensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Checkpoint is a persisted parameter set saved under a named prefix
// (for example "best_acc_") inside a run scope.
type Checkpoint struct {
	VersionedRecord
	Prefix  string   `json:"prefix"`
	Epoch   int      `json:"epoch"`
	Tensors []Tensor `json:"tensors"`
}

// Metric is a float that survives JSON round trips when it is NaN, which is
// what an average over an empty loss list produces.
type Metric float64

func (m Metric) MarshalJSON() ([]byte, error) {
	v := float64(m)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Metric(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Metric(v)
	return nil
}

// EpochMetrics is the record emitted after every train/validate cycle.
type EpochMetrics struct {
	Round                      int    `json:"run_no"`
	Epoch                      int    `json:"epoch"`
	ClassificationLossTrain    Metric `json:"classification_loss_train"`
	ReconstructionLossTrain    Metric `json:"reconstruction_loss_train"`
	SamplingEmbeddingLossTrain Metric `json:"sampling_embedding_loss_train"`
	SamplingSamplerLossTrain   Metric `json:"sampling_sampler_loss_train"`
	ClassificationLossVal      Metric `json:"classification_loss_val"`
	ReconstructionLossVal      Metric `json:"reconstruction_loss_val"`
	ValidAccuracy              Metric `json:"valid_accuracy"`
	SkippedSteps               int    `json:"skipped_steps"`
}

// RoundResult summarizes one run of the active learning sequence: the
// partition it trained on, the three test accuracies and what it acquired.
type RoundResult struct {
	Round             int    `json:"run_no"`
	LabeledCount      int    `json:"labeled_count"`
	UnlabeledCount    int    `json:"unlabeled_count"`
	BestValidAccuracy Metric `json:"best_valid_accuracy"`
	BestValidLoss     Metric `json:"best_valid_loss"`
	TestAccLastEpoch  Metric `json:"test_acc_last_epoch"`
	TestAccBestAcc    Metric `json:"test_acc_best_acc"`
	TestAccBestLoss   Metric `json:"test_acc_best_loss"`
	Acquired          []int  `json:"acquired,omitempty"`
}
