package storage

import (
	"encoding/json"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"activelearn/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// EncodeCheckpoint serializes a checkpoint as snappy-compressed JSON.
func EncodeCheckpoint(cp model.Checkpoint) ([]byte, error) {
	raw, err := json.Marshal(cp)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func DecodeCheckpoint(data []byte) (model.Checkpoint, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return model.Checkpoint{}, errors.Wrap(err, "decompress checkpoint")
	}
	var cp model.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return model.Checkpoint{}, err
	}
	if err := checkVersion(cp.VersionedRecord); err != nil {
		return model.Checkpoint{}, err
	}
	return cp, nil
}

func EncodeEpochMetrics(metrics []model.EpochMetrics) ([]byte, error) {
	return json.Marshal(metrics)
}

func DecodeEpochMetrics(data []byte) ([]model.EpochMetrics, error) {
	var metrics []model.EpochMetrics
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

func EncodeRoundResults(results []model.RoundResult) ([]byte, error) {
	return json.Marshal(results)
}

func DecodeRoundResults(data []byte) ([]model.RoundResult, error) {
	var results []model.RoundResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return errors.Wrapf(ErrVersionMismatch, "schema %d codec %d", v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
