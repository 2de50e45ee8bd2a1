package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"activelearn/internal/model"
)

const (
	checkpointSuffix = "weights.ckpt"
	epochsFile       = "epochs.json"
	roundsFile       = "rounds.json"
)

// FileStore keeps one file per record under a root directory:
// <root>/<scope>/<prefix>weights.ckpt for checkpoints and
// <root>/<runID>/{epochs,rounds}.json for metrics.
type FileStore struct {
	root string

	mu          sync.RWMutex
	initialized bool
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return errors.Wrap(err, "create store root")
	}
	s.initialized = true
	return nil
}

func (s *FileStore) SaveCheckpoint(_ context.Context, scope string, cp model.Checkpoint) error {
	path, err := s.path(scope, cp.Prefix+checkpointSuffix)
	if err != nil {
		return err
	}
	payload, err := EncodeCheckpoint(cp)
	if err != nil {
		return err
	}
	return s.write(path, payload)
}

func (s *FileStore) GetCheckpoint(_ context.Context, scope, prefix string) (model.Checkpoint, bool, error) {
	path, err := s.path(scope, prefix+checkpointSuffix)
	if err != nil {
		return model.Checkpoint{}, false, err
	}
	payload, ok, err := s.read(path)
	if err != nil || !ok {
		return model.Checkpoint{}, false, err
	}
	cp, err := DecodeCheckpoint(payload)
	if err != nil {
		return model.Checkpoint{}, false, errors.Wrapf(err, "decode checkpoint %s", path)
	}
	return cp, true, nil
}

func (s *FileStore) SaveEpochMetrics(_ context.Context, runID string, metrics []model.EpochMetrics) error {
	path, err := s.path(runID, epochsFile)
	if err != nil {
		return err
	}
	payload, err := EncodeEpochMetrics(metrics)
	if err != nil {
		return err
	}
	return s.write(path, payload)
}

func (s *FileStore) GetEpochMetrics(_ context.Context, runID string) ([]model.EpochMetrics, bool, error) {
	path, err := s.path(runID, epochsFile)
	if err != nil {
		return nil, false, err
	}
	payload, ok, err := s.read(path)
	if err != nil || !ok {
		return nil, false, err
	}
	metrics, err := DecodeEpochMetrics(payload)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decode epoch metrics %s", runID)
	}
	return metrics, true, nil
}

func (s *FileStore) SaveRoundResults(_ context.Context, runID string, results []model.RoundResult) error {
	path, err := s.path(runID, roundsFile)
	if err != nil {
		return err
	}
	payload, err := EncodeRoundResults(results)
	if err != nil {
		return err
	}
	return s.write(path, payload)
}

func (s *FileStore) GetRoundResults(_ context.Context, runID string) ([]model.RoundResult, bool, error) {
	path, err := s.path(runID, roundsFile)
	if err != nil {
		return nil, false, err
	}
	payload, ok, err := s.read(path)
	if err != nil || !ok {
		return nil, false, err
	}
	results, err := DecodeRoundResults(payload)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decode round results %s", runID)
	}
	return results, true, nil
}

// path resolves a record file inside the root. Scopes may nest with "/" but
// never climb out of the root.
func (s *FileStore) path(scope, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return "", errNotInitialized
	}
	if scope == "" {
		return "", errors.New("scope is required")
	}
	for _, part := range strings.Split(scope, "/") {
		if part == "" || part == "." || part == ".." {
			return "", errors.Errorf("invalid scope %q", scope)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(scope), name), nil
}

func (s *FileStore) write(path string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *FileStore) read(path string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}
