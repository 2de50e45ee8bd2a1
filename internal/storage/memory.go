package storage

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"activelearn/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type checkpointKey struct {
	scope  string
	prefix string
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	checkpoints map[checkpointKey]model.Checkpoint
	epochs      map[string][]model.EpochMetrics
	rounds      map[string][]model.RoundResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.checkpoints = make(map[checkpointKey]model.Checkpoint)
	s.epochs = make(map[string][]model.EpochMetrics)
	s.rounds = make(map[string][]model.RoundResult)
	return nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, scope string, cp model.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.checkpoints[checkpointKey{scope: scope, prefix: cp.Prefix}] = cloneCheckpoint(cp)
	return nil
}

func (s *MemoryStore) GetCheckpoint(_ context.Context, scope, prefix string) (model.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[checkpointKey{scope: scope, prefix: prefix}]
	if !ok {
		return model.Checkpoint{}, false, nil
	}
	return cloneCheckpoint(cp), true, nil
}

func (s *MemoryStore) SaveEpochMetrics(_ context.Context, runID string, metrics []model.EpochMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.epochs[runID] = append([]model.EpochMetrics(nil), metrics...)
	return nil
}

func (s *MemoryStore) GetEpochMetrics(_ context.Context, runID string) ([]model.EpochMetrics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics, ok := s.epochs[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.EpochMetrics(nil), metrics...), true, nil
}

func (s *MemoryStore) SaveRoundResults(_ context.Context, runID string, results []model.RoundResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.rounds[runID] = append([]model.RoundResult(nil), results...)
	return nil
}

func (s *MemoryStore) GetRoundResults(_ context.Context, runID string) ([]model.RoundResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results, ok := s.rounds[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.RoundResult(nil), results...), true, nil
}

func cloneCheckpoint(cp model.Checkpoint) model.Checkpoint {
	out := cp
	out.Tensors = make([]model.Tensor, len(cp.Tensors))
	for i, t := range cp.Tensors {
		out.Tensors[i] = model.Tensor{
			Name:  t.Name,
			Shape: append([]int(nil), t.Shape...),
			Data:  append([]float64(nil), t.Data...),
		}
	}
	return out
}
