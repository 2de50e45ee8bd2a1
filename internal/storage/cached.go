package storage

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"activelearn/internal/model"
)

// CachedStore keeps recently used checkpoints of an underlying store in
// memory. Writes go through to the underlying store first.
type CachedStore struct {
	Store
	cache *lru.Cache
}

func NewCachedStore(store Store, size int) (*CachedStore, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint cache")
	}
	return &CachedStore{Store: store, cache: cache}, nil
}

func (s *CachedStore) SaveCheckpoint(ctx context.Context, scope string, cp model.Checkpoint) error {
	if err := s.Store.SaveCheckpoint(ctx, scope, cp); err != nil {
		return err
	}
	s.cache.Add(checkpointKey{scope: scope, prefix: cp.Prefix}, cloneCheckpoint(cp))
	return nil
}

func (s *CachedStore) GetCheckpoint(ctx context.Context, scope, prefix string) (model.Checkpoint, bool, error) {
	key := checkpointKey{scope: scope, prefix: prefix}
	if v, ok := s.cache.Get(key); ok {
		return cloneCheckpoint(v.(model.Checkpoint)), true, nil
	}
	cp, ok, err := s.Store.GetCheckpoint(ctx, scope, prefix)
	if err != nil || !ok {
		return cp, ok, err
	}
	s.cache.Add(key, cloneCheckpoint(cp))
	return cp, true, nil
}

// Len is the number of cached checkpoints.
func (s *CachedStore) Len() int { return s.cache.Len() }

func (s *CachedStore) Close() error {
	s.cache.Purge()
	return CloseIfSupported(s.Store)
}
