package experiment

import (
	"github.com/pkg/errors"

	"activelearn/internal/dataset"
)

// BuildSources loads or generates the labeled pool and the held out test
// set. Without a test_path the test set is split off the loaded data.
func BuildSources(cfg DatasetConfig, seed int64) (pool, test dataset.Source, err error) {
	pool, test, err = loadSources(cfg, seed)
	if err != nil || cfg.Scale == "" || cfg.Scale == dataset.ScaleNone {
		return pool, test, err
	}
	stats, err := dataset.InputColumnStats(pool)
	if err != nil {
		return nil, nil, errors.Wrap(err, "column stats")
	}
	if pool, err = dataset.Scale(pool, cfg.Scale, stats); err != nil {
		return nil, nil, err
	}
	if test, err = dataset.Scale(test, cfg.Scale, stats); err != nil {
		return nil, nil, err
	}
	return pool, test, nil
}

func loadSources(cfg DatasetConfig, seed int64) (pool, test dataset.Source, err error) {
	var src *dataset.MemorySource
	switch cfg.Name {
	case DatasetSynthetic:
		syn := dataset.DefaultSyntheticConfig()
		syn.Samples = cfg.Samples
		syn.Features = cfg.Features
		syn.Classes = cfg.Classes
		syn.Seed = seed
		src, err = dataset.Synthetic(syn)
	case DatasetCSV:
		src, err = dataset.LoadCSV(cfg.Path)
	default:
		return nil, nil, errors.Errorf("unknown dataset: %q", cfg.Name)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "build dataset")
	}

	if cfg.TestPath != "" {
		held, err := dataset.LoadCSV(cfg.TestPath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "load test set")
		}
		if held.Dim() != src.Dim() {
			return nil, nil, errors.Errorf("test set has %d features, pool has %d", held.Dim(), src.Dim())
		}
		return src, held, nil
	}

	p, t, err := dataset.Split(src, cfg.TestRatio, seed)
	if err != nil {
		return nil, nil, err
	}
	return p, t, nil
}
