package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activelearn/internal/dataset"
	"activelearn/internal/optim"
	"activelearn/internal/sampler"
)

func TestDefaultsFillEveryOption(t *testing.T) {
	cfg := Config{}.Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "default", cfg.ExperimentName)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, "cpu", cfg.Device)
	assert.Equal(t, DatasetSynthetic, cfg.Dataset.Name)
	assert.Equal(t, sampler.NameRandom, cfg.Sampler.Name)
	assert.Equal(t, cfg.Embedding.LatentDim, cfg.Sampler.LatentDim)
	assert.Equal(t, "adam", cfg.Classifier.Name)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.False(t, cfg.Embedding.TrainVAE)
}

func TestDefaultsKeepExplicitValues(t *testing.T) {
	cfg := Config{
		ExperimentName: "mine",
		BatchSize:      8,
		Dataset:        DatasetConfig{Name: DatasetCSV, Path: "x.csv", ValRatio: 0.3},
		Embedding:      EmbeddingConfig{LatentDim: 5},
	}.Defaults()
	assert.Equal(t, "mine", cfg.ExperimentName)
	assert.Equal(t, 8, cfg.BatchSize)
	assert.Equal(t, 0.3, cfg.Dataset.ValRatio)
	assert.Zero(t, cfg.Dataset.Samples)
	assert.Equal(t, 5, cfg.Sampler.LatentDim)
}

func TestValidateRejectsBadOptions(t *testing.T) {
	cases := map[string]func(*Config){
		"zero runs":         func(c *Config) { c.NRuns = -1 },
		"zero batch":        func(c *Config) { c.BatchSize = -4 },
		"update ratio":      func(c *Config) { c.UpdateRatio = 1.5 },
		"init ratio":        func(c *Config) { c.Dataset.InitLabeledRatio = 2 },
		"val ratio":         func(c *Config) { c.Dataset.ValRatio = 1 },
		"test ratio":        func(c *Config) { c.Dataset.TestRatio = 1 },
		"dataset":           func(c *Config) { c.Dataset.Name = "cifar10" },
		"csv without path":  func(c *Config) { c.Dataset.Name = DatasetCSV },
		"strategy":          func(c *Config) { c.Sampler.Name = "entropy" },
		"cal neighbors":     func(c *Config) { c.Sampler.Name = sampler.NameCAL },
		"neigh dist":        func(c *Config) { c.Sampler = sampler.Config{Name: sampler.NameCAL, NNeighs: 3, NeighDist: "cosine"} },
		"vaal latent":       func(c *Config) { c.Sampler.Name = sampler.NameVAAL; c.Sampler.LatentDim = 99 },
		"classifier optim":  func(c *Config) { c.Classifier.Name = "rmsprop" },
		"embedding optim":   func(c *Config) { c.Embedding.Optimizer = "lbfgs" },
		"store":             func(c *Config) { c.Store.Kind = "redis" },
		"negative kl":       func(c *Config) { c.Embedding.KLWeight = -1 },
		"empty experiments": func(c *Config) { c.ExperimentName = "" },
		"scale":             func(c *Config) { c.Dataset.Scale = "log" },
		"cache size":        func(c *Config) { c.Store.CacheSize = -1 },
	}
	for name, mutate := range cases {
		cfg := Config{}.Defaults()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}

	cfg := Config{}.Defaults()
	cfg.Classifier.Name = "rmsprop"
	assert.True(t, errors.Is(cfg.Validate(), optim.ErrUnknownOptimizer))

	cfg = Config{}.Defaults()
	cfg.Sampler.Name = "entropy"
	assert.True(t, errors.Is(cfg.Validate(), sampler.ErrUnknownStrategy))
}

func TestExpandBuildsCartesianProduct(t *testing.T) {
	doc := []byte(`
experiment_name: sweep
seed: [1, 2]
dataset:
  name: synthetic
  n_samples: 200
smp:
  name: [random, cal]
  n_neighs: 5
embedding:
  train_vae: true
`)
	cfgs, err := Expand(doc)
	require.NoError(t, err)
	require.Len(t, cfgs, 4)

	type combo struct {
		seed int64
		name string
	}
	var got []combo
	for _, c := range cfgs {
		got = append(got, combo{c.Seed, c.Sampler.Name})
		assert.Equal(t, "sweep", c.ExperimentName)
		assert.Equal(t, 200, c.Dataset.Samples)
		assert.Equal(t, 5, c.Sampler.NNeighs)
		assert.True(t, c.Embedding.TrainVAE)
	}
	assert.Equal(t, []combo{{1, "random"}, {1, "cal"}, {2, "random"}, {2, "cal"}}, got)
}

func TestExpandWithoutListsYieldsOneConfig(t *testing.T) {
	cfgs, err := Expand([]byte("experiment_name: single\n"))
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.Equal(t, "single", cfgs[0].ExperimentName)

	cfgs, err = Expand(nil)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.Equal(t, "default", cfgs[0].ExperimentName)
}

func TestExpandRejectsUnknownKeysAndBadCombos(t *testing.T) {
	_, err := Expand([]byte("n_runz: 3\n"))
	assert.Error(t, err)

	_, err = Expand([]byte("smp:\n  name: [random, entropy]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smp.name=entropy")
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("experiment_name: fromfile\nn_runs: 2\n"), 0o644))

	cfgs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.Equal(t, 2, cfgs[0].NRuns)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSamplerConfigCarriesRunOptions(t *testing.T) {
	cfg := Config{BatchSize: 32, Seed: 10}.Defaults()
	s := cfg.samplerConfig(3)
	assert.Equal(t, 32, s.BatchSize)
	assert.Equal(t, int64(13), s.Seed)
}

func TestShippedConfigExpands(t *testing.T) {
	cfgs, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	require.Len(t, cfgs, 12)
	for _, c := range cfgs {
		assert.Equal(t, "file", c.Store.Kind)
		assert.Equal(t, 8, c.Store.CacheSize)
		assert.Equal(t, dataset.ScaleZScore, c.Dataset.Scale)
		assert.Equal(t, c.Embedding.LatentDim, c.Sampler.LatentDim)
	}
}
