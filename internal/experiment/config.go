package experiment

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"activelearn/internal/dataset"
	"activelearn/internal/optim"
	"activelearn/internal/sampler"
)

const (
	DatasetSynthetic = "synthetic"
	DatasetCSV       = "csv"
)

type DatasetConfig struct {
	Name             string  `yaml:"name" json:"name"`
	Path             string  `yaml:"path,omitempty" json:"path,omitempty"`
	TestPath         string  `yaml:"test_path,omitempty" json:"test_path,omitempty"`
	InitLabeledRatio float64 `yaml:"init_lbl_ratio" json:"init_lbl_ratio"`
	ValRatio         float64 `yaml:"val_ratio" json:"val_ratio"`
	TestRatio        float64 `yaml:"test_ratio" json:"test_ratio"`
	Samples          int     `yaml:"n_samples,omitempty" json:"n_samples,omitempty"`
	Features         int     `yaml:"n_features,omitempty" json:"n_features,omitempty"`
	Classes          int     `yaml:"n_classes,omitempty" json:"n_classes,omitempty"`
	// Scale is fitted on the pool and applied to pool and test alike.
	Scale string `yaml:"scale,omitempty" json:"scale,omitempty"`
}

type EmbeddingConfig struct {
	TrainVAE  bool    `yaml:"train_vae" json:"train_vae"`
	LatentDim int     `yaml:"latent_dim" json:"latent_dim"`
	HiddenDim int     `yaml:"hidden_dim" json:"hidden_dim"`
	KLWeight  float64 `yaml:"kl_weight" json:"kl_weight"`
	Optimizer string  `yaml:"optimizer" json:"optimizer"`
	LR        float64 `yaml:"lr" json:"lr"`
}

type StoreConfig struct {
	Kind string `yaml:"kind" json:"kind"`
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// CacheSize keeps that many checkpoints in memory in front of a
	// file or sqlite store. Zero disables the cache.
	CacheSize int `yaml:"cache_size,omitempty" json:"cache_size,omitempty"`
}

// Config is one fully resolved experiment.
type Config struct {
	ExperimentName string          `yaml:"experiment_name" json:"experiment_name"`
	NRuns          int             `yaml:"n_runs" json:"n_runs"`
	NEpochs        int             `yaml:"n_epochs" json:"n_epochs"`
	BatchSize      int             `yaml:"batch_size" json:"batch_size"`
	Device         string          `yaml:"device" json:"device"`
	Seed           int64           `yaml:"seed" json:"seed"`
	UpdateRatio    float64         `yaml:"update_ratio" json:"update_ratio"`
	Dataset        DatasetConfig   `yaml:"dataset" json:"dataset"`
	Sampler        sampler.Config  `yaml:"smp" json:"smp"`
	Embedding      EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Classifier     optim.Config    `yaml:"classifier" json:"classifier"`
	Store          StoreConfig     `yaml:"store" json:"store"`
	ArtifactsDir   string          `yaml:"artifacts_dir" json:"artifacts_dir"`
	Progress       bool            `yaml:"progress" json:"progress"`
}

// Defaults fills every unset option.
func (c Config) Defaults() Config {
	if c.ExperimentName == "" {
		c.ExperimentName = "default"
	}
	if c.NRuns == 0 {
		c.NRuns = 5
	}
	if c.NEpochs == 0 {
		c.NEpochs = 10
	}
	if c.BatchSize == 0 {
		c.BatchSize = 64
	}
	if c.Device == "" {
		c.Device = "cpu"
	}
	if c.UpdateRatio == 0 {
		c.UpdateRatio = 0.05
	}

	d := &c.Dataset
	if d.Name == "" {
		d.Name = DatasetSynthetic
	}
	if d.InitLabeledRatio == 0 {
		d.InitLabeledRatio = 0.1
	}
	if d.ValRatio == 0 {
		d.ValRatio = 0.1
	}
	if d.TestRatio == 0 && d.TestPath == "" {
		d.TestRatio = 0.2
	}
	if d.Name == DatasetSynthetic {
		if d.Samples == 0 {
			d.Samples = 1000
		}
		if d.Features == 0 {
			d.Features = 8
		}
		if d.Classes == 0 {
			d.Classes = 4
		}
	}

	e := &c.Embedding
	if e.LatentDim == 0 {
		e.LatentDim = 8
	}
	if e.HiddenDim == 0 {
		e.HiddenDim = 64
	}
	if e.KLWeight == 0 {
		e.KLWeight = 0.1
	}
	if e.Optimizer == "" {
		e.Optimizer = "adam"
	}
	if e.LR == 0 {
		e.LR = 0.001
	}

	if c.Classifier.Name == "" {
		c.Classifier.Name = "adam"
	}
	if c.Classifier.LearningRate == 0 {
		c.Classifier.LearningRate = 0.001
	}

	s := &c.Sampler
	if s.Name == "" {
		s.Name = sampler.NameRandom
	}
	if s.LatentDim == 0 {
		s.LatentDim = e.LatentDim
	}
	if s.Optimizer == "" {
		s.Optimizer = "adam"
	}
	if s.LR == 0 {
		s.LR = 0.001
	}

	if c.Store.Kind == "" {
		c.Store.Kind = "memory"
	}
	if c.ArtifactsDir == "" {
		c.ArtifactsDir = "artifacts"
	}
	return c
}

// Validate rejects a configuration that cannot run. It builds the strategy
// once so that bad strategy options fail here and not after training.
func (c Config) Validate() error {
	if c.ExperimentName == "" {
		return errors.New("experiment_name is required")
	}
	if c.NRuns <= 0 {
		return errors.Errorf("n_runs must be > 0: %d", c.NRuns)
	}
	if c.NEpochs <= 0 {
		return errors.Errorf("n_epochs must be > 0: %d", c.NEpochs)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be > 0: %d", c.BatchSize)
	}
	if c.UpdateRatio <= 0 || c.UpdateRatio > 1 {
		return errors.Errorf("update_ratio must be in (0,1]: %g", c.UpdateRatio)
	}

	d := c.Dataset
	switch d.Name {
	case DatasetSynthetic:
		if d.Samples <= 0 || d.Features <= 0 || d.Classes <= 0 {
			return errors.Errorf("synthetic dataset needs n_samples, n_features and n_classes > 0")
		}
	case DatasetCSV:
		if d.Path == "" {
			return errors.New("csv dataset needs a path")
		}
	default:
		return errors.Errorf("unknown dataset: %q", d.Name)
	}
	if d.InitLabeledRatio <= 0 || d.InitLabeledRatio > 1 {
		return errors.Errorf("init_lbl_ratio must be in (0,1]: %g", d.InitLabeledRatio)
	}
	// Checkpoint selection needs a non-empty validation set.
	if d.ValRatio <= 0 || d.ValRatio >= 1 {
		return errors.Errorf("val_ratio must be in (0,1): %g", d.ValRatio)
	}
	if d.TestPath == "" && (d.TestRatio <= 0 || d.TestRatio >= 1) {
		return errors.Errorf("test_ratio must be in (0,1): %g", d.TestRatio)
	}
	switch d.Scale {
	case "", dataset.ScaleNone, dataset.ScaleMax, dataset.ScaleZScore, dataset.ScaleAsinh, dataset.ScaleBinary:
	default:
		return errors.Errorf("unknown scale mode: %q", d.Scale)
	}

	e := c.Embedding
	if e.LatentDim <= 0 || e.HiddenDim <= 0 {
		return errors.Errorf("embedding latent_dim and hidden_dim must be > 0")
	}
	if e.KLWeight < 0 {
		return errors.Errorf("embedding kl_weight must be >= 0: %g", e.KLWeight)
	}
	if err := checkOptimizer(e.Optimizer); err != nil {
		return errors.Wrap(err, "embedding")
	}
	if err := checkOptimizer(c.Classifier.Name); err != nil {
		return errors.Wrap(err, "classifier")
	}

	if strings.EqualFold(c.Sampler.Name, sampler.NameVAAL) && c.Sampler.LatentDim != e.LatentDim {
		return errors.Errorf("smp latent_dim %d differs from embedding latent_dim %d", c.Sampler.LatentDim, e.LatentDim)
	}
	if _, err := sampler.New(c.samplerConfig(0)); err != nil {
		return errors.Wrap(err, "smp")
	}

	switch c.Store.Kind {
	case "memory", "file", "sqlite":
	default:
		return errors.Errorf("unsupported store backend: %s", c.Store.Kind)
	}
	if c.Store.CacheSize < 0 {
		return errors.Errorf("store cache_size must be >= 0: %d", c.Store.CacheSize)
	}
	return nil
}

func checkOptimizer(name string) error {
	switch strings.ToLower(name) {
	case "adam", "sgd":
		return nil
	default:
		return errors.Wrapf(optim.ErrUnknownOptimizer, "%q", name)
	}
}

// samplerConfig is the strategy section with the run-wide batch size and a
// per-round seed.
func (c Config) samplerConfig(round int) sampler.Config {
	s := c.Sampler
	s.BatchSize = c.BatchSize
	s.Seed = c.Seed + int64(round)
	return s
}

// Load reads a YAML configuration file and expands it.
func Load(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfgs, err := Expand(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfgs, nil
}

// Expand parses a YAML document in which any option may be a list of
// values, and returns one defaulted and validated Config per combination.
// Combinations are ordered by option path, the last path varying fastest.
func Expand(data []byte) ([]Config, error) {
	var raw map[interface{}]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if raw == nil {
		raw = map[interface{}]interface{}{}
	}

	var axes []axis
	collectAxes(raw, nil, &axes)
	sort.Slice(axes, func(i, j int) bool {
		return strings.Join(axes[i].path, ".") < strings.Join(axes[j].path, ".")
	})

	combos := [][]interface{}{{}}
	for _, a := range axes {
		next := make([][]interface{}, 0, len(combos)*len(a.values))
		for _, combo := range combos {
			for _, v := range a.values {
				c := append(append([]interface{}(nil), combo...), v)
				next = append(next, c)
			}
		}
		combos = next
	}

	out := make([]Config, 0, len(combos))
	for i, combo := range combos {
		for j, a := range axes {
			setPath(raw, a.path, combo[j])
		}
		encoded, err := yaml.Marshal(raw)
		if err != nil {
			return nil, err
		}
		var cfg Config
		if err := yaml.UnmarshalStrict(encoded, &cfg); err != nil {
			return nil, errors.Wrapf(err, "combination %d", i)
		}
		cfg = cfg.Defaults()
		if err := cfg.Validate(); err != nil {
			return nil, errors.Wrapf(err, "combination %d (%s)", i, describe(axes, combo))
		}
		out = append(out, cfg)
	}
	return out, nil
}

type axis struct {
	path   []string
	values []interface{}
}

func collectAxes(node map[interface{}]interface{}, prefix []string, out *[]axis) {
	for k, v := range node {
		path := append(append([]string(nil), prefix...), fmt.Sprint(k))
		switch val := v.(type) {
		case map[interface{}]interface{}:
			collectAxes(val, path, out)
		case []interface{}:
			if len(val) > 0 {
				*out = append(*out, axis{path: path, values: val})
			}
		}
	}
}

func setPath(node map[interface{}]interface{}, path []string, value interface{}) {
	for k, v := range node {
		if fmt.Sprint(k) != path[0] {
			continue
		}
		if len(path) == 1 {
			node[k] = value
			return
		}
		if child, ok := v.(map[interface{}]interface{}); ok {
			setPath(child, path[1:], value)
		}
		return
	}
}

func describe(axes []axis, combo []interface{}) string {
	parts := make([]string, len(axes))
	for i, a := range axes {
		parts[i] = fmt.Sprintf("%s=%v", strings.Join(a.path, "."), combo[i])
	}
	return strings.Join(parts, " ")
}
