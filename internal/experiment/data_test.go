package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activelearn/internal/dataset"
)

func TestBuildSourcesSplitsSynthetic(t *testing.T) {
	cfg := Config{}.Defaults().Dataset
	cfg.Samples = 100
	pool, test, err := BuildSources(cfg, 3)
	require.NoError(t, err)
	assert.Equal(t, 100, pool.Len()+test.Len())
	assert.Equal(t, 20, test.Len())
	assert.Equal(t, cfg.Features, pool.Dim())
}

func TestBuildSourcesScalesWithPoolStats(t *testing.T) {
	cfg := Config{}.Defaults().Dataset
	cfg.Samples = 60
	cfg.Scale = dataset.ScaleMax
	pool, test, err := BuildSources(cfg, 3)
	require.NoError(t, err)

	for i := 0; i < pool.Len(); i++ {
		s, err := pool.Sample(i)
		require.NoError(t, err)
		for _, v := range s.Input {
			assert.LessOrEqual(t, v, 1.0+1e-12)
		}
	}
	assert.Equal(t, 12, test.Len())
}

func TestBuildSourcesReadsHeldOutCSV(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, cfg dataset.SyntheticConfig) string {
		src, err := dataset.Synthetic(cfg)
		require.NoError(t, err)
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, dataset.WriteCSV(f, src))
		require.NoError(t, f.Close())
		return path
	}
	syn := dataset.DefaultSyntheticConfig()
	syn.Samples = 40
	train := write("train.csv", syn)
	syn.Samples = 10
	held := write("test.csv", syn)
	syn.Features = 3
	narrow := write("narrow.csv", syn)

	cfg := DatasetConfig{Name: DatasetCSV, Path: train, TestPath: held}
	pool, test, err := BuildSources(cfg, 1)
	require.NoError(t, err)
	assert.Equal(t, 40, pool.Len())
	assert.Equal(t, 10, test.Len())

	cfg.TestPath = narrow
	_, _, err = BuildSources(cfg, 1)
	assert.Error(t, err)

	cfg.Path = filepath.Join(dir, "missing.csv")
	_, _, err = BuildSources(cfg, 1)
	assert.Error(t, err)
}
