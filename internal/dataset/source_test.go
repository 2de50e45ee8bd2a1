package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticCoversEveryClass(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.Samples = 12
	cfg.Classes = 3
	src, err := Synthetic(cfg)
	require.NoError(t, err)
	assert.Equal(t, 12, src.Len())
	assert.Equal(t, 3, src.Classes())
	assert.Equal(t, cfg.Features, src.Dim())

	_, err = src.Sample(12)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestSplitKeepsEverySample(t *testing.T) {
	src, err := Synthetic(DefaultSyntheticConfig())
	require.NoError(t, err)
	pool, test, err := Split(src, 0.2, 4)
	require.NoError(t, err)
	assert.Equal(t, 800, pool.Len())
	assert.Equal(t, 200, test.Len())

	_, _, err = Split(src, 0, 4)
	assert.Error(t, err)
}

func TestCSVRoundTrip(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.Samples = 9
	cfg.Features = 2
	cfg.Classes = 3
	src, err := Synthetic(cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, src))
	assert.True(t, strings.HasPrefix(buf.String(), "x0,x1,class\n"))

	path := filepath.Join(t.TempDir(), "blobs.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	back, err := LoadCSV(path)
	require.NoError(t, err)
	require.Equal(t, src.Len(), back.Len())
	for i := 0; i < src.Len(); i++ {
		a, _ := src.Sample(i)
		b, _ := back.Sample(i)
		assert.Equal(t, a, b)
	}
}

func TestReadCSVErrors(t *testing.T) {
	for name, in := range map[string]string{
		"empty":       "",
		"one column":  "class\n1\n",
		"bad feature": "x0,class\nabc,1\n",
		"bad class":   "x0,class\n0.5,one\n",
		"short row":   "x0,x1,class\n0.5,1\n",
	} {
		_, err := ReadCSV(strings.NewReader(in))
		assert.Error(t, err, name)
	}

	src, err := ReadCSV(strings.NewReader("x0,class\n0.5,1\n,\n-1,0\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())
}
