package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activelearn/internal/dataset"
)

func TestWriteProducesLoadableCSV(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "blobs.csv")
	require.NoError(t, write(args{Out: out, Samples: 30, Features: 2, Classes: 3, Spread: 2, Noise: 0.5, Seed: 1}))

	src, err := dataset.LoadCSV(out)
	require.NoError(t, err)
	assert.Equal(t, 30, src.Len())
	assert.Equal(t, 2, src.Dim())
	assert.Equal(t, 3, src.Classes())
}

func TestWriteRejectsBadShape(t *testing.T) {
	err := write(args{Out: filepath.Join(t.TempDir(), "x.csv"), Samples: 0, Features: 2, Classes: 2})
	assert.Error(t, err)
}
