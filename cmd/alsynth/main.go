package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexflint/go-arg"
	"github.com/pkg/errors"

	"activelearn/internal/dataset"
)

type args struct {
	Out      string  `arg:"positional,required" help:"CSV file to write"`
	Samples  int     `arg:"--samples" help:"number of rows"`
	Features int     `arg:"--features" help:"input columns per row"`
	Classes  int     `arg:"--classes" help:"number of Gaussian blobs"`
	Spread   float64 `arg:"--spread" help:"blob centers are drawn from [-spread, spread]"`
	Noise    float64 `arg:"--noise" help:"standard deviation within a blob"`
	Seed     int64   `arg:"--seed"`
}

func (args) Description() string {
	return "alsynth writes a Gaussian blob classification dataset as CSV, one row per sample with the class in the last column"
}

func main() {
	defaults := dataset.DefaultSyntheticConfig()
	a := args{
		Samples:  defaults.Samples,
		Features: defaults.Features,
		Classes:  defaults.Classes,
		Spread:   defaults.Spread,
		Noise:    defaults.Noise,
		Seed:     defaults.Seed,
	}
	arg.MustParse(&a)

	if err := write(a); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func write(a args) error {
	src, err := dataset.Synthetic(dataset.SyntheticConfig{
		Samples:  a.Samples,
		Features: a.Features,
		Classes:  a.Classes,
		Spread:   a.Spread,
		Noise:    a.Noise,
		Seed:     a.Seed,
	})
	if err != nil {
		return err
	}
	if dir := filepath.Dir(a.Out); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(a.Out)
	if err != nil {
		return err
	}
	if err := dataset.WriteCSV(f, src); err != nil {
		f.Close()
		return errors.Wrap(err, a.Out)
	}
	return f.Close()
}
