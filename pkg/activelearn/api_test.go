package activelearn

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"activelearn/internal/experiment"
	"activelearn/internal/model"
	"activelearn/internal/sampler"
)

func smallConfig(strategy string) experiment.Config {
	return experiment.Config{
		ExperimentName: "api",
		NRuns:          2,
		NEpochs:        2,
		BatchSize:      16,
		Seed:           3,
		UpdateRatio:    0.05,
		Dataset: experiment.DatasetConfig{
			Name:     experiment.DatasetSynthetic,
			Samples:  200,
			Features: 4,
			Classes:  2,
		},
		Sampler:   sampler.Config{Name: strategy, NNeighs: 3},
		Embedding: experiment.EmbeddingConfig{TrainVAE: true, LatentDim: 2, HiddenDim: 8},
	}
}

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	base := t.TempDir()
	client, err := New(Options{
		StoreKind:    "memory",
		ArtifactsDir: filepath.Join(base, "artifacts"),
		ExportsDir:   filepath.Join(base, "exports"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, base
}

func TestClientRunRunsShowAndExport(t *testing.T) {
	client, base := newTestClient(t)
	ctx := context.Background()

	var epochs int
	summary, err := client.Run(ctx, RunRequest{
		Config:  smallConfig(sampler.NameCAL),
		OnEpoch: func(model.EpochMetrics) { epochs++ },
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("expected run id")
	}
	if len(summary.Rounds) != 2 {
		t.Fatalf("expected 2 rounds, got %d", len(summary.Rounds))
	}
	if epochs != 4 {
		t.Fatalf("expected 4 epoch callbacks, got %d", epochs)
	}
	if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, "rounds.json")); err != nil {
		t.Fatalf("rounds artifact: %v", err)
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.RunID || runs[0].Strategy != sampler.NameCAL {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	shown, err := client.Show(ctx, ShowRequest{RunID: summary.RunID[:16]})
	if err != nil {
		t.Fatalf("show by prefix: %v", err)
	}
	if shown.Config.RunID != summary.RunID || len(shown.Rounds) != 2 || len(shown.Summaries) != 2 || len(shown.Curve) != 2 {
		t.Fatalf("unexpected show summary: %+v", shown)
	}

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.RunID {
		t.Fatalf("exported %s, want %s", exported.RunID, summary.RunID)
	}
	if exported.Directory != filepath.Join(base, "exports", summary.RunID) {
		t.Fatalf("unexpected export dir %s", exported.Directory)
	}
	if _, err := os.Stat(filepath.Join(exported.Directory, "epochs.json")); err != nil {
		t.Fatalf("exported epochs: %v", err)
	}
}

func TestClientPlotWritesCurve(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Run(ctx, RunRequest{Config: smallConfig(sampler.NameRandom)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	plot, err := client.Plot(ctx, PlotRequest{Latest: true})
	if err != nil {
		t.Fatalf("plot: %v", err)
	}
	if plot.RunID != summary.RunID {
		t.Fatalf("plotted %s, want %s", plot.RunID, summary.RunID)
	}
	info, err := os.Stat(plot.Path)
	if err != nil {
		t.Fatalf("plot file: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("empty plot file")
	}
}

func TestClientRejectsAmbiguousSelectors(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := client.Export(ctx, ExportRequest{RunID: "x", Latest: true}); err == nil {
		t.Fatal("expected error for run id with latest")
	}
	if _, err := client.Show(ctx, ShowRequest{}); err == nil {
		t.Fatal("expected error without run id")
	}
	if _, err := client.Plot(ctx, PlotRequest{Latest: true}); err == nil {
		t.Fatal("expected error with empty index")
	}
	if _, err := client.Run(ctx, RunRequest{Config: smallConfig("entropy")}); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
