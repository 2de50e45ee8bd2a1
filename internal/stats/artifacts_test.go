package stats

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"activelearn/internal/model"
)

func sampleArtifacts(runID string) RunArtifacts {
	return RunArtifacts{
		Config: RunConfig{
			RunID:          runID,
			ExperimentName: "blobs",
			Dataset:        "synthetic",
			Strategy:       "cal",
			NRuns:          2,
			NEpochs:        2,
			BatchSize:      16,
			Seed:           1,
		},
		Epochs: []model.EpochMetrics{
			{Round: 0, Epoch: 0, ClassificationLossTrain: 1.2, ValidAccuracy: 40},
			{Round: 0, Epoch: 1, ClassificationLossTrain: 0.8, ValidAccuracy: 60, SkippedSteps: 1},
			{Round: 1, Epoch: 0, ClassificationLossTrain: model.Metric(math.NaN()), ValidAccuracy: 70},
		},
		Rounds: []model.RoundResult{
			{Round: 0, LabeledCount: 10, TestAccLastEpoch: 55, TestAccBestAcc: 58, TestAccBestLoss: 57},
			{Round: 1, LabeledCount: 20, TestAccLastEpoch: 71, TestAccBestAcc: 72, TestAccBestLoss: model.Metric(math.NaN())},
		},
	}
}

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runDir, err := WriteRunArtifacts(baseDir, sampleArtifacts("run-123"))
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range []string{configFile, epochsFile, roundsFile} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	exportedDir, err := ExportRunArtifacts(baseDir, "run-123", outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	for _, file := range []string{configFile, epochsFile, roundsFile} {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}

	cfg, ok, err := ReadRunConfig(baseDir, "run-123")
	if err != nil || !ok {
		t.Fatalf("read config: ok=%t err=%v", ok, err)
	}
	if cfg.Strategy != "cal" || cfg.NRuns != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	rounds, ok, err := ReadRounds(baseDir, "run-123")
	if err != nil || !ok {
		t.Fatalf("read rounds: ok=%t err=%v", ok, err)
	}
	if !math.IsNaN(float64(rounds[1].TestAccBestLoss)) {
		t.Fatalf("expected NaN best-loss accuracy, got %v", rounds[1].TestAccBestLoss)
	}
	epochs, ok, err := ReadEpochs(baseDir, "run-123")
	if err != nil || !ok || len(epochs) != 3 {
		t.Fatalf("read epochs: ok=%t err=%v len=%d", ok, err, len(epochs))
	}
}

func TestWriteRunArtifactsRequiresRunID(t *testing.T) {
	if _, err := WriteRunArtifacts(t.TempDir(), RunArtifacts{}); err == nil {
		t.Fatal("expected missing run id error")
	}
}

func TestRunIndexOrderingAndReplace(t *testing.T) {
	baseDir := t.TempDir()
	entries := []RunIndexEntry{
		{RunID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z"},
		{RunID: "b", CreatedAtUTC: "2026-01-03T00:00:00Z"},
		{RunID: "c", CreatedAtUTC: "2026-01-02T00:00:00Z"},
	}
	for _, e := range entries {
		if err := AppendRunIndex(baseDir, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "a", CreatedAtUTC: "2026-01-04T00:00:00Z", FinalLabeled: 30}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(index) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(index))
	}
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if index[i].RunID != id {
			t.Fatalf("entry %d: want %s got %s", i, id, index[i].RunID)
		}
	}
	if index[0].FinalLabeled != 30 {
		t.Fatalf("replacement not applied: %+v", index[0])
	}
}

func TestResolveRunID(t *testing.T) {
	baseDir := t.TempDir()
	for _, id := range []string{"260101_1200_blobs_1_ab", "260101_1200_blobs_1_cd", "260102_0900_moons_3_ef"} {
		if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: id}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := ResolveRunID(baseDir, "260102")
	if err != nil || got != "260102_0900_moons_3_ef" {
		t.Fatalf("resolve prefix: got=%s err=%v", got, err)
	}
	if _, err := ResolveRunID(baseDir, "260101_1200"); err == nil {
		t.Fatal("expected ambiguous prefix error")
	}
	if _, err := ResolveRunID(baseDir, "nope"); err == nil {
		t.Fatal("expected no match error")
	}
}
